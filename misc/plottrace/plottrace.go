// Plottrace plots one column of a transtree sampling trajectory
// against the iteration number.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func main() {
	col := flag.String("col", "posterior", "column to plot (pTTree, pPTree, posterior, neg, off.r, off.p, pi)")
	out := flag.String("out", "trace.png", "output file")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Please provide a trajectory file")
	}
	in, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		log.Fatal("Empty trajectory file")
	}
	header := strings.Split(scanner.Text(), "\t")
	ci := -1
	for i, name := range header {
		if name == *col {
			ci = i
		}
	}
	if ci < 0 {
		log.Fatalf("No column %s in %v", *col, header)
	}

	var pts plotter.XYs
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= ci {
			continue
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			log.Fatal(err)
		}
		y, err := strconv.ParseFloat(fields[ci], 64)
		if err != nil {
			log.Fatal(err)
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		log.Fatal(err)
	}

	p := plot.New()
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = *col

	if err := plotutil.AddLinePoints(p, *col, pts); err != nil {
		log.Fatal(err)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *out); err != nil {
		log.Fatal(err)
	}
}
