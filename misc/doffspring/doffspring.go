// Doffspring prints the offspring distribution (negative binomial) for
// given size and probability parameters.
package main

import (
	"flag"
	"fmt"
	"math"

	"github.com/epiphylo/transtree/dist"
)

func main() {
	r := flag.Float64("r", 1, "size")
	p := flag.Float64("p", 0.5, "probability")
	kmax := flag.Int("kmax", 10, "largest offspring count to print")
	flag.Parse()

	fmt.Printf("R0=%f\n", *r*(1-*p) / *p)
	for k := 0; k <= *kmax; k++ {
		fmt.Printf("%d\t%f\n", k, math.Exp(dist.LogNegBinomial(k, *r, *p)))
	}
}
