package epi

import (
	"math"
	"strings"
	"testing"

	"github.com/epiphylo/transtree/ctree"
)

const smallDiff = 1e-9

// twoHosts is a combined tree with a sampled index case A and one
// secondary case B.
func twoHosts() *ctree.CTree {
	nodes := []ctree.Node{
		{Time: 0, Parent: -1, Children: []int{1}},
		{Time: 1, Parent: 0, Children: []int{2, 3}},
		{Time: 2, Parent: 1, Name: "A"},
		{Time: 1.5, Parent: 1, Children: []int{4}},
		{Time: 2.5, Parent: 3, Name: "B"},
	}
	return ctree.New(nodes, 0)
}

// unsampledIndex is a combined tree whose index host carries no
// samples.
func unsampledIndex() *ctree.CTree {
	nodes := []ctree.Node{
		{Time: 0, Parent: -1, Children: []int{1}},
		{Time: 0.5, Parent: 0, Children: []int{2}},
		{Time: 1, Parent: 1, Children: []int{3, 4}},
		{Time: 2, Parent: 2, Name: "A"},
		{Time: 2.5, Parent: 2, Name: "B"},
	}
	return ctree.New(nodes, 0)
}

func defaultLik() Likelihood {
	return Likelihood{
		GenShape: 2, GenScale: 1,
		SamShape: 2, SamScale: 1,
		DateT: math.Inf(+1),
	}
}

func TestTTreeLogPrior(tst *testing.T) {
	l := defaultLik()
	tt := ctree.Extractor{}.Extract(twoHosts())

	res := l.TTreeLogPrior(tt, 1, 0.5, 0.5)
	if math.IsNaN(res) || math.IsInf(res, 0) {
		tst.Error("Expected finite prior, got", res)
	}

	// higher sampling proportion explains two fully sampled hosts
	// better
	if lo, hi := l.TTreeLogPrior(tt, 1, 0.5, 0.1), l.TTreeLogPrior(tt, 1, 0.5, 0.9); lo >= hi {
		tst.Error("Prior not increasing in pi on fully sampled data:", lo, hi)
	}
}

func TestTTreeLogPriorCutoff(tst *testing.T) {
	l := defaultLik()
	l.DateT = 2.2 // B is sampled at 2.5
	tt := ctree.Extractor{}.Extract(twoHosts())
	if res := l.TTreeLogPrior(tt, 1, 0.5, 0.5); !math.IsInf(res, -1) {
		tst.Error("Expected -Inf for a sample after the cutoff, got", res)
	}
}

func TestTTreeLogPriorUnsampled(tst *testing.T) {
	l := defaultLik()
	tt := ctree.Extractor{}.Extract(unsampledIndex())
	if !math.IsNaN(tt.Hosts[0].Sample) {
		tst.Fatal("Expected an unsampled index host")
	}

	res := l.TTreeLogPrior(tt, 1, 0.5, 0.5)
	if math.IsNaN(res) || math.IsInf(res, 0) {
		tst.Error("Expected finite prior, got", res)
	}

	// with an unbounded observation period pi=1 makes an unsampled
	// host impossible
	if res := l.TTreeLogPrior(tt, 1, 0.5, 1); !math.IsInf(res, -1) {
		tst.Error("Expected -Inf for pi=1 with an unsampled host, got", res)
	}

	// a finite cutoff leaves escape probability even at pi=1
	l.DateT = 3
	if res := l.TTreeLogPrior(tt, 1, 0.5, 1); math.IsInf(res, -1) {
		tst.Error("Expected finite prior with a finite cutoff, got", res)
	}
}

func TestWithinHost(tst *testing.T) {
	l := defaultLik()

	// the unsampled index host holds a single lineage; the second
	// host has two tips and one coalescence:
	// -1/neg - log(neg), so -1 at neg=1
	res := l.WithinHost(unsampledIndex(), 1)
	if math.Abs(res-(-1)) > smallDiff {
		tst.Error("Expected -1, got", res)
	}

	if res := l.WithinHost(twoHosts(), 0); !math.IsInf(res, -1) {
		tst.Error("Expected -Inf for neg=0, got", res)
	}

	res = l.WithinHost(twoHosts(), 2)
	if math.IsNaN(res) || math.IsInf(res, 0) {
		tst.Error("Expected finite likelihood, got", res)
	}
}

func loadData(tst *testing.T, contacts, exposure, locations string) *Data {
	d := NewData()
	if contacts != "" {
		if err := d.ReadContacts(strings.NewReader(contacts)); err != nil {
			tst.Fatal("Error reading contacts: ", err)
		}
	}
	if exposure != "" {
		if err := d.ReadExposure(strings.NewReader(exposure)); err != nil {
			tst.Fatal("Error reading exposure: ", err)
		}
	}
	if locations != "" {
		if err := d.ReadLocations(strings.NewReader(locations)); err != nil {
			tst.Fatal("Error reading locations: ", err)
		}
	}
	return d
}

func threeHostTTree() *ctree.TTree {
	return &ctree.TTree{Hosts: []ctree.Host{
		{Name: "A", Infection: 0, Infector: -1, Sample: 2},
		{Name: "B", Infection: 1.5, Infector: 0, Sample: 2.5},
		{Name: "C", Infection: 1.7, Infector: 0, Sample: 2.6},
	}}
}

func TestPenalty(tst *testing.T) {
	d := loadData(tst,
		"A,B\n",
		"C,2,3\n",
		"A,ward1\nB,ward1\nC,ward2\n")
	e := NewEvaluator(d)

	pen, diag := e.Evaluate(threeHostTTree(), true)
	if pen.Contact != 1 {
		tst.Error("Expected 1 contact violation, got", pen.Contact)
	}
	if pen.Exposure != 1 {
		tst.Error("Expected 1 exposure violation, got", pen.Exposure)
	}
	if pen.Location != 1 {
		tst.Error("Expected 1 location violation, got", pen.Location)
	}
	if pen.Total() != 3 {
		tst.Error("Expected total 3, got", pen.Total())
	}
	if diag == "" {
		tst.Error("Expected a breakdown diagnostic")
	}

	pen2, diag2 := e.Evaluate(threeHostTTree(), false)
	if pen2 != pen {
		tst.Error("Breakdown tracking changed the penalty:", pen, pen2)
	}
	if diag2 != "" {
		tst.Error("Unexpected diagnostic without tracking: ", diag2)
	}
}

func TestPenaltyNoViolations(tst *testing.T) {
	d := loadData(tst,
		"A,B\nA,C\n",
		"C,1,3\n",
		"A,ward1\nB,ward1\nC,ward1\n")
	pen, _ := NewEvaluator(d).Evaluate(threeHostTTree(), false)
	if pen.Total() != 0 {
		tst.Error("Expected no violations, got", pen)
	}
}

func TestPenaltyUnknownHosts(tst *testing.T) {
	// hosts missing from the data never violate
	d := loadData(tst, "X,Y\n", "", "X,ward1\n")
	pen, _ := NewEvaluator(d).Evaluate(threeHostTTree(), false)
	if pen.Total() != 0 {
		tst.Error("Expected no violations for unknown hosts, got", pen)
	}
}

func TestPenaltyNaN(tst *testing.T) {
	d := loadData(tst, "", "C,3,2\n", "")
	pen, diag := NewEvaluator(d).Evaluate(threeHostTTree(), false)
	if !pen.IsNaN() {
		tst.Error("Expected NaN penalty on inconsistent data, got", pen)
	}
	if diag == "" {
		tst.Error("Expected an error diagnostic")
	}
}

func TestReadErrors(tst *testing.T) {
	d := NewData()
	if err := d.ReadContacts(strings.NewReader("A,B,C\n")); err == nil {
		tst.Error("Expected field count error")
	}
	if err := d.ReadExposure(strings.NewReader("A,x,2\n")); err == nil {
		tst.Error("Expected float parse error")
	}
	if err := d.ReadLocations(strings.NewReader("A\n")); err == nil {
		tst.Error("Expected field count error")
	}
}
