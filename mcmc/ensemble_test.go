package mcmc

import (
	"testing"

	"github.com/epiphylo/transtree/ctree"
	"github.com/epiphylo/transtree/ptree"
)

// TestEnsemblePrivateEquivalence checks that with nothing shared every
// ensemble chain reproduces, sample for sample, a single-chain run
// seeded the way the ensemble seeds that chain.
func TestEnsemblePrivateEquivalence(tst *testing.T) {
	const seed = 5
	const nChains = 3

	s := testSettings(seed)
	s.Share = ShareNone()
	e := NewEnsemble(stubBuilder{}, stubProposal{}, ctree.Extractor{}, stubLik{}, nil, s)

	pts := make([]*ptree.Tree, nChains)
	for i := range pts {
		pts[i] = testPhylogeny(tst)
	}
	traces, err := e.Run(pts)
	if err != nil {
		tst.Fatal("Error: ", err)
	}

	for c := 0; c < nChains; c++ {
		ss := testSettings(seed + 1 + int64(c))
		sm := NewSampler(stubBuilder{}, stubProposal{}, ctree.Extractor{}, stubLik{}, nil, ss)
		ref, err := sm.Run(testPhylogeny(tst))
		if err != nil {
			tst.Fatal("Error: ", err)
		}

		if len(traces[c]) != len(ref) {
			tst.Fatal("Chain", c, "trace length", len(traces[c]), "reference", len(ref))
		}
		for i := range ref {
			got, want := traces[c][i], ref[i]
			if got.Iteration != want.Iteration ||
				got.Pars != want.Pars ||
				got.PTTree != want.PTTree ||
				got.PPTree != want.PPTree {
				tst.Fatal("Chain", c, "diverged at sample", i, ":", got.Pars, "vs", want.Pars)
			}
		}
	}
}

// TestEnsembleSharedIdentical checks that fully shared parameters stay
// identical across chains at every recorded sample.
func TestEnsembleSharedIdentical(tst *testing.T) {
	s := testSettings(7)
	s.Iterations = 500
	s.Thinning = 10
	s.Share = ShareAll()
	s.PiBetaA = 2
	s.PiBetaB = 2
	e := NewEnsemble(stubBuilder{}, stubProposal{}, ctree.Extractor{}, stubLik{}, nil, s)

	pts := []*ptree.Tree{testPhylogeny(tst), testPhylogeny(tst), testPhylogeny(tst)}
	traces, err := e.Run(pts)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(traces) != 3 {
		tst.Fatal("Expected 3 traces, got", len(traces))
	}

	moved := false
	for i := range traces[0] {
		p0 := traces[0][i].Pars
		for c := 1; c < len(traces); c++ {
			if traces[c][i].Pars != p0 {
				tst.Fatal("Shared parameters diverged at sample", i, ":", p0, "vs", traces[c][i].Pars)
			}
		}
		if p0 != s.Start {
			moved = true
		}
	}
	if !moved {
		tst.Error("No shared parameter ever moved")
	}
}

// TestEnsembleSharedSkipsPrivateKernel checks that the private phase
// never touches a shared parameter: with only pi shared and all
// private kernels disabled, pi still moves while the others stay put.
func TestEnsembleSharedSkipsPrivateKernel(tst *testing.T) {
	s := testSettings(11)
	s.Iterations = 500
	s.Thinning = 10
	var spec SharingSpec
	spec[Pi] = true
	s.Share = spec
	s.Update[Neg] = false
	s.Update[OffR] = false
	s.Update[OffP] = false
	s.UpdateTree = false
	e := NewEnsemble(stubBuilder{}, stubProposal{}, ctree.Extractor{}, stubLik{}, nil, s)

	traces, err := e.Run([]*ptree.Tree{testPhylogeny(tst), testPhylogeny(tst)})
	if err != nil {
		tst.Fatal("Error: ", err)
	}

	piMoved := false
	for _, trace := range traces {
		for _, smp := range trace {
			if smp.Pars.Neg != s.Start.Neg || smp.Pars.OffR != s.Start.OffR || smp.Pars.OffP != s.Start.OffP {
				tst.Fatal("Disabled private parameter moved:", smp.Pars)
			}
			if smp.Pars.Pi != s.Start.Pi {
				piMoved = true
			}
		}
	}
	if !piMoved {
		tst.Error("Shared pi never moved")
	}
}

func TestEnsembleNoDatasets(tst *testing.T) {
	s := testSettings(1)
	e := NewEnsemble(stubBuilder{}, stubProposal{}, ctree.Extractor{}, stubLik{}, nil, s)
	if _, err := e.Run(nil); err == nil {
		tst.Error("Expected an error for an empty dataset list")
	}
}
