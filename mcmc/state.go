package mcmc

import (
	"math"
	"math/rand"

	"github.com/epiphylo/transtree/ctree"
)

// ChainState is the full state of one chain: the combined tree, its
// transmission-tree view, the parameter block and the cached
// log-probability components. PTTree includes the penalty term when
// penalization is enabled; both cached components are always
// consistent with the tree and parameters they sit next to.
type ChainState struct {
	CTree  *ctree.CTree
	TTree  *ctree.TTree
	Pars   ParameterBlock
	PTTree float64
	PPTree float64

	penalty Penalty
	diag    string

	rng     *rand.Rand
	iter    int
	treeAcc int
	parAcc  [NumParameters]int
	broken  bool
}

// AcceptanceRates are the running acceptance rates: acceptances so
// far divided by iterations so far.
type AcceptanceRates struct {
	Tree  float64              `json:"tree"`
	Param [NumParameters]float64 `json:"parameters"`
}

func (cs *ChainState) acceptanceRates() (a AcceptanceRates) {
	if cs.iter == 0 {
		return
	}
	a.Tree = float64(cs.treeAcc) / float64(cs.iter)
	for id := Neg; id < NumParameters; id++ {
		a.Param[id] = float64(cs.parAcc[id]) / float64(cs.iter)
	}
	return
}

// finiteState returns true while both cached components are finite.
func (cs *ChainState) finiteState() bool {
	return !math.IsInf(cs.PTTree, 0) && !math.IsNaN(cs.PTTree) &&
		!math.IsInf(cs.PPTree, 0) && !math.IsNaN(cs.PPTree)
}
