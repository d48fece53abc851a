package ctree

import (
	"math/rand"
)

// Proposal draws Metropolis candidates for the combined tree. Three
// reversible moves: sliding a transmission time along its edge
// (symmetric), adding a transmission event at a uniform position on a
// uniform edge, and removing an interior transmission event. The
// returned Hastings factor makes the add/remove pair balance. It
// satisfies the sampler's ProposalGenerator contract.
type Proposal struct {
	// RootWindow is the width of the uniform window (ending at the
	// index host's first event) used when sliding the root
	// transmission time.
	RootWindow float64
}

// Propose returns an independent candidate tree and its Hastings
// factor. The input tree is never modified.
func (pg Proposal) Propose(ct *CTree, rng *rand.Rand) (*CTree, float64) {
	t := ct.Copy()

	u := rng.Float64()
	switch {
	case u < 0.5:
		return pg.slide(t, rng)
	case u < 0.75:
		return pg.add(t, rng)
	default:
		return pg.remove(t, rng)
	}
}

// slide moves one transmission time along its edge. The proposal
// window depends only on the fixed endpoints, so the move is symmetric.
func (pg Proposal) slide(t *CTree, rng *rand.Rand) (*CTree, float64) {
	trans := t.transNodes(false)
	i := trans[rng.Intn(len(trans))]
	n := t.Node(i)
	child := t.Node(n.Children[0])

	if i == t.root {
		w := pg.RootWindow
		if w <= 0 {
			w = 1
		}
		n.Time = child.Time - rng.Float64()*w
	} else {
		parent := t.Node(n.Parent)
		n.Time = parent.Time + rng.Float64()*(child.Time-parent.Time)
	}
	return t, 1
}

// add inserts a transmission event on a random edge. Forward density
// is 1/(nEdges*len); the reverse remove picks among the interior
// transmission nodes of the candidate.
func (pg Proposal) add(t *CTree, rng *rand.Rand) (*CTree, float64) {
	// edges are identified by their child node
	child := rng.Intn(t.NNodes())
	for child == t.root {
		child = rng.Intn(t.NNodes())
	}
	parent := t.Node(child).Parent
	length := t.Node(child).Time - t.Node(parent).Time
	tm := t.Node(parent).Time + rng.Float64()*length

	nEdges := float64(t.nEdges())
	t.insertTrans(parent, child, tm)
	mNew := float64(len(t.transNodes(true)))

	hastings := nEdges * length / mNew
	return t, hastings
}

// remove deletes a random interior transmission event. The reverse
// add must pick the merged edge and hit the removed time.
func (pg Proposal) remove(t *CTree, rng *rand.Rand) (*CTree, float64) {
	trans := t.transNodes(true)
	if len(trans) == 0 {
		// nothing removable, fall back to a symmetric slide
		return pg.slide(t, rng)
	}
	m := float64(len(trans))
	i := trans[rng.Intn(len(trans))]
	n := t.Node(i)
	mergedLen := t.Node(n.Children[0]).Time - t.Node(n.Parent).Time

	t.removeTrans(i)

	hastings := m / (float64(t.nEdges()) * mergedLen)
	return t, hastings
}
