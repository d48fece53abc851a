package ctree

import (
	"fmt"

	"github.com/epiphylo/transtree/ptree"
)

// Builder constructs an initial combined tree from a dated phylogeny.
// Every internal genealogy node is assigned to the host of the child
// subtree holding the earliest sample; a transmission event is placed
// at the midpoint of every edge crossing hosts, and the index case is
// infected half a mean generation time above the genealogy root. It
// satisfies the sampler's TreeBuilder contract.
type Builder struct {
	// GenShape and GenScale parametrize the generation-time
	// distribution used to position the index infection.
	GenShape float64
	GenScale float64
}

// Build creates the initial combined tree. The phylogeny must already
// be validated.
func (b Builder) Build(pt *ptree.Tree) (*CTree, error) {
	if pt.NLeaves() < 2 {
		return nil, fmt.Errorf("phylogeny has %d leaves, need at least 2", pt.NLeaves())
	}

	pnodes := pt.Nodes()
	nodes := make([]Node, len(pnodes))
	for i, pn := range pnodes {
		nodes[i] = Node{
			Time:   pn.Time,
			Parent: -1,
			Name:   pn.Name,
		}
		if pn.Parent != nil {
			nodes[i].Parent = pn.Parent.ID
		}
		for _, c := range pn.ChildNodes() {
			nodes[i].Children = append(nodes[i].Children, c.ID)
		}
	}

	// Host of each genealogy node: leaves own themselves, internal
	// nodes follow the child subtree with the earliest sample.
	host := make([]int, len(pnodes))
	earliest := make([]float64, len(pnodes))
	var assign func(pn *ptree.Node)
	assign = func(pn *ptree.Node) {
		if pn.IsTerminal() {
			host[pn.ID] = pn.ID
			earliest[pn.ID] = pn.Time
			return
		}
		for _, c := range pn.ChildNodes() {
			assign(c)
		}
		best := pn.ChildNodes()[0]
		for _, c := range pn.ChildNodes()[1:] {
			if earliest[c.ID] < earliest[best.ID] {
				best = c
			}
		}
		host[pn.ID] = host[best.ID]
		earliest[pn.ID] = earliest[best.ID]
	}
	assign(pt.Node)

	t := &CTree{nodes: nodes, root: pt.Node.ID}

	// Cut every host-crossing edge with a transmission event at the
	// edge midpoint.
	for i, pn := range pnodes {
		if pn.Parent == nil {
			continue
		}
		if host[i] != host[pn.Parent.ID] {
			p := pn.Parent.ID
			mid := (t.nodes[p].Time + t.nodes[i].Time) / 2
			t.insertTrans(p, i, mid)
		}
	}

	// Index case infection above the genealogy root.
	stem := b.GenShape * b.GenScale / 2
	if stem <= 0 {
		stem = 1
	}
	oldRoot := t.root
	t.nodes = append(t.nodes, Node{
		Time:     t.nodes[oldRoot].Time - stem,
		Parent:   -1,
		Children: []int{oldRoot},
	})
	t.root = len(t.nodes) - 1
	t.nodes[oldRoot].Parent = t.root

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// insertTrans splits the edge parent->child with a transmission node
// at time tm and returns the new node index.
func (t *CTree) insertTrans(parent, child int, tm float64) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		Time:     tm,
		Parent:   parent,
		Children: []int{child},
	})
	pc := t.nodes[parent].Children
	for i, c := range pc {
		if c == child {
			pc[i] = id
		}
	}
	t.nodes[child].Parent = id
	return id
}

// removeTrans deletes the interior transmission node i, reattaching
// its child to its parent. Node indices above i shift down by one.
func (t *CTree) removeTrans(i int) {
	n := t.nodes[i]
	parent, child := n.Parent, n.Children[0]
	pc := t.nodes[parent].Children
	for j, c := range pc {
		if c == i {
			pc[j] = child
		}
	}
	t.nodes[child].Parent = parent

	last := len(t.nodes) - 1
	if i != last {
		t.nodes[i] = t.nodes[last]
		// rewire references to the moved node
		if t.nodes[i].Parent >= 0 {
			mc := t.nodes[t.nodes[i].Parent].Children
			for j, c := range mc {
				if c == last {
					mc[j] = i
				}
			}
		}
		for _, c := range t.nodes[i].Children {
			t.nodes[c].Parent = i
		}
		if t.root == last {
			t.root = i
		}
	}
	t.nodes = t.nodes[:last]
}
