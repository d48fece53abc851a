// Package ctree implements the combined tree: a pathogen genealogy
// together with the transmission history linking hosts. A combined
// tree is never mutated in place by the sampler; proposals work on a
// full copy and the accepted copy replaces the state wholesale.
package ctree

import (
	"fmt"
	"math"
)

// Node is a combined tree node. A leaf (no children) is a sampled
// genome and carries the host label; a node with a single child is a
// transmission event (the child lineage enters a new host at Time); a
// node with two children is a within-host coalescence.
type Node struct {
	Time     float64
	Parent   int
	Children []int
	Name     string
}

// CTree is a combined genealogy/transmission tree. The root is always
// a transmission node: the infection of the index case.
type CTree struct {
	nodes []Node
	root  int
}

// New creates a combined tree from a node slice. The parent of the
// root must be -1.
func New(nodes []Node, root int) *CTree {
	return &CTree{nodes: nodes, root: root}
}

// NNodes returns the number of nodes.
func (t *CTree) NNodes() int {
	return len(t.nodes)
}

// Root returns the root node index.
func (t *CTree) Root() int {
	return t.root
}

// Node returns a pointer to node i.
func (t *CTree) Node(i int) *Node {
	return &t.nodes[i]
}

// IsLeaf returns true if node i is a sampled genome.
func (t *CTree) IsLeaf(i int) bool {
	return len(t.nodes[i].Children) == 0
}

// IsTrans returns true if node i is a transmission event.
func (t *CTree) IsTrans(i int) bool {
	return len(t.nodes[i].Children) == 1
}

// Copy creates an independent copy of the tree.
func (t *CTree) Copy() *CTree {
	nodes := make([]Node, len(t.nodes))
	for i, n := range t.nodes {
		nodes[i] = Node{
			Time:     n.Time,
			Parent:   n.Parent,
			Children: append([]int(nil), n.Children...),
			Name:     n.Name,
		}
	}
	return &CTree{nodes: nodes, root: t.root}
}

// Validate checks structural invariants: a transmission root, strictly
// increasing times along every branch, named leaves, at most two
// children per node.
func (t *CTree) Validate() error {
	if !t.IsTrans(t.root) {
		return fmt.Errorf("root node %d is not a transmission event", t.root)
	}
	if t.nodes[t.root].Parent != -1 {
		return fmt.Errorf("root node %d has a parent", t.root)
	}
	for i, n := range t.nodes {
		if len(n.Children) > 2 {
			return fmt.Errorf("node %d has %d children", i, len(n.Children))
		}
		if len(n.Children) == 0 && n.Name == "" {
			return fmt.Errorf("leaf %d has no name", i)
		}
		for _, c := range n.Children {
			if t.nodes[c].Parent != i {
				return fmt.Errorf("parent link mismatch at node %d", c)
			}
			if t.nodes[c].Time <= n.Time {
				return fmt.Errorf("node %d time %v not after parent time %v", c, t.nodes[c].Time, n.Time)
			}
		}
	}
	return nil
}

// transNodes returns the indices of all transmission nodes. When
// interior is true the root transmission is excluded.
func (t *CTree) transNodes(interior bool) (res []int) {
	for i := range t.nodes {
		if t.IsTrans(i) && !(interior && i == t.root) {
			res = append(res, i)
		}
	}
	return
}

// nEdges returns the number of parent-child links.
func (t *CTree) nEdges() int {
	return len(t.nodes) - 1
}

// MaxTime returns the latest node time.
func (t *CTree) MaxTime() float64 {
	max := math.Inf(-1)
	for _, n := range t.nodes {
		if n.Time > max {
			max = n.Time
		}
	}
	return max
}
