// Package ptree implements dated pathogen phylogenies: Newick parsing,
// node time assignment and input validation for the sampler.
package ptree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type mode int

const (
	normal mode = iota
	length
)

// Tree is a dated phylogeny. Node times are in calendar units, leaves
// carry sampling times.
type Tree struct {
	*Node
	nNodes int
	nodes  []*Node
}

// Node is a phylogeny node. Time is absolute; BranchLength is the
// distance to the parent as read from the input.
type Node struct {
	Name         string
	BranchLength float64
	Time         float64
	Parent       *Node
	childNodes   []*Node
	ID           int
	LeafID       int
}

// NewNode creates a new node with a given parent.
func NewNode(parent *Node, nodeID int) *Node {
	return &Node{Parent: parent, ID: nodeID, LeafID: -1}
}

// Copy creates copy of node with empty parent and children.
func (node *Node) Copy() *Node {
	return &Node{
		Name:         node.Name,
		BranchLength: node.BranchLength,
		Time:         node.Time,
		childNodes:   make([]*Node, 0, len(node.childNodes)),
		ID:           node.ID,
		LeafID:       node.LeafID,
	}
}

// AddChild adds a child node.
func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

// ChildNodes returns the child nodes.
func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

// IsRoot returns true if the node has no parent.
func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

// IsTerminal returns true for a leaf.
func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}

func (node *Node) String() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s:%0.6f", node.Name, node.BranchLength)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.String()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	s += fmt.Sprintf("):%0.6f", node.BranchLength)
	if node.IsRoot() {
		s += ";"
	}
	return s
}

func (node *Node) walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, child := range node.childNodes {
		child.walk(ch, filter)
	}
}

func (node *Node) nSubNodes() (size int) {
	for _, child := range node.childNodes {
		size += child.nSubNodes()
	}
	return size + 1
}

// NNodes returns the total number of nodes.
func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.nSubNodes()
	}
	return tree.nNodes
}

// Walker returns a channel iterating over nodes matching the filter in
// preorder.
func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.walk(ch, filter)
	close(ch)
	return ch
}

// Nodes returns all nodes indexed by node ID.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.ID] = node
		}
	}
	return tree.nodes
}

// Leaves returns a channel of terminal nodes.
func (tree *Tree) Leaves() <-chan *Node {
	return tree.Walker(func(n *Node) bool {
		return n.IsTerminal()
	})
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for range tree.Leaves() {
		i++
	}
	return
}

// Copy creates an independent copy of the tree.
func (tree *Tree) Copy() (newTree *Tree) {
	nNodes := tree.NNodes()
	newTree = &Tree{
		nNodes: nNodes,
		nodes:  make([]*Node, nNodes),
	}

	for i, node := range tree.Nodes() {
		if i != node.ID {
			panic("node id mismatch")
		}
		newTree.nodes[i] = node.Copy()
	}

	for i, node := range tree.Nodes() {
		newNode := newTree.nodes[i]
		for _, child := range node.childNodes {
			newNode.AddChild(newTree.nodes[child.ID])
		}
	}

	newTree.Node = newTree.nodes[tree.Node.ID]
	newTree.Node.Parent = nil

	return
}

func isSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', ';', ',':
		return true
	}
	return false
}

// newickSplit is a bufio.SplitFunc tokenizing Newick input.
func newickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if isSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || isSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick parses a Newick phylogeny.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(newickSplit)

	nodeID := 0
	leafID := 0

	node := NewNode(nil, nodeID)
	tree = &Tree{Node: node}
	nodeID++

	m := normal

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := NewNode(nil, nodeID)
			nodeID++
			node.AddChild(subNode)
			node = subNode
		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := NewNode(nil, nodeID)
			nodeID++
			node.Parent.AddChild(subNode)
			node = subNode
		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case ":":
			m = length
		case ";":
			return tree, scanner.Err()
		default:
			switch m {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
				m = normal
			default:
				node.LeafID = leafID
				leafID++
				node.Name = text
			}
		}
	}

	return tree, scanner.Err()
}

// AssignTimes computes absolute node times from branch lengths so that
// the latest leaf is at lastDate. Leaf names of the form name_date
// override the branch-length dating for that leaf's time check.
func (tree *Tree) AssignTimes(lastDate float64) {
	var assign func(node *Node, t float64)
	maxT := math.Inf(-1)
	assign = func(node *Node, t float64) {
		node.Time = t
		if node.IsTerminal() && t > maxT {
			maxT = t
		}
		for _, child := range node.childNodes {
			assign(child, t+child.BranchLength)
		}
	}
	assign(tree.Node, 0)

	shift := lastDate - maxT
	for node := range tree.Walker(nil) {
		node.Time += shift
	}
}

// LeafDate extracts a date from a name_date leaf label. The second
// return value is false if the label carries no parseable date.
func LeafDate(name string) (float64, bool) {
	i := strings.LastIndex(name, "_")
	if i < 0 || i == len(name)-1 {
		return 0, false
	}
	d, err := strconv.ParseFloat(name[i+1:], 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// Validate checks the phylogeny before inference: all branch lengths
// must be non-negative and the genealogy must be binary.
func (tree *Tree) Validate() error {
	for node := range tree.Walker(nil) {
		if node.BranchLength < 0 {
			return fmt.Errorf("negative branch length %v on node %d", node.BranchLength, node.ID)
		}
		if !node.IsRoot() && node.Time <= node.Parent.Time {
			return fmt.Errorf("node %d time %v not after parent time %v", node.ID, node.Time, node.Parent.Time)
		}
		if n := len(node.childNodes); n != 0 && n != 2 {
			return fmt.Errorf("node %d has %d children, genealogy must be binary", node.ID, n)
		}
	}
	return nil
}

// JitterTies perturbs tied leaf times with sub-resolution random
// jitter. Originally distinct times keep their relative order; ties
// are broken randomly.
func (tree *Tree) JitterTies(rng *rand.Rand) {
	var leaves []*Node
	for node := range tree.Leaves() {
		leaves = append(leaves, node)
	}
	times := make([]float64, len(leaves))
	for i, l := range leaves {
		times[i] = l.Time
	}
	sort.Float64s(times)

	// Smallest gap between distinct sampling times bounds the jitter.
	gap := math.Inf(+1)
	for i := 1; i < len(times); i++ {
		if d := times[i] - times[i-1]; d > 0 && d < gap {
			gap = d
		}
	}
	eps := 1e-6
	if !math.IsInf(gap, +1) {
		eps = gap * 1e-3
	}

	seen := make(map[float64]bool, len(leaves))
	for _, l := range leaves {
		if seen[l.Time] {
			l.Time += rng.Float64() * eps
		} else {
			seen[l.Time] = true
		}
	}
}
