package ctree

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/epiphylo/transtree/ptree"
)

// twoHosts builds a small combined tree by hand:
//
//	0: index infection at t=0
//	1: coalescence at t=1
//	2: sample A at t=2
//	3: transmission at t=1.5
//	4: sample B at t=2.5
func twoHosts() *CTree {
	nodes := []Node{
		{Time: 0, Parent: -1, Children: []int{1}},
		{Time: 1, Parent: 0, Children: []int{2, 3}},
		{Time: 2, Parent: 1, Name: "A"},
		{Time: 1.5, Parent: 1, Children: []int{4}},
		{Time: 2.5, Parent: 3, Name: "B"},
	}
	return New(nodes, 0)
}

func TestValidate(tst *testing.T) {
	t := twoHosts()
	if err := t.Validate(); err != nil {
		tst.Error("Unexpected error: ", err)
	}

	t = twoHosts()
	t.Node(3).Time = 0.5 // before its parent
	if err := t.Validate(); err == nil {
		tst.Error("Expected time ordering error")
	}

	t = twoHosts()
	t.Node(2).Name = ""
	if err := t.Validate(); err == nil {
		tst.Error("Expected unnamed leaf error")
	}

	nodes := []Node{
		{Time: 0, Parent: -1, Children: []int{1, 2}},
		{Time: 1, Parent: 0, Name: "A"},
		{Time: 1, Parent: 0, Name: "B"},
	}
	if err := New(nodes, 0).Validate(); err == nil {
		tst.Error("Expected non-transmission root error")
	}
}

func TestCopyIndependence(tst *testing.T) {
	t := twoHosts()
	c := t.Copy()
	c.Node(3).Time = 1.2
	c.Node(1).Children[0] = 0
	if t.Node(3).Time != 1.5 || t.Node(1).Children[0] != 2 {
		tst.Error("Copy is not independent")
	}
}

func TestExtract(tst *testing.T) {
	tt := Extractor{}.Extract(twoHosts())

	if len(tt.Hosts) != 2 {
		tst.Fatal("Expected 2 hosts, got", len(tt.Hosts))
	}
	idx := tt.Hosts[0]
	if idx.Infector != -1 || idx.Infection != 0 || idx.Name != "A" || idx.Sample != 2 {
		tst.Error("Bad index case:", idx)
	}
	h := tt.Hosts[1]
	if h.Infector != 0 || h.Infection != 1.5 || h.Name != "B" || h.Sample != 2.5 {
		tst.Error("Bad secondary case:", h)
	}
	if tt.Source() != "A" {
		tst.Error("Expected source A, got", tt.Source())
	}

	counts := tt.OffspringCounts()
	if counts[0] != 1 || counts[1] != 0 {
		tst.Error("Bad offspring counts:", counts)
	}
}

func TestExtractUnsampledSource(tst *testing.T) {
	// the index host contains no samples, only an onward transmission
	nodes := []Node{
		{Time: 0, Parent: -1, Children: []int{1}},
		{Time: 0.5, Parent: 0, Children: []int{2}},
		{Time: 1, Parent: 1, Children: []int{3, 4}},
		{Time: 2, Parent: 2, Name: "A"},
		{Time: 2.5, Parent: 2, Name: "B"},
	}
	tt := Extractor{}.Extract(New(nodes, 0))
	if len(tt.Hosts) != 2 {
		tst.Fatal("Expected 2 hosts, got", len(tt.Hosts))
	}
	if tt.Hosts[0].Sampled() {
		tst.Error("Index case should be unsampled")
	}
	if tt.Source() != Unsampled {
		tst.Error("Expected unsampled source, got", tt.Source())
	}
}

func TestExtractEarliestSample(tst *testing.T) {
	// two samples in one host, the earlier one names it
	nodes := []Node{
		{Time: 0, Parent: -1, Children: []int{1}},
		{Time: 1, Parent: 0, Children: []int{2, 3}},
		{Time: 3, Parent: 1, Name: "late"},
		{Time: 2, Parent: 1, Name: "early"},
	}
	tt := Extractor{}.Extract(New(nodes, 0))
	if len(tt.Hosts) != 1 {
		tst.Fatal("Expected 1 host, got", len(tt.Hosts))
	}
	if tt.Hosts[0].Name != "early" || tt.Hosts[0].Sample != 2 {
		tst.Error("Expected the earliest sample to label the host:", tt.Hosts[0])
	}
}

func TestBuild(tst *testing.T) {
	pt, err := ptree.ParseNewick(strings.NewReader("((A:1,B:2):1,C:3);"))
	if err != nil {
		tst.Fatal("Error parsing tree: ", err)
	}
	pt.AssignTimes(3)

	t, err := Builder{GenShape: 2, GenScale: 1}.Build(pt)
	if err != nil {
		tst.Fatal("Error building combined tree: ", err)
	}
	if err := t.Validate(); err != nil {
		tst.Error("Invalid combined tree: ", err)
	}
	if !t.IsTrans(t.Root()) {
		tst.Error("Root is not a transmission event")
	}

	tt := Extractor{}.Extract(t)
	if len(tt.Hosts) != 3 {
		tst.Error("Expected 3 hosts, got", len(tt.Hosts))
	}
	sampled := 0
	for i := range tt.Hosts {
		h := &tt.Hosts[i]
		if h.Sampled() {
			sampled++
		}
		if h.Infector >= 0 && tt.Hosts[h.Infector].Infection >= h.Infection {
			tst.Error("Infection before the infector's infection")
		}
	}
	if sampled != 3 {
		tst.Error("Expected 3 sampled hosts, got", sampled)
	}
}

func TestBuildTooSmall(tst *testing.T) {
	pt, err := ptree.ParseNewick(strings.NewReader("A:1;"))
	if err != nil {
		tst.Fatal("Error parsing tree: ", err)
	}
	pt.AssignTimes(1)
	if _, err := (Builder{GenShape: 2, GenScale: 1}).Build(pt); err == nil {
		tst.Error("Expected error for a single-leaf phylogeny")
	}
}

func TestProposeValid(tst *testing.T) {
	pg := Proposal{RootWindow: 2}
	rng := rand.New(rand.NewSource(1))

	t := twoHosts()
	for i := 0; i < 2000; i++ {
		cand, hastings := pg.Propose(t, rng)
		if err := cand.Validate(); err != nil {
			tst.Fatal("Invalid candidate: ", err)
		}
		if hastings <= 0 || math.IsInf(hastings, 0) || math.IsNaN(hastings) {
			tst.Fatal("Bad Hastings factor:", hastings)
		}
		// candidates accumulate over the walk
		t = cand
	}
}

func TestProposeLeavesInput(tst *testing.T) {
	pg := Proposal{RootWindow: 2}
	rng := rand.New(rand.NewSource(1))
	t := twoHosts()
	ref := t.Copy()

	for i := 0; i < 500; i++ {
		pg.Propose(t, rng)
	}
	if t.NNodes() != ref.NNodes() {
		tst.Fatal("Input tree changed size")
	}
	for i := 0; i < t.NNodes(); i++ {
		if t.Node(i).Time != ref.Node(i).Time || t.Node(i).Parent != ref.Node(i).Parent {
			tst.Error("Input tree modified at node", i)
		}
	}
}

func TestInsertRemoveTrans(tst *testing.T) {
	t := twoHosts()
	id := t.insertTrans(1, 2, 1.5)
	if err := t.Validate(); err != nil {
		tst.Fatal("Invalid after insert: ", err)
	}
	if !t.IsTrans(id) {
		tst.Error("Inserted node is not a transmission event")
	}
	t.removeTrans(id)
	if err := t.Validate(); err != nil {
		tst.Fatal("Invalid after remove: ", err)
	}
	if t.NNodes() != 5 {
		tst.Error("Expected 5 nodes after the roundtrip, got", t.NNodes())
	}
	tt := Extractor{}.Extract(t)
	if len(tt.Hosts) != 2 {
		tst.Error("Expected 2 hosts after the roundtrip, got", len(tt.Hosts))
	}
}
