package ctree

import (
	"math"
)

// Unsampled is the source label used when the index case carries no
// sampled genome.
const Unsampled = "Unsampled"

// Host is one host of a transmission tree: when it was infected, by
// whom, and when (if ever) it was sampled.
type Host struct {
	// Name is the label of the earliest sampled genome in this
	// host, empty for an unsampled host.
	Name string
	// Infection is the infection time.
	Infection float64
	// Infector indexes the infecting host, -1 for the index case.
	Infector int
	// Sample is the earliest sampling time, NaN when unsampled.
	Sample float64
}

// Sampled returns true if the host was sampled.
func (h *Host) Sampled() bool {
	return !math.IsNaN(h.Sample)
}

// TTree is the host-to-host projection of a combined tree. Host 0 is
// always the index case.
type TTree struct {
	Hosts []Host
}

// Source returns the label of the index case, or Unsampled if the
// root transmission leads to a host without sampled genomes.
func (tt *TTree) Source() string {
	if len(tt.Hosts) == 0 || tt.Hosts[0].Name == "" {
		return Unsampled
	}
	return tt.Hosts[0].Name
}

// OffspringCounts returns the number of secondary cases per host.
func (tt *TTree) OffspringCounts() []int {
	counts := make([]int, len(tt.Hosts))
	for _, h := range tt.Hosts {
		if h.Infector >= 0 {
			counts[h.Infector]++
		}
	}
	return counts
}

// Extractor derives the transmission-tree view of a combined tree by
// cutting it at transmission nodes. It satisfies the sampler's
// TransmissionExtractor contract.
type Extractor struct{}

// Extract computes the host partition of ct. Hosts are numbered in
// preorder, index case first.
func (Extractor) Extract(ct *CTree) *TTree {
	tt := &TTree{}

	// stack of (node, host) pairs, preorder
	type frame struct {
		node, host int
	}
	root := ct.Root()
	tt.Hosts = append(tt.Hosts, Host{
		Infection: ct.Node(root).Time,
		Infector:  -1,
		Sample:    math.NaN(),
	})
	stack := []frame{{ct.Node(root).Children[0], 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := ct.Node(f.node)

		switch len(n.Children) {
		case 0:
			h := &tt.Hosts[f.host]
			if !h.Sampled() || n.Time < h.Sample {
				h.Name = n.Name
				h.Sample = n.Time
			}
		case 1:
			// transmission into a fresh host
			tt.Hosts = append(tt.Hosts, Host{
				Infection: n.Time,
				Infector:  f.host,
				Sample:    math.NaN(),
			})
			stack = append(stack, frame{n.Children[0], len(tt.Hosts) - 1})
		default:
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{n.Children[i], f.host})
			}
		}
	}

	return tt
}
