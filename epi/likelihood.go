// Package epi implements the epidemiological side of the model: the
// transmission-tree prior, the within-host coalescent likelihood and
// the covariate penalty consumed by the sampler.
package epi

import (
	"math"
	"sort"

	"github.com/epiphylo/transtree/ctree"
	"github.com/epiphylo/transtree/dist"
)

// Likelihood evaluates the two log-probability components of a
// combined tree. It satisfies the sampler's TreeLikelihood contract.
// The observation model is fixed per run: gamma generation and
// sampling time distributions and a cutoff date (possibly +Inf).
type Likelihood struct {
	GenShape float64
	GenScale float64
	SamShape float64
	SamScale float64
	DateT    float64
}

// TTreeLogPrior returns the log prior/likelihood of a transmission
// tree: per host a sampling term (sampled hosts contribute log(pi)
// and the sampling-time density, unsampled hosts the probability of
// escaping sampling before the cutoff), a negative-binomial offspring
// term and gamma generation-time terms. Structurally impossible trees
// score -Inf.
func (l Likelihood) TTreeLogPrior(tt *ctree.TTree, r, p, pi float64) float64 {
	counts := tt.OffspringCounts()
	res := 0.0
	for i := range tt.Hosts {
		h := &tt.Hosts[i]

		if h.Sampled() {
			if h.Sample > l.DateT {
				return math.Inf(-1)
			}
			res += math.Log(pi) + dist.LogGammaPDF(h.Sample-h.Infection, l.SamShape, l.SamScale)
		} else {
			escape := 1.0
			if !math.IsInf(l.DateT, +1) {
				escape = 1 - pi*dist.GammaCDF(l.DateT-h.Infection, l.SamShape, l.SamScale)
			} else {
				escape = 1 - pi
			}
			res += math.Log(escape)
		}

		res += dist.LogNegBinomial(counts[i], r, p)

		if h.Infector >= 0 {
			res += dist.LogGammaPDF(h.Infection-tt.Hosts[h.Infector].Infection, l.GenShape, l.GenScale)
		}

		if math.IsInf(res, -1) {
			return math.Inf(-1)
		}
	}
	return res
}

// hostGenealogy is the within-host part of the genealogy for a single
// host: the infection time, the times where lineages enter the host
// (samples and onward transmissions) and the coalescence times.
type hostGenealogy struct {
	origin float64
	tips   []float64
	coals  []float64
}

// WithinHost returns the log likelihood of the genealogy given the
// transmission history, under a constant-rate coalescent with
// population size parameter neg inside every host.
func (l Likelihood) WithinHost(ct *ctree.CTree, neg float64) float64 {
	if neg <= 0 {
		return math.Inf(-1)
	}

	hosts := splitByHost(ct)
	res := 0.0
	for _, h := range hosts {
		res += coalescentLogLik(h, neg)
		if math.IsInf(res, -1) {
			return math.Inf(-1)
		}
	}
	return res
}

// splitByHost cuts the combined tree at transmission nodes and
// collects each host's coalescent events.
func splitByHost(ct *ctree.CTree) []hostGenealogy {
	var hosts []hostGenealogy

	type frame struct {
		node, host int
	}
	root := ct.Root()
	hosts = append(hosts, hostGenealogy{origin: ct.Node(root).Time})
	stack := []frame{{ct.Node(root).Children[0], 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := ct.Node(f.node)

		switch len(n.Children) {
		case 0:
			hosts[f.host].tips = append(hosts[f.host].tips, n.Time)
		case 1:
			hosts[f.host].tips = append(hosts[f.host].tips, n.Time)
			hosts = append(hosts, hostGenealogy{origin: n.Time})
			stack = append(stack, frame{n.Children[0], len(hosts) - 1})
		default:
			hosts[f.host].coals = append(hosts[f.host].coals, n.Time)
			for _, c := range n.Children {
				stack = append(stack, frame{c, f.host})
			}
		}
	}
	return hosts
}

// coalescentLogLik scores one host's genealogy: going backwards in
// time every pair of lineages coalesces at rate 1/neg; each tip adds
// a lineage, each coalescence removes one.
func coalescentLogLik(h hostGenealogy, neg float64) float64 {
	type event struct {
		t    float64
		coal bool
	}
	events := make([]event, 0, len(h.tips)+len(h.coals))
	for _, t := range h.tips {
		events = append(events, event{t, false})
	}
	for _, t := range h.coals {
		events = append(events, event{t, true})
	}
	// latest first; put tips before coalescences at equal times
	sort.Slice(events, func(i, j int) bool {
		if events[i].t != events[j].t {
			return events[i].t > events[j].t
		}
		return !events[i].coal && events[j].coal
	})

	res := 0.0
	k := 0
	prev := math.Inf(-1)
	for _, e := range events {
		if k > 1 {
			res -= float64(k*(k-1)) / 2 * (prev - e.t) / neg
		}
		if e.coal {
			if k < 2 {
				return math.Inf(-1)
			}
			res -= math.Log(neg)
			k--
		} else {
			k++
		}
		prev = e.t
	}
	if k != 1 {
		return math.Inf(-1)
	}
	if prev <= h.origin {
		return math.Inf(-1)
	}
	return res
}
