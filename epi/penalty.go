package epi

import (
	"fmt"
	"math"
	"strings"

	"github.com/epiphylo/transtree/ctree"
	"github.com/epiphylo/transtree/mcmc"
)

// Evaluator scores a transmission tree against epidemiological
// covariates. Each infection pair between sampled hosts is checked
// against the recorded contacts, the infectee's exposure window and
// the host locations; the penalty counts the violated rules per
// category. It satisfies the sampler's PenaltyEvaluator contract.
type Evaluator struct {
	data *Data
}

// NewEvaluator creates an evaluator over a loaded dataset.
func NewEvaluator(data *Data) *Evaluator {
	return &Evaluator{data: data}
}

// Evaluate counts rule violations in tt. An inconsistent dataset
// yields a NaN penalty, which the sampler treats as a controlled stop.
// The track and penalize code paths in the sampler both receive the
// same breakdown from here.
func (e *Evaluator) Evaluate(tt *ctree.TTree, wantBreakdown bool) (mcmc.Penalty, string) {
	if err := e.data.check(); err != nil {
		nan := math.NaN()
		return mcmc.Penalty{Exposure: nan, Contact: nan, Location: nan}, err.Error()
	}

	var pen mcmc.Penalty
	var diag []string

	for i := range tt.Hosts {
		h := &tt.Hosts[i]
		if !h.Sampled() {
			continue
		}

		if w, ok := e.data.exposure[h.Name]; ok {
			if h.Infection < w[0] || h.Infection > w[1] {
				pen.Exposure++
				if wantBreakdown {
					diag = append(diag, fmt.Sprintf("exposure: %s infected at %v outside [%v,%v]", h.Name, h.Infection, w[0], w[1]))
				}
			}
		}

		if h.Infector < 0 {
			continue
		}
		inf := &tt.Hosts[h.Infector]
		if !inf.Sampled() {
			continue
		}

		if e.data.contact != nil && !e.data.inContact(inf.Name, h.Name) {
			pen.Contact++
			if wantBreakdown {
				diag = append(diag, fmt.Sprintf("contact: no recorded contact %s-%s", inf.Name, h.Name))
			}
		}

		li, oki := e.data.location[inf.Name]
		lj, okj := e.data.location[h.Name]
		if oki && okj && li != lj {
			pen.Location++
			if wantBreakdown {
				diag = append(diag, fmt.Sprintf("location: %s (%s) infected %s (%s)", inf.Name, li, h.Name, lj))
			}
		}
	}

	return pen, strings.Join(diag, "; ")
}
