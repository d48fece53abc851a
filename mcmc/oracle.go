package mcmc

import (
	"math"
	"math/rand"

	"github.com/epiphylo/transtree/ctree"
	"github.com/epiphylo/transtree/ptree"
)

// TreeBuilder constructs the initial combined tree from a dated
// phylogeny.
type TreeBuilder interface {
	Build(pt *ptree.Tree) (*ctree.CTree, error)
}

// ProposalGenerator draws a candidate combined tree together with the
// Hastings correction factor of the move. The candidate must be fully
// independent of the input tree.
type ProposalGenerator interface {
	Propose(ct *ctree.CTree, rng *rand.Rand) (*ctree.CTree, float64)
}

// TransmissionExtractor projects a combined tree onto its host-to-host
// transmission-tree view.
type TransmissionExtractor interface {
	Extract(ct *ctree.CTree) *ctree.TTree
}

// TreeLikelihood evaluates the two log-probability components of a
// state: the transmission-tree prior given the offspring and sampling
// parameters, and the genealogy-within-hosts likelihood given neg.
// Either may return -Inf for structurally invalid candidates; that is
// an ordinary rejection, not an error.
type TreeLikelihood interface {
	TTreeLogPrior(tt *ctree.TTree, r, p, pi float64) float64
	WithinHost(ct *ctree.CTree, neg float64) float64
}

// Penalty is the 3-component epidemiological penalty breakdown.
type Penalty struct {
	Exposure float64 `json:"exposure"`
	Contact  float64 `json:"contact"`
	Location float64 `json:"location"`
}

// Total returns the summed penalty.
func (p Penalty) Total() float64 {
	return p.Exposure + p.Contact + p.Location
}

// IsNaN reports an undefined penalty; the sampler reacts by ending
// the run early.
func (p Penalty) IsNaN() bool {
	return math.IsNaN(p.Exposure) || math.IsNaN(p.Contact) || math.IsNaN(p.Location)
}

// PenaltyEvaluator scores a transmission tree against epidemiological
// data. The diagnostic payload is only populated when breakdown
// tracking is requested.
type PenaltyEvaluator interface {
	Evaluate(tt *ctree.TTree, wantBreakdown bool) (Penalty, string)
}

// HyperParams are the fixed observation-model hyperparameters:
// generation-time and sampling-time gamma distributions and the
// observation cutoff date (may be +Inf).
type HyperParams struct {
	GenShape float64 `json:"genShape"`
	GenScale float64 `json:"genScale"`
	SamShape float64 `json:"samShape"`
	SamScale float64 `json:"samScale"`
	DateT    float64 `json:"dateT"`
}

// HyperFromMeanSD converts mean/sd parametrizations of the generation
// and sampling time distributions to shape/scale.
func HyperFromMeanSD(genMean, genSD, samMean, samSD, dateT float64) HyperParams {
	return HyperParams{
		GenShape: (genMean / genSD) * (genMean / genSD),
		GenScale: genSD * genSD / genMean,
		SamShape: (samMean / samSD) * (samMean / samSD),
		SamScale: samSD * samSD / samMean,
		DateT:    dateT,
	}
}
