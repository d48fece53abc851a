package mcmc

import (
	"github.com/epiphylo/transtree/ctree"
)

// PosteriorSample is one thinned snapshot of a chain. All fields are
// copies; the sample stays valid after the chain moves on.
type PosteriorSample struct {
	Iteration int             `json:"iteration"`
	CTree     *ctree.CTree    `json:"-"`
	PTTree    float64         `json:"pTTree"`
	PPTree    float64         `json:"pPTree"`
	Posterior float64         `json:"posterior"`
	Pars      ParameterBlock  `json:"parameters"`
	Hyper     HyperParams     `json:"hyperParameters"`
	Accept    AcceptanceRates `json:"acceptanceRates"`
	Penalty   *Penalty        `json:"penalty,omitempty"`
	Diag      string          `json:"penaltyDiagnostics,omitempty"`
	Source    string          `json:"source"`
}

// Recorder is a fixed-capacity trace buffer filled at thinning
// boundaries.
type Recorder struct {
	samples []PosteriorSample
}

// NewRecorder creates a recorder with room for capacity samples.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{samples: make([]PosteriorSample, 0, capacity)}
}

// Record appends a sample.
func (r *Recorder) Record(s PosteriorSample) {
	r.samples = append(r.samples, s)
}

// Samples returns the recorded trace in order.
func (r *Recorder) Samples() []PosteriorSample {
	return r.samples
}
