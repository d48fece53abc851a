package main

import (
	"math"

	"github.com/epiphylo/transtree/mcmc"
)

// RunSummary is storing transtree run summary information.
type RunSummary struct {
	// Version stores transtree version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Chains stores one summary per sampled dataset.
	Chains []ChainSummary `json:"chains"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}

// ChainSummary is storing summary information for one chain trace.
type ChainSummary struct {
	// NSamples is the number of recorded posterior samples.
	NSamples int `json:"nSamples"`
	// Stopped is true if the chain terminated before its iteration
	// budget on numerical breakdown.
	Stopped bool `json:"stopped"`
	// MeanParameters holds the posterior mean of every parameter.
	MeanParameters map[string]float64 `json:"meanParameters,omitempty"`
	// MaxPosterior is the highest recorded joint log posterior.
	MaxPosterior float64 `json:"maxPosterior"`
	// MaxParameters is the parameter values at the highest posterior.
	MaxParameters map[string]float64 `json:"maxParameters,omitempty"`
	// Sources counts how often each host was sampled as the index case.
	Sources map[string]int `json:"sources,omitempty"`
	// Accept is the final acceptance rates.
	Accept *mcmc.AcceptanceRates `json:"accept,omitempty"`
}

// newChainSummary condenses a posterior trace; expected is the number
// of samples a complete run records.
func newChainSummary(trace []mcmc.PosteriorSample, expected int) (cs ChainSummary) {
	cs.NSamples = len(trace)
	cs.Stopped = len(trace) < expected
	cs.MaxPosterior = math.Inf(-1)
	if len(trace) == 0 {
		return cs
	}

	cs.Sources = make(map[string]int)
	mean := make(map[string]float64, mcmc.NumParameters)
	for _, s := range trace {
		cs.Sources[s.Source]++
		for id := mcmc.Neg; id < mcmc.NumParameters; id++ {
			mean[id.String()] += s.Pars.Get(id)
		}
		if s.Posterior > cs.MaxPosterior {
			cs.MaxPosterior = s.Posterior
			cs.MaxParameters = s.Pars.Map()
		}
	}
	for name := range mean {
		mean[name] /= float64(len(trace))
	}
	cs.MeanParameters = mean

	last := trace[len(trace)-1]
	acc := last.Accept
	cs.Accept = &acc
	return cs
}
