package mcmc

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/epiphylo/transtree/dist"
	"github.com/epiphylo/transtree/ptree"
)

// Ensemble samples N chains over N datasets under a model where the
// parameters named by the SharingSpec take one common value across
// all chains at all times, while the remaining parameters evolve
// independently per chain.
//
// Every iteration runs two strictly ordered phases: the shared phase
// proposes one value per shared parameter and accepts it against the
// sum of all chains' likelihood deltas; the private phase then runs
// the ordinary single-chain update on every chain, skipping the
// shared parameters. The shared phase is a synchronization point; the
// private phase owns each chain exclusively and runs concurrently.
type Ensemble struct {
	sm *Sampler
}

// NewEnsemble creates an ensemble sampler; pen may be nil.
func NewEnsemble(builder TreeBuilder, proposal ProposalGenerator, extractor TransmissionExtractor,
	lik TreeLikelihood, pen PenaltyEvaluator, s *Settings) *Ensemble {
	return &Ensemble{sm: NewSampler(builder, proposal, extractor, lik, pen, s)}
}

// Run samples all chains and returns one thinned trace per dataset.
// Traces shorter than Iterations/Thinning mean the ensemble stopped
// early on numerical breakdown in any phase; all chains return their
// partial traces and no error is raised.
func (e *Ensemble) Run(pts []*ptree.Tree) ([][]PosteriorSample, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("no datasets")
	}
	sm := e.sm
	s := sm.s

	// The shared phase has its own source; chain i draws from
	// Seed+1+i so that with an empty SharingSpec every chain
	// reproduces an equally seeded single-chain run.
	sharedRng := rand.New(rand.NewSource(s.Seed))

	chains := make([]*ChainState, len(pts))
	for i, pt := range pts {
		cs, err := sm.initChain(pt, s.Seed+1+int64(i))
		if err != nil {
			return nil, fmt.Errorf("chain %d: %v", i, err)
		}
		chains[i] = cs
	}

	if s.OptiStart {
		for _, cs := range chains {
			sm.optimizeStart(cs)
		}
		e.alignShared(chains)
	}

	recs := make([]*Recorder, len(chains))
	for i := range recs {
		recs[i] = NewRecorder(s.Iterations / s.Thinning)
	}

Iter:
	for i := 1; i <= s.Iterations; i++ {
		for id := Neg; id < NumParameters; id++ {
			if !s.Share.Shared(id) || !s.Update[id] {
				continue
			}
			if !e.updateShared(chains, id, sharedRng) {
				log.Warningf("shared-phase breakdown at iteration %d, stopping the ensemble", i)
				break Iter
			}
		}

		var wg sync.WaitGroup
		for _, cs := range chains {
			wg.Add(1)
			go func(cs *ChainState) {
				defer wg.Done()
				cs.broken = !sm.iterateChain(cs, s.Share)
			}(cs)
		}
		wg.Wait()

		for c, cs := range chains {
			if cs.broken {
				log.Warningf("chain %d broke down at iteration %d, stopping the ensemble", c, i)
				break Iter
			}
		}

		if i%s.Thinning == 0 {
			for c, cs := range chains {
				recs[c].Record(sm.snapshot(cs, i))
			}
		}
	}

	traces := make([][]PosteriorSample, len(chains))
	for i, rec := range recs {
		traces[i] = rec.Samples()
	}
	log.Infof("Finished ensemble MCMC: %d chains", len(chains))
	return traces, nil
}

// updateShared proposes one common value for parameter id and accepts
// it against the summed likelihood delta of all chains. The Exp(1)
// prior enters once (it is a prior on the shared scalar); the
// optional beta term on pi enters once per chain. It returns false on
// numerical breakdown.
func (e *Ensemble) updateShared(chains []*ChainState, id ParameterID, rng *rand.Rand) bool {
	sm := e.sm
	s := sm.s

	old := chains[0].Pars.Get(id)
	cand := propose(id, old, rng)

	delta := 0.0
	candLik := make([]float64, len(chains))
	for i, cs := range chains {
		if !cs.finiteState() {
			return false
		}
		cl, cur, ok := sm.paramScore(cs, id, cand)
		if !ok {
			return false
		}
		candLik[i] = cl
		delta += cl - cur
	}

	logRatio := delta + logPriorRatio(id, old, cand)
	if id == Pi && s.PiBetaA > 0 && s.PiBetaB > 0 {
		logRatio += float64(len(chains)) *
			(dist.LogBetaPDF(cand, s.PiBetaA, s.PiBetaB) - dist.LogBetaPDF(old, s.PiBetaA, s.PiBetaB))
	}

	if metropolisAccept(logRatio, rng.Float64()) {
		for i, cs := range chains {
			sm.commitParam(cs, id, cand, candLik[i])
			cs.parAcc[id]++
		}
	}
	return true
}

// alignShared forces one common starting value per shared parameter
// after per-chain start optimization: the mean of the per-chain
// optima, with the caches rescored.
func (e *Ensemble) alignShared(chains []*ChainState) {
	sm := e.sm
	for id := Neg; id < NumParameters; id++ {
		if !sm.s.Share.Shared(id) {
			continue
		}
		mean := 0.0
		for _, cs := range chains {
			mean += cs.Pars.Get(id)
		}
		mean /= float64(len(chains))
		if id == Pi && mean < PiMin {
			mean = PiMin
		}
		for _, cs := range chains {
			lik, _, _ := sm.paramScore(cs, id, mean)
			sm.commitParam(cs, id, mean, lik)
		}
	}
}
