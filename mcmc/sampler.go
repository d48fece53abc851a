// Package mcmc implements Bayesian sampling of transmission trees:
// a single-chain Metropolis-Hastings sampler over the combined tree
// and four model parameters, and a multi-dataset ensemble sampler
// with parameter sharing across chains.
package mcmc

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/op/go-logging"

	"github.com/epiphylo/transtree/checkpoint"
	"github.com/epiphylo/transtree/ctree"
	"github.com/epiphylo/transtree/ptree"
)

// log is the global logging variable.
var log = logging.MustGetLogger("mcmc")

// Settings configures a sampler run.
type Settings struct {
	// Iterations is the MCMC iteration budget.
	Iterations int
	// Thinning is the recording interval; the trace holds up to
	// Iterations/Thinning samples.
	Thinning int
	// Start holds the starting parameter values.
	Start ParameterBlock
	// Update enables the per-parameter kernels.
	Update [NumParameters]bool
	// UpdateTree enables the combined-tree move.
	UpdateTree bool
	// StartTree is an optional warm-start combined tree; when set
	// the TreeBuilder is not consulted.
	StartTree *ctree.CTree
	// OptiStart maximizes the joint posterior over the parameters
	// before sampling.
	OptiStart bool
	// Hyper are the observation-model hyperparameters.
	Hyper HyperParams
	// Penalize subtracts the epidemiological penalty from pTTree;
	// TrackBreakdown records the breakdown without penalizing.
	Penalize       bool
	TrackBreakdown bool
	// PRuleBreak is the prior probability that a penalty rule is
	// valid; each violation contributes log(PRuleBreak) to pTTree.
	PRuleBreak float64
	// PiBetaA/PiBetaB parametrize the optional beta prior on the
	// shared sampling proportion (ensemble only, 0 disables).
	PiBetaA float64
	PiBetaB float64
	// Share names the parameters shared across ensemble chains.
	Share SharingSpec
	// Seed seeds the chain random sources.
	Seed int64
	// Checkpoint, when set, receives time-throttled snapshots.
	Checkpoint *checkpoint.IO

	RepPeriod int
	AccPeriod int
	Quiet     bool
	Output    io.Writer
}

// NewSettings returns settings with the defaults of the reference
// analysis: 1000 iterations, thinning 1, all updates on, unbounded
// observation.
func NewSettings() *Settings {
	s := &Settings{
		Iterations: 1000,
		Thinning:   1,
		UpdateTree: true,
		Start:      ParameterBlock{Neg: 100.0 / 365, OffR: 1, OffP: 0.5, Pi: 0.5},
		Hyper:      HyperParams{GenShape: 1, GenScale: 1, SamShape: 1, SamScale: 1, DateT: math.Inf(+1)},
		PRuleBreak: 0.5,
		RepPeriod:  10,
		AccPeriod:  200,
	}
	for i := range s.Update {
		s.Update[i] = true
	}
	return s
}

// Sampler drives one chain. The tree building, proposals, extraction,
// likelihoods and penalty are consumed through their oracle contracts.
type Sampler struct {
	builder   TreeBuilder
	proposal  ProposalGenerator
	extractor TransmissionExtractor
	lik       TreeLikelihood
	pen       PenaltyEvaluator
	s         *Settings
}

// NewSampler creates a sampler; pen may be nil when no epidemiological
// data is supplied.
func NewSampler(builder TreeBuilder, proposal ProposalGenerator, extractor TransmissionExtractor,
	lik TreeLikelihood, pen PenaltyEvaluator, s *Settings) *Sampler {
	return &Sampler{
		builder:   builder,
		proposal:  proposal,
		extractor: extractor,
		lik:       lik,
		pen:       pen,
		s:         s,
	}
}

// wantPenalty returns true if the penalty has to be evaluated at all.
func (sm *Sampler) wantPenalty() bool {
	return sm.pen != nil && (sm.s.Penalize || sm.s.TrackBreakdown)
}

// scoreTTree computes pTTree for a transmission tree under pars,
// including the penalty term when penalizing. ok is false when the
// penalty is undefined (NaN), the controlled mid-chain stop.
func (sm *Sampler) scoreTTree(tt *ctree.TTree, pars ParameterBlock) (res float64, pen Penalty, diag string, ok bool) {
	res = sm.lik.TTreeLogPrior(tt, pars.OffR, pars.OffP, pars.Pi)
	if !sm.wantPenalty() {
		return res, pen, "", true
	}
	pen, diag = sm.pen.Evaluate(tt, sm.s.TrackBreakdown)
	if pen.IsNaN() {
		return res, pen, diag, false
	}
	if sm.s.Penalize {
		res += pen.Total() * math.Log(sm.s.PRuleBreak)
	}
	return res, pen, diag, true
}

// initChain validates the input, builds or adopts the starting
// combined tree and computes the initial log-probability components.
// A non-finite initial component is a construction-time breakdown and
// fails fatally.
func (sm *Sampler) initChain(pt *ptree.Tree, seed int64) (*ChainState, error) {
	cs := &ChainState{
		Pars: sm.s.Start,
		rng:  rand.New(rand.NewSource(seed)),
	}

	if sm.s.StartTree != nil {
		cs.CTree = sm.s.StartTree.Copy()
	} else {
		pt.JitterTies(cs.rng)
		if err := pt.Validate(); err != nil {
			return nil, fmt.Errorf("invalid phylogeny: %v", err)
		}
		t, err := sm.builder.Build(pt)
		if err != nil {
			return nil, err
		}
		cs.CTree = t
	}
	if err := cs.CTree.Validate(); err != nil {
		return nil, fmt.Errorf("invalid combined tree: %v", err)
	}

	cs.TTree = sm.extractor.Extract(cs.CTree)
	pt0, pen, diag, ok := sm.scoreTTree(cs.TTree, cs.Pars)
	if !ok {
		return nil, fmt.Errorf("penalty undefined on the initial tree: %s", diag)
	}
	cs.PTTree = pt0
	cs.penalty = pen
	cs.diag = diag
	cs.PPTree = sm.lik.WithinHost(cs.CTree, cs.Pars.Neg)

	if !cs.finiteState() {
		return nil, fmt.Errorf("non-finite initial state: pTTree=%v pPTree=%v", cs.PTTree, cs.PPTree)
	}
	return cs, nil
}

// iterateChain runs one full iteration on cs: penalty recomputation,
// the tree move, then the parameter kernels in fixed order, skipping
// parameters in skip. It returns false on numerical breakdown, the
// signal to stop the loop and keep the partial trace.
func (sm *Sampler) iterateChain(cs *ChainState, skip SharingSpec) bool {
	// The transmission view and penalty are recomputed every
	// iteration: the penalty moves with every accepted tree move.
	cs.TTree = sm.extractor.Extract(cs.CTree)
	pt0, pen, diag, ok := sm.scoreTTree(cs.TTree, cs.Pars)
	if !ok {
		log.Warningf("penalty undefined at iteration %d, stopping: %s", cs.iter+1, diag)
		return false
	}
	cs.PTTree = pt0
	cs.penalty = pen
	cs.diag = diag
	if !cs.finiteState() {
		log.Warningf("non-finite state at iteration %d, stopping", cs.iter+1)
		return false
	}

	cs.iter++

	if sm.s.UpdateTree {
		cand, hastings := sm.proposal.Propose(cs.CTree, cs.rng)
		candTT := sm.extractor.Extract(cand)
		candPT, candPen, candDiag, ok := sm.scoreTTree(candTT, cs.Pars)
		if !ok || badScore(candPT) {
			return false
		}
		candPP := sm.lik.WithinHost(cand, cs.Pars.Neg)
		if badScore(candPP) {
			return false
		}

		logRatio := math.Log(hastings) + candPT + candPP - cs.PTTree - cs.PPTree
		if metropolisAccept(logRatio, cs.rng.Float64()) {
			cs.CTree = cand
			cs.TTree = candTT
			cs.PTTree = candPT
			cs.PPTree = candPP
			cs.penalty = candPen
			cs.diag = candDiag
			cs.treeAcc++
		}
	}

	for id := Neg; id < NumParameters; id++ {
		if !sm.s.Update[id] || skip.Shared(id) {
			continue
		}
		old := cs.Pars.Get(id)
		cand := propose(id, old, cs.rng)

		candLik, curLik, ok := sm.paramScore(cs, id, cand)
		if !ok {
			return false
		}
		logRatio := candLik - curLik + logPriorRatio(id, old, cand)
		if metropolisAccept(logRatio, cs.rng.Float64()) {
			sm.commitParam(cs, id, cand, candLik)
			cs.parAcc[id]++
		}
	}

	return true
}

// paramScore computes the likelihood component affected by parameter
// id at the candidate value, along with its current cached value.
// ok is false on NaN.
func (sm *Sampler) paramScore(cs *ChainState, id ParameterID, cand float64) (candLik, curLik float64, ok bool) {
	if id == Neg {
		candLik = sm.lik.WithinHost(cs.CTree, cand)
		curLik = cs.PPTree
	} else {
		pars := cs.Pars
		pars.Set(id, cand)
		candLik = sm.lik.TTreeLogPrior(cs.TTree, pars.OffR, pars.OffP, pars.Pi)
		if sm.s.Penalize {
			// same tree, the penalty term carries over
			candLik += cs.penalty.Total() * math.Log(sm.s.PRuleBreak)
		}
		curLik = cs.PTTree
	}
	return candLik, curLik, !badScore(candLik)
}

// badScore reports a candidate log probability that signals numerical
// breakdown. -Inf is not bad: it is an ordinary certain rejection.
func badScore(l float64) bool {
	return math.IsNaN(l) || math.IsInf(l, +1)
}

// commitParam installs an accepted value and its likelihood component
// together.
func (sm *Sampler) commitParam(cs *ChainState, id ParameterID, v, lik float64) {
	cs.Pars.Set(id, v)
	if id == Neg {
		cs.PPTree = lik
	} else {
		cs.PTTree = lik
	}
}

// snapshot builds the immutable posterior sample for the current
// state.
func (sm *Sampler) snapshot(cs *ChainState, iteration int) PosteriorSample {
	s := PosteriorSample{
		Iteration: iteration,
		CTree:     cs.CTree.Copy(),
		PTTree:    cs.PTTree,
		PPTree:    cs.PPTree,
		Posterior: cs.PTTree + cs.PPTree,
		Pars:      cs.Pars,
		Hyper:     sm.s.Hyper,
		Accept:    cs.acceptanceRates(),
		Source:    cs.TTree.Source(),
	}
	if sm.wantPenalty() {
		pen := cs.penalty
		s.Penalty = &pen
		s.Diag = cs.diag
	}
	return s
}

func (sm *Sampler) printHeader() {
	if sm.s.Quiet || sm.s.Output == nil {
		return
	}
	fmt.Fprintf(sm.s.Output, "iteration\tpTTree\tpPTree\tposterior\tneg\toff.r\toff.p\tpi\tsource\n")
}

func (sm *Sampler) printLine(cs *ChainState, iteration int) {
	if sm.s.Quiet || sm.s.Output == nil {
		return
	}
	fmt.Fprintf(sm.s.Output, "%d\t%f\t%f\t%f\t%f\t%f\t%f\t%f\t%s\n",
		iteration, cs.PTTree, cs.PPTree, cs.PTTree+cs.PPTree,
		cs.Pars.Neg, cs.Pars.OffR, cs.Pars.OffP, cs.Pars.Pi, cs.TTree.Source())
}

// saveCheckpoint stores the chain position if a checkpoint store is
// configured.
func (sm *Sampler) saveCheckpoint(cs *ChainState, iteration int, final bool) {
	cp := sm.s.Checkpoint
	if cp == nil {
		return
	}
	if !final && !cp.Old() {
		return
	}
	err := cp.Save(&checkpoint.Data{
		Parameters: cs.Pars.Map(),
		PTTree:     cs.PTTree,
		PPTree:     cs.PPTree,
		Iter:       iteration,
		Final:      final,
	})
	if err != nil {
		log.Error("Error saving checkpoint: ", err)
	}
}

// Run samples one chain and returns the thinned trace. A trace
// shorter than Iterations/Thinning means the chain stopped early on
// numerical breakdown; that is an expected outcome, not an error.
func (sm *Sampler) Run(pt *ptree.Tree) ([]PosteriorSample, error) {
	cs, err := sm.initChain(pt, sm.s.Seed)
	if err != nil {
		return nil, err
	}

	if sm.s.OptiStart {
		sm.optimizeStart(cs)
	}

	rec := NewRecorder(sm.s.Iterations / sm.s.Thinning)
	sm.printHeader()

	lastTreeAcc := 0
	for i := 1; i <= sm.s.Iterations; i++ {
		if sm.s.AccPeriod > 0 && i > 1 && i%sm.s.AccPeriod == 1 {
			log.Infof("Tree acceptance rate %.2f%%",
				100*float64(cs.treeAcc-lastTreeAcc)/float64(sm.s.AccPeriod))
			lastTreeAcc = cs.treeAcc
		}

		if !sm.iterateChain(cs, ShareNone()) {
			break
		}

		if sm.s.RepPeriod > 0 && i%sm.s.RepPeriod == 0 {
			log.Debugf("%d: pTTree=%f pPTree=%f", i, cs.PTTree, cs.PPTree)
			sm.printLine(cs, i)
		}
		if i%sm.s.Thinning == 0 {
			rec.Record(sm.snapshot(cs, i))
		}
		sm.saveCheckpoint(cs, i, false)
	}

	sm.saveCheckpoint(cs, cs.iter, true)
	log.Infof("Finished MCMC: %d iterations, %d samples", cs.iter, len(rec.Samples()))
	return rec.Samples(), nil
}
