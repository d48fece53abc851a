package mcmc

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// startObjective adapts the joint log posterior of a fixed tree to
// the bounded L-BFGS-B minimizer: x = (neg, off.r, off.p, pi),
// gradient by central differences.
type startObjective struct {
	sm    *Sampler
	cs    *ChainState
	dH    float64
	grad  []float64
	calls int
}

func (o *startObjective) eval(x []float64) float64 {
	pars := ParameterBlock{Neg: x[0], OffR: x[1], OffP: x[2], Pi: x[3]}
	pt, _, _, ok := o.sm.scoreTTree(o.cs.TTree, pars)
	if !ok {
		return math.Inf(-1)
	}
	return pt + o.sm.lik.WithinHost(o.cs.CTree, pars.Neg)
}

func (o *startObjective) EvaluateFunction(x []float64) float64 {
	l := o.eval(x)
	o.calls++
	if math.IsNaN(l) || math.IsInf(l, -1) {
		return math.Inf(+1)
	}
	return -l
}

func (o *startObjective) EvaluateGradient(x []float64) []float64 {
	if o.grad == nil {
		o.grad = make([]float64, len(x))
	}
	xh := make([]float64, len(x))
	for i := range x {
		copy(xh, x)
		xh[i] = x[i] - o.dH
		l1 := o.EvaluateFunction(xh)
		xh[i] = x[i] + o.dH
		l2 := o.EvaluateFunction(xh)
		o.grad[i] = (l2 - l1) / 2 / o.dH
	}
	return o.grad
}

// optimizeStart maximizes the joint posterior over the four
// parameters on the initial tree and installs the optimum as the MCMC
// starting point.
func (sm *Sampler) optimizeStart(cs *ChainState) {
	obj := &startObjective{sm: sm, cs: cs, dH: 1e-6}

	bounds := [][2]float64{
		{1e-6, 1e4},       // neg
		{1e-6, 1e3},       // off.r
		{1e-6, 1 - 1e-6},  // off.p
		{PiMin, 1 - 1e-6}, // pi
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetBounds(bounds)

	x0 := []float64{cs.Pars.Neg, cs.Pars.OffR, cs.Pars.OffP, cs.Pars.Pi}
	min, exitStatus := opt.Minimize(obj, x0)
	log.Infof("Start-point optimization: %v calls, exit status: %v", obj.calls, exitStatus)

	pars := ParameterBlock{Neg: min.X[0], OffR: min.X[1], OffP: min.X[2], Pi: min.X[3]}
	pt, pen, diag, ok := sm.scoreTTree(cs.TTree, pars)
	if !ok || badScore(pt) {
		log.Warning("Start-point optimum is degenerate, keeping the initial values")
		return
	}
	pp := sm.lik.WithinHost(cs.CTree, pars.Neg)
	if badScore(pp) || math.IsInf(pp, -1) || math.IsInf(pt, -1) {
		log.Warning("Start-point optimum is degenerate, keeping the initial values")
		return
	}

	cs.Pars = pars
	cs.PTTree = pt
	cs.PPTree = pp
	cs.penalty = pen
	cs.diag = diag
	log.Infof("Optimized start: neg=%f off.r=%f off.p=%f pi=%f", pars.Neg, pars.OffR, pars.OffP, pars.Pi)
}
