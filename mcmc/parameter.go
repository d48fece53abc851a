package mcmc

import (
	"math"
	"math/rand"
)

// ParameterID identifies one of the four continuous model parameters.
type ParameterID int

// The four model parameters, in their fixed update order.
const (
	Neg ParameterID = iota // within-host coalescent rate Ne*g
	OffR                   // offspring distribution size
	OffP                   // offspring distribution probability
	Pi                     // sampling proportion
	NumParameters
)

func (p ParameterID) String() string {
	switch p {
	case Neg:
		return "neg"
	case OffR:
		return "off.r"
	case OffP:
		return "off.p"
	case Pi:
		return "pi"
	}
	return "unknown"
}

// PiMin is the lower reflecting bound of the sampling proportion.
const PiMin = 0.01

// ParameterBlock holds the current values of the four model
// parameters. It is a value type: proposals work on a copy and the
// block is only replaced on acceptance.
type ParameterBlock struct {
	Neg  float64 `json:"neg"`
	OffR float64 `json:"off.r"`
	OffP float64 `json:"off.p"`
	Pi   float64 `json:"pi"`
}

// Get returns the value of parameter id.
func (b ParameterBlock) Get(id ParameterID) float64 {
	switch id {
	case Neg:
		return b.Neg
	case OffR:
		return b.OffR
	case OffP:
		return b.OffP
	case Pi:
		return b.Pi
	}
	panic("unknown parameter")
}

// Set sets the value of parameter id.
func (b *ParameterBlock) Set(id ParameterID, v float64) {
	switch id {
	case Neg:
		b.Neg = v
	case OffR:
		b.OffR = v
	case OffP:
		b.OffP = v
	case Pi:
		b.Pi = v
	default:
		panic("unknown parameter")
	}
}

// Map returns the block as a name-value map (checkpoints, summaries).
func (b ParameterBlock) Map() map[string]float64 {
	m := make(map[string]float64, NumParameters)
	for id := Neg; id < NumParameters; id++ {
		m[id.String()] = b.Get(id)
	}
	return m
}

// SolveR returns the offspring size giving basic reproduction number
// r0 at probability p (R0 = r(1-p)/p).
func SolveR(r0, p float64) float64 {
	return r0 * p / (1 - p)
}

// SolveP returns the offspring probability giving basic reproduction
// number r0 at size r.
func SolveP(r0, r float64) float64 {
	return r / (r + r0)
}

// SharingSpec names the parameters shared across all chains of an
// ensemble, as an enum-indexed mask. The complement is private per
// chain.
type SharingSpec [NumParameters]bool

// ShareAll returns a spec sharing all four parameters.
func ShareAll() (s SharingSpec) {
	for i := range s {
		s[i] = true
	}
	return
}

// ShareNone returns an empty spec.
func ShareNone() SharingSpec {
	return SharingSpec{}
}

// Shared returns true if parameter id is shared.
func (s SharingSpec) Shared(id ParameterID) bool {
	return s[id]
}

// propose draws a candidate value from the parameter's reflecting
// random-walk kernel.
func propose(id ParameterID, v float64, rng *rand.Rand) float64 {
	switch id {
	case Neg, OffR:
		v = math.Abs(v + rng.Float64()*0.5 - 0.25)
	case OffP:
		v = math.Abs(v + rng.Float64()*0.1 - 0.05)
		if v > 1 {
			v = 2 - v
		}
	case Pi:
		v += rng.Float64()*0.1 - 0.05
		if v < PiMin {
			v = 2*PiMin - v
		}
		if v > 1 {
			v = 2 - v
		}
	default:
		panic("unknown parameter")
	}
	return v
}

// logPriorRatio returns the log prior ratio of a move old->new: the
// Exp(1) prior contributes -delta for neg and off.r, off.p and pi are
// flat here (the ensemble's shared phase adds the optional beta term
// for pi itself).
func logPriorRatio(id ParameterID, old, new float64) float64 {
	switch id {
	case Neg, OffR:
		return -(new - old)
	}
	return 0
}

// metropolisAccept is the acceptance test shared by every update:
// accept iff log(u) < logRatio.
func metropolisAccept(logRatio, u float64) bool {
	return math.Log(u) < logRatio
}
