// Package dist implements log densities and distribution functions
// used by the transmission-tree model.
package dist

import (
	"math"

	"github.com/gonum/mathext"
)

// LogGammaPDF returns the log density of the gamma distribution with
// given shape and scale at x. It returns -Inf outside the support.
func LogGammaPDF(x, shape, scale float64) float64 {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	if x <= 0 {
		return math.Inf(-1)
	}
	g, _ := math.Lgamma(shape)
	return (shape-1)*math.Log(x) - x/scale - shape*math.Log(scale) - g
}

// GammaCDF returns the gamma distribution function at x
// (regularized lower incomplete gamma ratio).
func GammaCDF(x, shape, scale float64) float64 {
	if x <= 0 {
		return 0
	}
	return mathext.GammaInc(shape, x/scale)
}

// LogNegBinomial returns the log probability of observing k offspring
// under a negative binomial distribution with size r and probability p
// (R's dnbinom parametrization, mean r(1-p)/p).
func LogNegBinomial(k int, r, p float64) float64 {
	if k < 0 {
		return math.Inf(-1)
	}
	if r <= 0 || p <= 0 || p >= 1 {
		return math.Inf(-1)
	}
	lgkr, _ := math.Lgamma(float64(k) + r)
	lgr, _ := math.Lgamma(r)
	lgk, _ := math.Lgamma(float64(k) + 1)
	return lgkr - lgr - lgk + r*math.Log(p) + float64(k)*math.Log(1-p)
}

// LnBeta returns log of Beta function.
func LnBeta(p, q float64) float64 {
	lgp, _ := math.Lgamma(p)
	lgq, _ := math.Lgamma(q)
	lgpq, _ := math.Lgamma(p + q)
	return lgp + lgq - lgpq
}

// LogBetaPDF returns the log density of the beta distribution with
// parameters a and b at x. It returns -Inf outside (0, 1).
func LogBetaPDF(x, a, b float64) float64 {
	if a <= 0 || b <= 0 {
		panic("parameters of beta distribution must be > 0")
	}
	if x <= 0 || x >= 1 {
		return math.Inf(-1)
	}
	return (a-1)*math.Log(x) + (b-1)*math.Log(1-x) - LnBeta(a, b)
}

// BetaCDF returns the beta distribution function at x
// (regularized incomplete beta ratio).
func BetaCDF(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return mathext.RegIncBeta(a, b, x)
}
