package decomp

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

var _ optimize.Converger = (*stallConverge)(nil)

// stallConverge declares convergence once the best simplex vertex has stayed
// within XTol of an anchor point, and its value within FTol of the anchor
// value, for Iterations consecutive major iterations. Tolerances are relative
// to the magnitude of the anchor with a floor of 1.
type stallConverge struct {
	XTol       float64
	FTol       float64
	Iterations int

	anchorX []float64
	anchorF float64
	first   bool
	iter    int
}

func (sc *stallConverge) Init(dim int) {
	sc.anchorX = make([]float64, dim)
	sc.anchorF = 0
	sc.first = true
	sc.iter = 0
}

func (sc *stallConverge) Converged(loc *optimize.Location) optimize.Status {
	if sc.first || !sc.within(loc) {
		copy(sc.anchorX, loc.X)
		sc.anchorF = loc.F
		sc.first = false
		sc.iter = 0
		return optimize.NotTerminated
	}
	sc.iter++
	if sc.iter < sc.Iterations {
		return optimize.NotTerminated
	}
	return optimize.FunctionConvergence
}

func (sc *stallConverge) within(loc *optimize.Location) bool {
	if !closeTo(loc.F, sc.anchorF, sc.FTol) {
		return false
	}
	for i, x := range loc.X {
		if !closeTo(x, sc.anchorX[i], sc.XTol) {
			return false
		}
	}
	return true
}

func closeTo(v, ref, tol float64) bool {
	return math.Abs(v-ref) <= tol*math.Max(1, math.Abs(ref))
}
