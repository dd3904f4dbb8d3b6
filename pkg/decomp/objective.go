package decomp

import (
	"errors"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"shapeletfit/internal/models"
	"shapeletfit/pkg/shapelet"
)

// InfeasibleCost is reported to the optimisers for candidates outside the
// parameter domain, keeping the simplex search finite.
const InfeasibleCost = 1e300

// ContinuousCost returns chi-squared for params = (beta1, beta2,
// centroidRow, centroidCol) at a fixed model order. A non-positive scale
// yields a *shapelet.DomainError.
func ContinuousCost(params []float64, order models.OrderPair, img, noise *models.Image) (float64, error) {
	if len(params) != 4 {
		return 0, &shapelet.DimensionMismatchError{What: "parameter vector", Got: len(params), Expected: 4}
	}
	ev := newEvaluator(img, noise)
	scale, centroid := unpack(params)
	return ev.chi2(scale, centroid, order)
}

// DiscreteCost returns chi-squared using n Hermite terms per axis, i.e. model
// order (n-1, n-1), at a fixed scale and centroid. n is rounded to the
// nearest integer and clamped to at least 1.
func DiscreteCost(n float64, scale models.ScalePair, centroid models.Centroid, img, noise *models.Image) (float64, error) {
	order, err := orderFromTerms(n)
	if err != nil {
		return 0, err
	}
	return newEvaluator(img, noise).chi2(scale, centroid, order)
}

// orderFromTerms maps a probed number of terms per axis to an order pair
func orderFromTerms(n float64) (models.OrderPair, error) {
	if math.IsNaN(n) {
		return models.OrderPair{}, &shapelet.DomainError{Param: "number of terms", Value: n, Want: "a number"}
	}
	terms := math.Max(1, math.Round(n))
	if terms > math.MaxInt32 {
		return models.OrderPair{}, &shapelet.DomainError{Param: "number of terms", Value: n, Want: "representable"}
	}
	nmax := int(terms) - 1
	return models.OrderPair{Row: nmax, Col: nmax}, nil
}

func unpack(params []float64) (models.ScalePair, models.Centroid) {
	return models.ScalePair{Row: params[0], Col: params[1]},
		models.Centroid{Row: params[2], Col: params[3]}
}

// evaluator computes chi-squared for one image while reusing its buffers.
// It is not safe for concurrent use.
type evaluator struct {
	img     *models.Image
	noise   *models.Image
	builder shapelet.Builder
	rows    []float64
	cols    []float64
	model   []float64
}

func newEvaluator(img, noise *models.Image) *evaluator {
	return &evaluator{img: img, noise: noise}
}

func (e *evaluator) chi2(scale models.ScalePair, centroid models.Centroid, order models.OrderPair) (float64, error) {
	coeffs, b, err := e.solve(scale, centroid, order)
	if err != nil {
		return 0, err
	}
	e.model, err = shapelet.ReconstructInto(e.model, b, coeffs)
	if err != nil {
		return 0, err
	}
	return shapelet.ChiSquared(e.img.Data, e.model, e.noise.Data)
}

// solve builds the basis at the given parameters and solves for the
// coefficients. The returned basis matrix is owned by the evaluator.
func (e *evaluator) solve(scale models.ScalePair, centroid models.Centroid, order models.OrderPair) ([]float64, *mat.Dense, error) {
	if math.IsNaN(centroid.Row) || math.IsInf(centroid.Row, 0) {
		return nil, nil, &shapelet.DomainError{Param: "centroid row", Value: centroid.Row, Want: "finite"}
	}
	if math.IsNaN(centroid.Col) || math.IsInf(centroid.Col, 0) {
		return nil, nil, &shapelet.DomainError{Param: "centroid column", Value: centroid.Col, Want: "finite"}
	}
	e.rows = shapelet.OffsetsInto(e.rows, e.img.Rows, centroid.Row)
	e.cols = shapelet.OffsetsInto(e.cols, e.img.Cols, centroid.Col)
	b, err := e.builder.Build(scale, order, e.rows, e.cols)
	if err != nil {
		return nil, nil, err
	}
	coeffs, err := shapelet.SolveCoefficients(b, e.img.Data)
	if err != nil {
		return nil, nil, err
	}
	return coeffs, b, nil
}

// objective adapts a fallible cost to the optimize.Problem interface. Domain
// errors become InfeasibleCost; any other error is kept and stops the
// optimiser through Status.
type objective struct {
	mu  sync.Mutex
	err error
}

func (o *objective) value(cost float64, err error) float64 {
	if err == nil {
		if math.IsNaN(cost) || math.IsInf(cost, 0) {
			return InfeasibleCost
		}
		return cost
	}
	if !errors.Is(err, shapelet.ErrDomain) {
		o.mu.Lock()
		if o.err == nil {
			o.err = err
		}
		o.mu.Unlock()
	}
	return InfeasibleCost
}

func (o *objective) status() (optimize.Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return optimize.Failure, o.err
	}
	return optimize.NotTerminated, nil
}

func (o *objective) failure() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
