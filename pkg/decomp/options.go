package decomp

import (
	"errors"
	"fmt"
	"math"

	"shapeletfit/internal/models"
)

// ErrInvalidOptions is wrapped by every Options validation failure
var ErrInvalidOptions = errors.New("decomp: invalid options")

// Options configures a decomposition. It is passed by value and never
// mutated by the pipeline.
type Options struct {
	// InitialOrder is the model order used while optimising scale and centroid
	InitialOrder models.OrderPair

	// MaxOrder is the largest number of Hermite terms per axis tried by the
	// order scan; the scan covers [1, MaxOrder], i.e. n_max in [0, MaxOrder-1]
	MaxOrder int

	// XTol and FTol are relative convergence tolerances on the parameters and
	// on chi-squared. Values below 1 in magnitude are compared absolutely.
	XTol float64
	FTol float64

	// MaxIterations caps the simplex iterations of the continuous stage
	MaxIterations int

	// StallIterations is how many consecutive iterations must stay within
	// XTol and FTol before the continuous stage is considered converged
	StallIterations int

	// ScaleFraction multiplies the moment-based width when guessing beta
	ScaleFraction float64

	// MinScale is the beta used when the moment estimate is degenerate
	MinScale float64

	// InitialScale overrides the beta guess when both components are > 0
	InitialScale models.ScalePair

	// UseMaxPosition starts from the brightest pixel instead of the
	// flux-weighted centroid
	UseMaxPosition bool

	// CentroidRadius, when > 0, confines candidate centroids to this fraction
	// of the image half-diagonal around the image centre
	CentroidRadius float64

	// OrderTolerance is the chi-squared difference below which two orders
	// are treated as tied; ties go to the smaller order
	OrderTolerance float64

	// Workers is the number of concurrent evaluations in the order scan
	Workers int
}

// DefaultOptions returns the options used by the command line tool
func DefaultOptions() Options {
	return Options{
		InitialOrder:    models.OrderPair{Row: 5, Col: 5},
		MaxOrder:        15,
		XTol:            1e-4,
		FTol:            1e-4,
		MaxIterations:   250,
		StallIterations: 25,
		ScaleFraction:   1.0,
		MinScale:        1.0,
		OrderTolerance:  1e-6,
		Workers:         1,
	}
}

// Validate checks every field lies in its valid range
func (o Options) Validate() error {
	switch {
	case o.InitialOrder.Row < 0 || o.InitialOrder.Col < 0:
		return fmt.Errorf("%w: initial order %v must be non-negative", ErrInvalidOptions, o.InitialOrder)
	case o.MaxOrder < 1:
		return fmt.Errorf("%w: max order %d must be >= 1", ErrInvalidOptions, o.MaxOrder)
	case !positive(o.XTol):
		return fmt.Errorf("%w: xtol %v must be > 0", ErrInvalidOptions, o.XTol)
	case !positive(o.FTol):
		return fmt.Errorf("%w: ftol %v must be > 0", ErrInvalidOptions, o.FTol)
	case o.MaxIterations < 1:
		return fmt.Errorf("%w: max iterations %d must be >= 1", ErrInvalidOptions, o.MaxIterations)
	case o.StallIterations < 1:
		return fmt.Errorf("%w: stall iterations %d must be >= 1", ErrInvalidOptions, o.StallIterations)
	case !positive(o.ScaleFraction):
		return fmt.Errorf("%w: scale fraction %v must be > 0", ErrInvalidOptions, o.ScaleFraction)
	case !positive(o.MinScale):
		return fmt.Errorf("%w: min scale %v must be > 0", ErrInvalidOptions, o.MinScale)
	case o.InitialScale.Row < 0 || o.InitialScale.Col < 0 || math.IsNaN(o.InitialScale.Row) || math.IsNaN(o.InitialScale.Col):
		return fmt.Errorf("%w: initial scale (%v,%v) must be >= 0", ErrInvalidOptions, o.InitialScale.Row, o.InitialScale.Col)
	case o.CentroidRadius < 0 || math.IsNaN(o.CentroidRadius):
		return fmt.Errorf("%w: centroid radius %v must be >= 0", ErrInvalidOptions, o.CentroidRadius)
	case o.OrderTolerance < 0 || math.IsNaN(o.OrderTolerance):
		return fmt.Errorf("%w: order tolerance %v must be >= 0", ErrInvalidOptions, o.OrderTolerance)
	case o.Workers < 1:
		return fmt.Errorf("%w: workers %d must be >= 1", ErrInvalidOptions, o.Workers)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
