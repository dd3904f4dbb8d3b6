package models

import "fmt"

// ScalePair holds the characteristic Gaussian widths (beta) of the basis
// along the row and column axes, in pixels.
type ScalePair struct {
	Row float64
	Col float64
}

// Centroid is the expansion origin in 0-based pixel coordinates
type Centroid struct {
	Row float64
	Col float64
}

// OrderPair bounds the highest Hermite polynomial index used along each axis
type OrderPair struct {
	Row int
	Col int
}

// Size returns the number of basis functions, (n1+1)*(n2+1)
func (o OrderPair) Size() int {
	return (o.Row + 1) * (o.Col + 1)
}

func (o OrderPair) String() string {
	return fmt.Sprintf("(%d,%d)", o.Row, o.Col)
}

// WarningKind classifies a non-fatal condition met during a fit
type WarningKind int

const (
	// ConvergenceWarning means an optimiser hit its iteration cap
	ConvergenceWarning WarningKind = iota
	// DegenerateInputWarning means a fallback value replaced an estimate
	DegenerateInputWarning
)

func (k WarningKind) String() string {
	switch k {
	case ConvergenceWarning:
		return "ConvergenceWarning"
	case DegenerateInputWarning:
		return "DegenerateInputWarning"
	default:
		return fmt.Sprintf("WarningKind(%d)", int(k))
	}
}

// Warning is attached to a FitResult instead of aborting the fit
type Warning struct {
	Kind    WarningKind
	Stage   string
	Message string
}

func (w Warning) String() string {
	if w.Stage == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", w.Kind, w.Stage, w.Message)
}

// FitResult bundles the outcome of a shapelet decomposition.
// It is owned by the caller once returned.
type FitResult struct {
	// Scale is the optimal beta pair
	Scale ScalePair

	// Centroid is the optimal expansion origin
	Centroid Centroid

	// Order is the selected model order (n_max per axis)
	Order OrderPair

	// Coefficients are ordered to match the basis matrix columns,
	// k = i*(Order.Col+1) + j
	Coefficients []float64

	// Model is the reconstructed image B*c
	Model *Image

	// Residual is Image - Model
	Residual *Image

	// ChiSquared is the noise-weighted sum of squared residuals of the final model
	ChiSquared float64

	// OrderCosts holds chi-squared for each scanned number of terms per axis;
	// OrderCosts[i] corresponds to n_max = i.
	OrderCosts []float64

	// Iterations and FuncEvaluations report the continuous optimisation effort
	Iterations      int
	FuncEvaluations int

	// Converged is false when the continuous stage stopped on its iteration cap
	Converged bool

	// Warnings lists non-fatal conditions met during the fit
	Warnings []Warning
}

// CoefficientGrid reshapes the coefficient vector into an
// (Order.Row+1) x (Order.Col+1) grid.
func (r *FitResult) CoefficientGrid() [][]float64 {
	n1, n2 := r.Order.Row+1, r.Order.Col+1
	grid := make([][]float64, n1)
	for i := range grid {
		grid[i] = make([]float64, n2)
		copy(grid[i], r.Coefficients[i*n2:(i+1)*n2])
	}
	return grid
}

// HasWarning reports whether a warning of the given kind was recorded
func (r *FitResult) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
