// Package decomp drives a shapelet decomposition of an image cutout: initial
// guesses, a simplex search over scale and centroid, an exhaustive search
// over model order and the final coefficient solve.
package decomp

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/optimize"

	"shapeletfit/internal/models"
	"shapeletfit/pkg/shapelet"
)

// Fitter runs the decomposition pipeline
//
//	INIT -> CONTINUOUS_OPT -> DISCRETE_OPT -> FINAL_SOLVE -> DONE
//
// Any fatal error moves the pipeline to FAILED and is returned as a
// *StageError. A Fitter holds no state between fits and may be shared.
type Fitter struct {
	opts   Options
	logger *log.Logger
}

// NewFitter validates opts and returns a Fitter using them
func NewFitter(opts Options) (*Fitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Fitter{opts: opts}, nil
}

// SetLogger enables progress logging. A nil logger silences the fitter.
func (f *Fitter) SetLogger(l *log.Logger) {
	f.logger = l
}

// Options returns the options the fitter was built with
func (f *Fitter) Options() Options {
	return f.opts
}

// Fit decomposes img using the per-pixel noise standard deviations in noise
func Fit(img, noise *models.Image, opts Options) (*models.FitResult, error) {
	f, err := NewFitter(opts)
	if err != nil {
		return nil, &StageError{Stage: StageInit, Err: err}
	}
	return f.Fit(img, noise)
}

// continuousResult is the outcome of the CONTINUOUS_OPT stage
type continuousResult struct {
	scale     models.ScalePair
	centroid  models.Centroid
	chi2      float64
	converged bool
	status    optimize.Status
	iters     int
	evals     int
}

// Fit runs the full pipeline on img with the given noise map
func (f *Fitter) Fit(img, noise *models.Image) (*models.FitResult, error) {
	result := &models.FitResult{}

	// INIT
	f.logf("%s: validating %dx%d image", StageInit, img.Rows, img.Cols)
	if err := validateInputs(img, noise); err != nil {
		return nil, f.fail(StageInit, err)
	}
	scale, centroid := f.initialGuess(img, result)
	order := f.opts.InitialOrder
	f.logf("%s: beta0 (%f,%f) centroid (%f,%f) nmax %v", StageInit, scale.Row, scale.Col, centroid.Row, centroid.Col, order)

	// CONTINUOUS_OPT
	f.logf("%s: running simplex minimisation for beta and centroid", StageContinuousOpt)
	cont, err := f.optimizeContinuous(img, noise, scale, centroid, order)
	if err != nil {
		return nil, f.fail(StageContinuousOpt, err)
	}
	result.Iterations = cont.iters
	result.FuncEvaluations = cont.evals
	result.Converged = cont.converged
	if !cont.converged {
		result.Warnings = append(result.Warnings, models.Warning{
			Kind:    models.ConvergenceWarning,
			Stage:   string(StageContinuousOpt),
			Message: fmt.Sprintf("did not fully converge (%v after %d iterations), using best point", cont.status, cont.iters),
		})
	}
	f.logf("%s: beta (%f,%f) centroid (%f,%f) chi2 %g after %d iterations", StageContinuousOpt,
		cont.scale.Row, cont.scale.Col, cont.centroid.Row, cont.centroid.Col, cont.chi2, cont.iters)

	// DISCRETE_OPT
	f.logf("%s: scanning terms per axis on [1:%d]", StageDiscreteOpt, f.opts.MaxOrder)
	scan, err := ScanOrders(img, noise, cont.scale, cont.centroid, f.opts.MaxOrder, f.opts.OrderTolerance, f.opts.Workers)
	if err != nil {
		return nil, f.fail(StageDiscreteOpt, err)
	}
	result.OrderCosts = scan.Costs
	f.logf("%s: using n_max %v", StageDiscreteOpt, scan.Order())

	// FINAL_SOLVE
	if err := finalSolve(img, noise, cont.scale, cont.centroid, scan.Order(), result); err != nil {
		return nil, f.fail(StageFinalSolve, err)
	}

	f.logf("%s: chi2 %g with %d coefficients", StageDone, result.ChiSquared, len(result.Coefficients))
	return result, nil
}

// initialGuess computes the starting scale and centroid, recording any
// fallback warnings on result.
func (f *Fitter) initialGuess(img *models.Image, result *models.FitResult) (models.ScalePair, models.Centroid) {
	var scale models.ScalePair
	if f.opts.InitialScale.Row > 0 && f.opts.InitialScale.Col > 0 {
		scale = f.opts.InitialScale
	} else {
		var warnings []models.Warning
		scale, warnings = GuessScale(img, f.opts.ScaleFraction, f.opts.MinScale)
		result.Warnings = append(result.Warnings, warnings...)
	}

	var centroid models.Centroid
	if f.opts.UseMaxPosition {
		centroid = MaxPosition(img)
	} else {
		var warnings []models.Warning
		centroid, warnings = GuessCentroid(img)
		result.Warnings = append(result.Warnings, warnings...)
	}
	return scale, centroid
}

// optimizeContinuous minimises chi-squared over (beta1, beta2, row, col) with
// a Nelder-Mead simplex at a fixed order.
func (f *Fitter) optimizeContinuous(img, noise *models.Image, scale models.ScalePair, centroid models.Centroid, order models.OrderPair) (continuousResult, error) {
	ev := newEvaluator(img, noise)
	obj := &objective{}
	feasible := f.centroidBound(img)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			s, c := unpack(x)
			if !feasible(c) {
				return InfeasibleCost
			}
			return obj.value(ev.chi2(s, c, order))
		},
		Status: obj.status,
	}

	x0 := []float64{scale.Row, scale.Col, centroid.Row, centroid.Col}
	vertices, values := initialSimplex(x0, problem.Func)
	if err := obj.failure(); err != nil {
		return continuousResult{}, err
	}

	settings := &optimize.Settings{
		MajorIterations: f.opts.MaxIterations,
		Converger: &stallConverge{
			XTol:       f.opts.XTol,
			FTol:       f.opts.FTol,
			Iterations: f.opts.StallIterations,
		},
	}
	method := &optimize.NelderMead{
		InitialVertices: vertices,
		InitialValues:   values,
	}
	res, err := optimize.Minimize(problem, x0, settings, method)
	if err != nil {
		return continuousResult{}, err
	}
	if ferr := obj.failure(); ferr != nil {
		return continuousResult{}, ferr
	}
	if res.F >= InfeasibleCost {
		return continuousResult{}, &shapelet.DomainError{Param: "chi-squared", Value: res.F, Want: "reached at a feasible point"}
	}

	s, c := unpack(res.X)
	return continuousResult{
		scale:     s,
		centroid:  c,
		chi2:      res.F,
		converged: res.Status != optimize.IterationLimit && res.Status != optimize.FunctionEvaluationLimit,
		status:    res.Status,
		iters:     res.Stats.MajorIterations,
		evals:     res.Stats.FuncEvaluations,
	}, nil
}

// centroidBound returns the feasibility test for candidate centroids
func (f *Fitter) centroidBound(img *models.Image) func(models.Centroid) bool {
	if f.opts.CentroidRadius <= 0 {
		return func(models.Centroid) bool { return true }
	}
	center := GeometricCenter(img)
	radius := f.opts.CentroidRadius * 0.5 * math.Hypot(float64(img.Rows), float64(img.Cols))
	return func(c models.Centroid) bool {
		return math.Hypot(c.Row-center.Row, c.Col-center.Col) <= radius
	}
}

// initialSimplex perturbs each coordinate of x0 by 5%, or sets it to
// 0.00025 when it is zero, and evaluates fn at every vertex.
func initialSimplex(x0 []float64, fn func([]float64) float64) ([][]float64, []float64) {
	const (
		nonzdelt = 0.05
		zdelt    = 0.00025
	)
	vertices := make([][]float64, len(x0)+1)
	values := make([]float64, len(x0)+1)
	vertices[0] = append([]float64(nil), x0...)
	values[0] = fn(vertices[0])
	for i := range x0 {
		v := append([]float64(nil), x0...)
		if v[i] != 0 {
			v[i] *= 1 + nonzdelt
		} else {
			v[i] = zdelt
		}
		vertices[i+1] = v
		values[i+1] = fn(v)
	}
	return vertices, values
}

// finalSolve rebuilds the basis at the winning parameters and fills in the
// coefficients, model, residual and chi-squared.
func finalSolve(img, noise *models.Image, scale models.ScalePair, centroid models.Centroid, order models.OrderPair, result *models.FitResult) error {
	ev := newEvaluator(img, noise)
	coeffs, b, err := ev.solve(scale, centroid, order)
	if err != nil {
		return err
	}
	model, err := shapelet.Reconstruct(b, coeffs)
	if err != nil {
		return err
	}
	residual, err := shapelet.Residual(img.Data, model)
	if err != nil {
		return err
	}
	chi2, err := shapelet.ChiSquared(img.Data, model, noise.Data)
	if err != nil {
		return err
	}

	result.Scale = scale
	result.Centroid = centroid
	result.Order = order
	result.Coefficients = coeffs
	result.Model = &models.Image{Rows: img.Rows, Cols: img.Cols, Data: model}
	result.Residual = &models.Image{Rows: img.Rows, Cols: img.Cols, Data: residual}
	result.ChiSquared = chi2
	return nil
}

// validateInputs checks the image and noise map before any fitting
func validateInputs(img, noise *models.Image) error {
	if err := img.Validate(); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	if noise == nil {
		return fmt.Errorf("noise map is nil")
	}
	if !img.SameShape(noise) {
		return &shapelet.DimensionMismatchError{What: "noise map", Got: noise.Len(), Expected: img.Len()}
	}
	if len(noise.Data) != len(img.Data) {
		return &shapelet.DimensionMismatchError{What: "noise map data", Got: len(noise.Data), Expected: len(img.Data)}
	}
	for i, s := range noise.Data {
		if !(s > 0) || math.IsInf(s, 0) {
			return &shapelet.DomainError{
				Param: fmt.Sprintf("noise at pixel (%d,%d)", i/noise.Cols, i%noise.Cols),
				Value: s,
				Want:  "finite and > 0",
			}
		}
	}
	return nil
}

func (f *Fitter) fail(stage Stage, err error) error {
	f.logf("%s: %s: %v", StageFailed, stage, err)
	return &StageError{Stage: stage, Err: err}
}

func (f *Fitter) logf(format string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Printf(format, args...)
	}
}
