package decomp

import (
	"bytes"
	"errors"
	"log"
	"math"
	"strings"
	"testing"

	"shapeletfit/internal/models"
	"shapeletfit/pkg/shapelet"
)

// TestFitSingleGaussian runs the whole pipeline on a 32x32 image made of a
// single (0,0) basis function and checks scale, centroid and order are
// recovered.
func TestFitSingleGaussian(t *testing.T) {
	scale := models.ScalePair{Row: 3, Col: 3}
	centroid := models.Centroid{Row: 16, Col: 16}
	img := synthesize(t, 32, 32, scale, centroid, models.OrderPair{}, []float64{1})
	noise := unitNoise(32, 32)

	opts := DefaultOptions()
	opts.InitialOrder = models.OrderPair{Row: 0, Col: 0}
	opts.MaxOrder = 10
	opts.XTol = 1e-6
	opts.FTol = 1e-10
	opts.MaxIterations = 2000

	fitter, err := NewFitter(opts)
	if err != nil {
		t.Fatalf("NewFitter: %v", err)
	}
	var logs bytes.Buffer
	fitter.SetLogger(log.New(&logs, "", 0))

	res, err := fitter.Fit(img, noise)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if math.Abs(res.Scale.Row-3)/3 > 0.05 || math.Abs(res.Scale.Col-3)/3 > 0.05 {
		t.Errorf("Expected scale within 5%% of (3,3), got (%v,%v)", res.Scale.Row, res.Scale.Col)
	}
	if math.Abs(res.Centroid.Row-16) > 0.5 || math.Abs(res.Centroid.Col-16) > 0.5 {
		t.Errorf("Expected centroid within 0.5 of (16,16), got (%v,%v)", res.Centroid.Row, res.Centroid.Col)
	}
	if res.Order != (models.OrderPair{Row: 0, Col: 0}) {
		t.Errorf("Expected order (0,0), got %v (costs %v)", res.Order, res.OrderCosts)
	}
	if len(res.Coefficients) != 1 {
		t.Fatalf("Expected 1 coefficient, got %d", len(res.Coefficients))
	}
	if math.Abs(res.Coefficients[0]-1) > 0.05 {
		t.Errorf("Expected coefficient near 1, got %v", res.Coefficients[0])
	}
	if len(res.OrderCosts) != 10 {
		t.Errorf("Expected 10 order costs, got %d", len(res.OrderCosts))
	}
	if res.ChiSquared > 1e-6 {
		t.Errorf("Expected near-zero chi2, got %v", res.ChiSquared)
	}
	if res.Model == nil || res.Residual == nil || !res.Model.SameShape(img) || !res.Residual.SameShape(img) {
		t.Fatal("Expected model and residual with the image shape")
	}
	for i := range img.Data {
		if d := img.Data[i] - res.Model.Data[i] - res.Residual.Data[i]; math.Abs(d) > 1e-12 {
			t.Fatalf("Residual does not match image - model at pixel %d", i)
		}
	}

	for _, stage := range []Stage{StageInit, StageContinuousOpt, StageDiscreteOpt, StageDone} {
		if !strings.Contains(logs.String(), string(stage)) {
			t.Errorf("Expected log output for stage %s", stage)
		}
	}
}

// TestFitDefaultOptions recovers the same Gaussian with the shipped stopping
// rule, starting from both the lowest and the default initial order
func TestFitDefaultOptions(t *testing.T) {
	img := synthesize(t, 32, 32, models.ScalePair{Row: 3, Col: 3}, models.Centroid{Row: 16, Col: 16}, models.OrderPair{}, []float64{1})
	noise := unitNoise(32, 32)

	tests := []struct {
		name  string
		order models.OrderPair
	}{
		{"order 0", models.OrderPair{Row: 0, Col: 0}},
		{"default order", DefaultOptions().InitialOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.InitialOrder = tt.order
			opts.MaxOrder = 10

			res, err := Fit(img, noise, opts)
			if err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if math.Abs(res.Scale.Row-3)/3 > 0.05 || math.Abs(res.Scale.Col-3)/3 > 0.05 {
				t.Errorf("Expected scale within 5%% of (3,3), got (%v,%v)", res.Scale.Row, res.Scale.Col)
			}
			if math.Abs(res.Centroid.Row-16) > 0.5 || math.Abs(res.Centroid.Col-16) > 0.5 {
				t.Errorf("Expected centroid within 0.5 of (16,16), got (%v,%v)", res.Centroid.Row, res.Centroid.Col)
			}
			if res.Order != (models.OrderPair{}) {
				t.Errorf("Expected order (0,0), got %v (costs %v)", res.Order, res.OrderCosts)
			}
		})
	}
}

// TestFitIterationCap verifies hitting the iteration cap still yields a
// result, flagged with a convergence warning.
func TestFitIterationCap(t *testing.T) {
	img := gaussianImage(16, 16, models.Centroid{Row: 7.3, Col: 8.1}, 2.2)
	noise := unitNoise(16, 16)

	opts := DefaultOptions()
	opts.InitialOrder = models.OrderPair{Row: 2, Col: 2}
	opts.MaxOrder = 4
	opts.MaxIterations = 1

	res, err := Fit(img, noise, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Converged {
		t.Error("Expected Converged to be false")
	}
	if !res.HasWarning(models.ConvergenceWarning) {
		t.Errorf("Expected a ConvergenceWarning, got %v", res.Warnings)
	}
	if len(res.Coefficients) != res.Order.Size() {
		t.Errorf("Expected %d coefficients, got %d", res.Order.Size(), len(res.Coefficients))
	}
}

// TestFitAllZeroImage verifies a blank image falls back to default guesses
// without failing.
func TestFitAllZeroImage(t *testing.T) {
	img := models.NewImage(8, 8)
	noise := unitNoise(8, 8)

	opts := DefaultOptions()
	opts.InitialOrder = models.OrderPair{Row: 1, Col: 1}
	opts.MaxOrder = 3
	opts.MaxIterations = 50

	res, err := Fit(img, noise, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !res.HasWarning(models.DegenerateInputWarning) {
		t.Errorf("Expected a DegenerateInputWarning, got %v", res.Warnings)
	}
	if res.ChiSquared != 0 {
		t.Errorf("Expected zero chi2 for a blank image, got %v", res.ChiSquared)
	}
	if res.Order != (models.OrderPair{}) {
		t.Errorf("Expected order (0,0) on ties, got %v", res.Order)
	}
}

// TestFitInvalidInputs checks fatal input errors are reported from INIT
func TestFitInvalidInputs(t *testing.T) {
	img := gaussianImage(6, 6, models.Centroid{Row: 3, Col: 3}, 1.5)

	zeroNoise := unitNoise(6, 6)
	zeroNoise.Set(2, 3, 0)

	tests := []struct {
		name  string
		noise *models.Image
		want  error
	}{
		{"zero noise", zeroNoise, shapelet.ErrDomain},
		{"shape mismatch", unitNoise(6, 5), shapelet.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(img, tt.noise, DefaultOptions())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var stageErr *StageError
			if !errors.As(err, &stageErr) || stageErr.Stage != StageInit {
				t.Errorf("Expected failure in %s, got %v", StageInit, err)
			}
		})
	}
}

// TestFitUsesInitialScale verifies a caller-supplied beta replaces the guess
func TestFitUsesInitialScale(t *testing.T) {
	img := models.NewImage(8, 8)

	f, err := NewFitter(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	f.opts.InitialScale = models.ScalePair{Row: 4, Col: 2}
	res := &models.FitResult{}
	scale, _ := f.initialGuess(img, res)
	if scale != f.opts.InitialScale {
		t.Errorf("Expected %v, got %v", f.opts.InitialScale, scale)
	}
	for _, w := range res.Warnings {
		if strings.Contains(w.Message, "scale") {
			t.Errorf("Unexpected scale warning %v", w)
		}
	}
}

// TestCentroidBound checks candidates far from the image centre are rejected
func TestCentroidBound(t *testing.T) {
	opts := DefaultOptions()
	opts.CentroidRadius = 0.5
	f, err := NewFitter(opts)
	if err != nil {
		t.Fatal(err)
	}
	// 11x11 image: centre (5,5), half-diagonal ~7.78, radius ~3.89
	feasible := f.centroidBound(models.NewImage(11, 11))
	if !feasible(models.Centroid{Row: 6, Col: 7}) {
		t.Error("Expected nearby centroid to be feasible")
	}
	if feasible(models.Centroid{Row: 10, Col: 10}) {
		t.Error("Expected corner centroid to be infeasible")
	}
}

// TestStageErrorUnwrap verifies the stage is reported and the cause kept
func TestStageErrorUnwrap(t *testing.T) {
	cause := &shapelet.DomainError{Param: "beta1", Value: 0, Want: "> 0"}
	err := error(&StageError{Stage: StageContinuousOpt, Err: cause})
	if !errors.Is(err, shapelet.ErrDomain) {
		t.Error("Expected StageError to unwrap to ErrDomain")
	}
	if !strings.Contains(err.Error(), string(StageContinuousOpt)) {
		t.Errorf("Expected stage name in %q", err.Error())
	}
}
