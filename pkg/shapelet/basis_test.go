package shapelet

import (
	"errors"
	"math"
	"testing"

	"shapeletfit/internal/models"
)

// TestHermite verifies the recurrence against the closed-form polynomials
func TestHermite(t *testing.T) {
	closedForm := []func(x float64) float64{
		func(x float64) float64 { return 1 },
		func(x float64) float64 { return 2 * x },
		func(x float64) float64 { return 4*x*x - 2 },
		func(x float64) float64 { return 8*x*x*x - 12*x },
		func(x float64) float64 { return 16*math.Pow(x, 4) - 48*x*x + 12 },
	}
	for n, h := range closedForm {
		for _, x := range []float64{-2.5, -1, 0, 0.3, 1.7} {
			got := Hermite(n, x)
			want := h(x)
			if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
				t.Errorf("H_%d(%v): expected %v, got %v", n, x, want, got)
			}
		}
	}
}

// TestBasis1DMatchesClosedForm checks the stable recurrence reproduces the
// explicit normalisation and Gaussian envelope.
func TestBasis1DMatchesClosedForm(t *testing.T) {
	beta := 2.3
	x := []float64{-4, -1.5, 0, 0.75, 3.2}
	for n := 0; n <= 8; n++ {
		got, err := Basis1D(n, beta, x, nil)
		if err != nil {
			t.Fatalf("Basis1D(%d): %v", n, err)
		}
		for i, xi := range x {
			want := Normalization(n, beta) * Hermite(n, xi/beta) * math.Exp(-xi*xi/(2*beta*beta))
			if math.Abs(got[i]-want) > 1e-12 {
				t.Errorf("phi_%d(%v): expected %v, got %v", n, xi, want, got[i])
			}
		}
	}
}

// TestBasisMatrixDimensions verifies the column count is (n1+1)*(n2+1) and
// there is one row per grid point.
func TestBasisMatrixDimensions(t *testing.T) {
	tests := []struct {
		order      models.OrderPair
		rows, cols int
	}{
		{models.OrderPair{Row: 0, Col: 0}, 5, 7},
		{models.OrderPair{Row: 3, Col: 1}, 10, 4},
		{models.OrderPair{Row: 6, Col: 6}, 16, 16},
		{models.OrderPair{Row: 12, Col: 12}, 3, 3},
	}
	for _, tt := range tests {
		b, err := BasisMatrix(models.ScalePair{Row: 1.5, Col: 2}, tt.order, Offsets(tt.rows, 2), Offsets(tt.cols, 1))
		if err != nil {
			t.Fatalf("order %v: %v", tt.order, err)
		}
		r, c := b.Dims()
		if r != tt.rows*tt.cols {
			t.Errorf("order %v: expected %d rows, got %d", tt.order, tt.rows*tt.cols, r)
		}
		if c != (tt.order.Row+1)*(tt.order.Col+1) {
			t.Errorf("order %v: expected %d columns, got %d", tt.order, tt.order.Size(), c)
		}
	}
}

// TestBasisMatrixColumnLayout checks column k = i*(n2+1)+j holds the outer
// product of phi_i over rows and phi_j over columns.
func TestBasisMatrixColumnLayout(t *testing.T) {
	scale := models.ScalePair{Row: 1.2, Col: 2.1}
	order := models.OrderPair{Row: 2, Col: 3}
	rows := Offsets(4, 1.5)
	cols := Offsets(5, 2.2)
	b, err := BasisMatrix(scale, order, rows, cols)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i <= order.Row; i++ {
		pr, _ := Basis1D(i, scale.Row, rows, nil)
		for j := 0; j <= order.Col; j++ {
			pc, _ := Basis1D(j, scale.Col, cols, nil)
			k := i*(order.Col+1) + j
			for r := range rows {
				for c := range cols {
					want := pr[r] * pc[c]
					if got := b.At(r*len(cols)+c, k); math.Abs(got-want) > 1e-14 {
						t.Fatalf("B[%d,%d]: expected %v, got %v", r*len(cols)+c, k, want, got)
					}
				}
			}
		}
	}
}

// TestBasisOrthonormality integrates basis products over a fine grid
func TestBasisOrthonormality(t *testing.T) {
	const h = 0.25
	grid := make([]float64, 201)
	for i := range grid {
		grid[i] = -25 + h*float64(i)
	}
	scale := models.ScalePair{Row: 3, Col: 3}
	b, err := BasisMatrix(scale, models.OrderPair{Row: 2, Col: 2}, grid, grid)
	if err != nil {
		t.Fatal(err)
	}
	pixels, funcs := b.Dims()
	for k := 0; k < funcs; k++ {
		for l := k; l < funcs; l++ {
			var sum float64
			for p := 0; p < pixels; p++ {
				sum += b.At(p, k) * b.At(p, l)
			}
			sum *= h * h
			want := 0.0
			if k == l {
				want = 1
			}
			if math.Abs(sum-want) > 1e-6 {
				t.Errorf("<B_%d, B_%d>: expected %v, got %v", k, l, want, sum)
			}
		}
	}
}

// TestBasisMatrixDomainErrors verifies invalid scales and orders are rejected
func TestBasisMatrixDomainErrors(t *testing.T) {
	grid := Offsets(8, 4)
	tests := []struct {
		name  string
		scale models.ScalePair
		order models.OrderPair
	}{
		{"zero row scale", models.ScalePair{Row: 0, Col: 1}, models.OrderPair{Row: 2, Col: 2}},
		{"negative column scale", models.ScalePair{Row: 1, Col: -2}, models.OrderPair{Row: 2, Col: 2}},
		{"NaN scale", models.ScalePair{Row: math.NaN(), Col: 1}, models.OrderPair{Row: 2, Col: 2}},
		{"infinite scale", models.ScalePair{Row: 1, Col: math.Inf(1)}, models.OrderPair{Row: 2, Col: 2}},
		{"negative row order", models.ScalePair{Row: 1, Col: 1}, models.OrderPair{Row: -1, Col: 2}},
		{"negative column order", models.ScalePair{Row: 1, Col: 1}, models.OrderPair{Row: 0, Col: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := BasisMatrix(tt.scale, tt.order, grid, grid)
			if b != nil {
				t.Errorf("expected no matrix, got one")
			}
			if !errors.Is(err, ErrDomain) {
				t.Fatalf("expected ErrDomain, got %v", err)
			}
			var de *DomainError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DomainError, got %T", err)
			}
		})
	}
}

// TestBuilderReuse checks repeated builds with different shapes stay correct
func TestBuilderReuse(t *testing.T) {
	var bld Builder
	scale := models.ScalePair{Row: 2, Col: 2}
	first, err := bld.Build(scale, models.OrderPair{Row: 3, Col: 3}, Offsets(6, 3), Offsets(6, 3))
	if err != nil {
		t.Fatal(err)
	}
	if r, c := first.Dims(); r != 36 || c != 16 {
		t.Fatalf("expected 36x16, got %dx%d", r, c)
	}

	second, err := bld.Build(scale, models.OrderPair{Row: 1, Col: 0}, Offsets(4, 1), Offsets(5, 2))
	if err != nil {
		t.Fatal(err)
	}
	want, _ := BasisMatrix(scale, models.OrderPair{Row: 1, Col: 0}, Offsets(4, 1), Offsets(5, 2))
	r, c := want.Dims()
	if gr, gc := second.Dims(); gr != r || gc != c {
		t.Fatalf("expected %dx%d, got %dx%d", r, c, gr, gc)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if second.At(i, j) != want.At(i, j) {
				t.Fatalf("element (%d,%d): expected %v, got %v", i, j, want.At(i, j), second.At(i, j))
			}
		}
	}
}
