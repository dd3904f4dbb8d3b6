// Package shapelet builds Cartesian Gauss-Hermite (shapelet) basis matrices
// over pixel grids and solves for the linear expansion coefficients.
//
// The 1D basis function of order n and scale beta is
//
//	phi_n(x; beta) = [2^n sqrt(pi) n! beta]^(-1/2) H_n(x/beta) exp(-x^2 / (2 beta^2))
//
// with H_n the physicists' Hermite polynomial. The 2D basis function (i, j)
// is phi_i(row offset; beta1) * phi_j(col offset; beta2).
package shapelet

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"shapeletfit/internal/models"
)

// pi^(-1/4), the order-0 normalisation for unit scale
var invPiQuarter = math.Pow(math.Pi, -0.25)

// Hermite evaluates the physicists' Hermite polynomial H_n at x using the
// recurrence H_{n+1} = 2x H_n - 2n H_{n-1}.
func Hermite(n int, x float64) float64 {
	if n < 0 {
		return math.NaN()
	}
	h0, h1 := 1.0, 2*x
	if n == 0 {
		return h0
	}
	for k := 1; k < n; k++ {
		h0, h1 = h1, 2*x*h1-2*float64(k)*h0
	}
	return h1
}

// Normalization returns [2^n sqrt(pi) n! beta]^(-1/2) for order n
func Normalization(n int, beta float64) float64 {
	lf, _ := math.Lgamma(float64(n) + 1)
	return math.Exp(-0.5 * (float64(n)*math.Ln2 + 0.5*math.Log(math.Pi) + lf + math.Log(beta)))
}

// Basis1D evaluates phi_n(x; beta) at each offset in x, writing into dst when
// it has enough capacity.
func Basis1D(n int, beta float64, x []float64, dst []float64) ([]float64, error) {
	if err := checkScale("beta", beta); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &DomainError{Param: "order", Value: float64(n), Want: ">= 0"}
	}
	table := basisTable(n, beta, x, nil)
	dst = resize(dst, len(x))
	copy(dst, table[n*len(x):])
	return dst, nil
}

// basisTable fills table[k*len(x)+i] = phi_k(x[i]; beta) for k in [0, nmax].
//
// It uses the normalised recurrence
//
//	psi_{k+1}(u) = sqrt(2/(k+1)) u psi_k(u) - sqrt(k/(k+1)) psi_{k-1}(u)
//
// on u = x/beta, which equals the closed form above without evaluating n!.
func basisTable(nmax int, beta float64, x []float64, table []float64) []float64 {
	m := len(x)
	table = resize(table, (nmax+1)*m)
	norm := invPiQuarter / math.Sqrt(beta)
	for i, xi := range x {
		u := xi / beta
		table[i] = norm * math.Exp(-0.5*u*u)
		if nmax >= 1 {
			table[m+i] = math.Sqrt2 * u * table[i]
		}
	}
	for k := 1; k < nmax; k++ {
		a := math.Sqrt(2 / float64(k+1))
		b := math.Sqrt(float64(k) / float64(k+1))
		prev, cur, next := table[(k-1)*m:k*m], table[k*m:(k+1)*m], table[(k+1)*m:(k+2)*m]
		for i, xi := range x {
			next[i] = a*(xi/beta)*cur[i] - b*prev[i]
		}
	}
	return table
}

// Offsets returns i - origin for i in [0, n), the pixel offsets of a grid
// axis relative to the expansion origin.
func Offsets(n int, origin float64) []float64 {
	return OffsetsInto(nil, n, origin)
}

// OffsetsInto is Offsets writing into dst when it has capacity
func OffsetsInto(dst []float64, n int, origin float64) []float64 {
	dst = resize(dst, n)
	for i := range dst {
		dst[i] = float64(i) - origin
	}
	return dst
}

// BasisMatrix evaluates the 2D basis set of the given order over the grid
// rows x cols. Row p = r*len(cols)+c of the result is the pixel (r, c); column
// k = i*(order.Col+1)+j holds basis function (i, j).
func BasisMatrix(scale models.ScalePair, order models.OrderPair, rows, cols []float64) (*mat.Dense, error) {
	var b Builder
	return b.Build(scale, order, rows, cols)
}

// Builder evaluates basis matrices while reusing its work buffers. The matrix
// returned by Build is owned by the Builder and overwritten by the next call.
// A Builder must not be used concurrently.
type Builder struct {
	rowTable []float64
	colTable []float64
	dst      *mat.Dense
}

// Build is BasisMatrix with buffer reuse
func (b *Builder) Build(scale models.ScalePair, order models.OrderPair, rows, cols []float64) (*mat.Dense, error) {
	if err := checkScale("row scale", scale.Row); err != nil {
		return nil, err
	}
	if err := checkScale("column scale", scale.Col); err != nil {
		return nil, err
	}
	if order.Row < 0 {
		return nil, &DomainError{Param: "row order", Value: float64(order.Row), Want: ">= 0"}
	}
	if order.Col < 0 {
		return nil, &DomainError{Param: "column order", Value: float64(order.Col), Want: ">= 0"}
	}
	if len(rows) == 0 {
		return nil, &DomainError{Param: "row grid length", Value: 0, Want: "> 0"}
	}
	if len(cols) == 0 {
		return nil, &DomainError{Param: "column grid length", Value: 0, Want: "> 0"}
	}

	b.rowTable = basisTable(order.Row, scale.Row, rows, b.rowTable)
	b.colTable = basisTable(order.Col, scale.Col, cols, b.colTable)

	nr, nc := len(rows), len(cols)
	pixels, funcs := nr*nc, order.Size()
	if b.dst == nil {
		b.dst = mat.NewDense(pixels, funcs, nil)
	} else if r, c := b.dst.Dims(); r != pixels || c != funcs {
		b.dst.Reset()
		b.dst.ReuseAs(pixels, funcs)
	}

	raw := b.dst.RawMatrix()
	n2 := order.Col + 1
	for i := 0; i <= order.Row; i++ {
		phiRow := b.rowTable[i*nr : (i+1)*nr]
		for j := 0; j <= order.Col; j++ {
			phiCol := b.colTable[j*nc : (j+1)*nc]
			k := i*n2 + j
			for r, pr := range phiRow {
				base := r * nc * raw.Stride
				for c, pc := range phiCol {
					raw.Data[base+c*raw.Stride+k] = pr * pc
				}
			}
		}
	}
	return b.dst, nil
}

func checkScale(name string, beta float64) error {
	if !(beta > 0) || math.IsInf(beta, 0) {
		return &DomainError{Param: name, Value: beta, Want: "finite and > 0"}
	}
	return nil
}

func resize(x []float64, n int) []float64 {
	if cap(x) < n {
		return make([]float64, n)
	}
	return x[:n]
}
