package shapelet

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SolveCoefficients returns the coefficient vector c minimising ||B*c - y||^2.
//
// Overdetermined, well-conditioned systems are solved with a QR
// factorisation. When QR reports a singular or ill-conditioned system, or
// there are fewer pixels than basis functions, the minimum-norm solution is
// taken from a thin SVD instead, so rank-deficient bases never fail.
func SolveCoefficients(b mat.Matrix, y []float64) ([]float64, error) {
	m, n := b.Dims()
	if m != len(y) {
		return nil, &DimensionMismatchError{What: "image vector", Got: len(y), Expected: m}
	}
	if m == 0 || n == 0 {
		return nil, &DomainError{Param: "basis matrix size", Value: float64(m * n), Want: "> 0"}
	}
	rhs := mat.NewVecDense(m, y)

	if m >= n {
		var qr mat.QR
		qr.Factorize(b)
		if qr.Cond() < 1/rcond(m, n) {
			c := mat.NewVecDense(n, nil)
			if err := qr.SolveVecTo(c, false, rhs); err == nil {
				return c.RawVector().Data, nil
			}
		}
	}
	return solveMinNorm(b, rhs), nil
}

// rcond is the relative singular value cutoff used for rank decisions
func rcond(m, n int) float64 {
	eps := math.Nextafter(1, 2) - 1
	return eps * float64(max(m, n))
}

// solveMinNorm solves the least squares problem through the SVD, dropping
// singular values below eps*max(m,n) of the largest.
func solveMinNorm(b mat.Matrix, rhs *mat.VecDense) []float64 {
	m, n := b.Dims()
	coeffs := make([]float64, n)

	var svd mat.SVD
	if !svd.Factorize(b, mat.SVDThin) {
		return coeffs
	}
	rank := svd.Rank(rcond(m, n))
	if rank == 0 {
		return coeffs
	}
	c := mat.NewVecDense(n, coeffs)
	svd.SolveVecTo(c, rhs, rank)
	return coeffs
}

// Reconstruct computes the model vector B*c
func Reconstruct(b mat.Matrix, coeffs []float64) ([]float64, error) {
	return ReconstructInto(nil, b, coeffs)
}

// ReconstructInto is Reconstruct writing into dst when it has capacity
func ReconstructInto(dst []float64, b mat.Matrix, coeffs []float64) ([]float64, error) {
	m, n := b.Dims()
	if n != len(coeffs) {
		return nil, &DimensionMismatchError{What: "coefficient vector", Got: len(coeffs), Expected: n}
	}
	dst = resize(dst, m)
	model := mat.NewVecDense(m, dst)
	model.MulVec(b, mat.NewVecDense(n, coeffs))
	return dst, nil
}

// ChiSquared returns sum(((data - model) / noise)^2). Every noise value must
// be positive.
func ChiSquared(data, model, noise []float64) (float64, error) {
	if len(model) != len(data) {
		return 0, &DimensionMismatchError{What: "model vector", Got: len(model), Expected: len(data)}
	}
	if len(noise) != len(data) {
		return 0, &DimensionMismatchError{What: "noise vector", Got: len(noise), Expected: len(data)}
	}
	var chi2 float64
	for i, d := range data {
		s := noise[i]
		if !(s > 0) {
			return 0, &DomainError{Param: "noise value", Value: s, Want: "> 0"}
		}
		r := (d - model[i]) / s
		chi2 += r * r
	}
	return chi2, nil
}

// Residual returns data - model
func Residual(data, model []float64) ([]float64, error) {
	if len(model) != len(data) {
		return nil, &DimensionMismatchError{What: "model vector", Got: len(model), Expected: len(data)}
	}
	res := make([]float64, len(data))
	floats.SubTo(res, data, model)
	return res, nil
}
