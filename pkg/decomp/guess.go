package decomp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"shapeletfit/internal/models"
)

// GuessScale estimates beta along each axis as fraction times the
// light-weighted RMS width of the image's marginal profile. Negative flux is
// clipped before weighting. An axis whose second moment is not positive falls
// back to floor and a DegenerateInputWarning is returned.
//
// The RMS width of a (0,0) shapelet equals its beta, so fraction 1 returns
// beta for a single Gaussian. A fraction such as 0.2 only fits estimators of
// the full source extent.
func GuessScale(img *models.Image, fraction, floor float64) (models.ScalePair, []models.Warning) {
	rowProfile, colProfile := marginals(img)
	var warnings []models.Warning

	width := func(axis string, profile []float64) float64 {
		w := momentWidth(profile) * fraction
		if !(w > 0) || math.IsInf(w, 0) {
			warnings = append(warnings, models.Warning{
				Kind:    models.DegenerateInputWarning,
				Stage:   string(StageInit),
				Message: fmt.Sprintf("%s scale estimate is degenerate, using %g pixels", axis, floor),
			})
			return floor
		}
		return w
	}

	scale := models.ScalePair{
		Row: width("row", rowProfile),
		Col: width("column", colProfile),
	}
	return scale, warnings
}

// GuessCentroid returns the flux-weighted centroid of the positive pixels.
// An image without positive flux yields its geometric centre and a
// DegenerateInputWarning.
func GuessCentroid(img *models.Image) (models.Centroid, []models.Warning) {
	rowProfile, colProfile := marginals(img)
	if floats.Sum(rowProfile) <= 0 {
		return GeometricCenter(img), []models.Warning{{
			Kind:    models.DegenerateInputWarning,
			Stage:   string(StageInit),
			Message: "image has no positive flux, using geometric centre as centroid",
		}}
	}
	return models.Centroid{
		Row: stat.Mean(indices(len(rowProfile)), rowProfile),
		Col: stat.Mean(indices(len(colProfile)), colProfile),
	}, nil
}

// MaxPosition returns the pixel location of maximum intensity. Ties resolve
// to the first pixel in row-major order.
func MaxPosition(img *models.Image) models.Centroid {
	idx := floats.MaxIdx(img.Data)
	return models.Centroid{
		Row: float64(idx / img.Cols),
		Col: float64(idx % img.Cols),
	}
}

// GeometricCenter returns the centre of the pixel grid
func GeometricCenter(img *models.Image) models.Centroid {
	return models.Centroid{
		Row: float64(img.Rows-1) / 2,
		Col: float64(img.Cols-1) / 2,
	}
}

// marginals sums the positive flux along each axis
func marginals(img *models.Image) (rows, cols []float64) {
	rows = make([]float64, img.Rows)
	cols = make([]float64, img.Cols)
	for r := 0; r < img.Rows; r++ {
		for c := 0; c < img.Cols; c++ {
			if v := img.At(r, c); v > 0 {
				rows[r] += v
				cols[c] += v
			}
		}
	}
	return rows, cols
}

// momentWidth is the square root of the weighted second central moment of
// the pixel index, or 0 when the profile carries no weight.
func momentWidth(profile []float64) float64 {
	if floats.Sum(profile) <= 0 {
		return 0
	}
	x := indices(len(profile))
	mean := stat.Mean(x, profile)
	m2 := stat.MomentAbout(2, x, mean, profile)
	if !(m2 > 0) {
		return 0
	}
	return math.Sqrt(m2)
}

func indices(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}
