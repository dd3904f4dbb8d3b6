package decomp

import (
	"math"
	"testing"

	"shapeletfit/internal/models"
	"shapeletfit/pkg/shapelet"
)

// synthesize builds a noiseless image from known shapelet coefficients
func synthesize(t *testing.T, rows, cols int, scale models.ScalePair, centroid models.Centroid, order models.OrderPair, coeffs []float64) *models.Image {
	t.Helper()
	b, err := shapelet.BasisMatrix(scale, order, shapelet.Offsets(rows, centroid.Row), shapelet.Offsets(cols, centroid.Col))
	if err != nil {
		t.Fatalf("Failed to build basis: %v", err)
	}
	data, err := shapelet.Reconstruct(b, coeffs)
	if err != nil {
		t.Fatalf("Failed to reconstruct: %v", err)
	}
	return &models.Image{Rows: rows, Cols: cols, Data: data}
}

// unitNoise returns a noise map of ones
func unitNoise(rows, cols int) *models.Image {
	img := models.NewImage(rows, cols)
	for i := range img.Data {
		img.Data[i] = 1
	}
	return img
}

// gaussianImage returns a circular Gaussian blob of peak 100
func gaussianImage(rows, cols int, center models.Centroid, sigma float64) *models.Image {
	img := models.NewImage(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dr := float64(r) - center.Row
			dc := float64(c) - center.Col
			img.Set(r, c, 100*math.Exp(-(dr*dr+dc*dc)/(2*sigma*sigma)))
		}
	}
	return img
}
