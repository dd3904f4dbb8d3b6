package decomp

import (
	"testing"

	"shapeletfit/internal/models"
)

// TestSelectOrderTies verifies the first minimum wins within tolerance
func TestSelectOrderTies(t *testing.T) {
	tests := []struct {
		name  string
		costs []float64
		tol   float64
		want  int
	}{
		{"strict minimum", []float64{5, 3, 1, 2}, 0, 2},
		{"exact tie", []float64{4, 1, 1, 1}, 0, 1},
		{"tie within tolerance", []float64{1, 1 - 1e-9, 0.9999999}, 1e-6, 0},
		{"improvement beyond tolerance", []float64{5, 1, 1 + 1e-9, 0.5}, 1e-6, 3},
		{"single", []float64{7}, 1e-6, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectOrder(tt.costs, tt.tol); got != tt.want {
				t.Errorf("Expected index %d, got %d", tt.want, got)
			}
		})
	}
}

// TestScanOrdersRecoversKnownOrder builds an image with three terms per axis
// and checks the scan selects exactly three.
func TestScanOrdersRecoversKnownOrder(t *testing.T) {
	scale := models.ScalePair{Row: 3, Col: 3}
	centroid := models.Centroid{Row: 16, Col: 16}
	order := models.OrderPair{Row: 2, Col: 2}
	coeffs := []float64{20, 0, 3, 0, -2, 0, 4, 0, 5}
	img := synthesize(t, 32, 32, scale, centroid, order, coeffs)
	noise := unitNoise(32, 32)

	scan, err := ScanOrders(img, noise, scale, centroid, 8, 1e-6, 1)
	if err != nil {
		t.Fatalf("ScanOrders: %v", err)
	}
	if scan.Terms != 3 {
		t.Errorf("Expected 3 terms, got %d (costs %v)", scan.Terms, scan.Costs)
	}
	if got := scan.Order(); got != order {
		t.Errorf("Expected order %v, got %v", order, got)
	}
	if len(scan.Costs) != 8 {
		t.Fatalf("Expected 8 costs, got %d", len(scan.Costs))
	}
	if scan.Costs[0] <= scan.Costs[2] || scan.Costs[1] <= scan.Costs[2] {
		t.Errorf("Expected smaller orders to fit worse, got %v", scan.Costs)
	}
}

// TestScanOrdersConcurrent verifies parallel evaluation gives the same costs
// and selection as a sequential scan.
func TestScanOrdersConcurrent(t *testing.T) {
	scale := models.ScalePair{Row: 2.5, Col: 2}
	centroid := models.Centroid{Row: 12, Col: 11}
	order := models.OrderPair{Row: 3, Col: 3}
	coeffs := make([]float64, order.Size())
	for i := range coeffs {
		coeffs[i] = float64(i%5) - 1.5
	}
	img := synthesize(t, 24, 24, scale, centroid, order, coeffs)
	noise := unitNoise(24, 24)

	seq, err := ScanOrders(img, noise, scale, centroid, 7, 1e-6, 1)
	if err != nil {
		t.Fatalf("sequential scan: %v", err)
	}
	par, err := ScanOrders(img, noise, scale, centroid, 7, 1e-6, 4)
	if err != nil {
		t.Fatalf("concurrent scan: %v", err)
	}

	if seq.Terms != 4 || par.Terms != seq.Terms {
		t.Errorf("Expected 4 terms from both scans, got %d and %d", seq.Terms, par.Terms)
	}
	for i := range seq.Costs {
		if seq.Costs[i] != par.Costs[i] {
			t.Errorf("Cost %d differs: %v vs %v", i, seq.Costs[i], par.Costs[i])
		}
	}
}
