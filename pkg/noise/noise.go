// Package noise estimates per-pixel noise maps for shapelet fitting.
package noise

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"shapeletfit/internal/models"
)

// ErrNoNoise is returned when the estimated standard deviation is zero, which
// would make the noise map unusable as inverse weights.
var ErrNoNoise = errors.New("noise: estimated standard deviation is zero")

// Options controls the iterative sigma clipping
type Options struct {
	// Sigma is the clipping threshold in standard deviations
	Sigma float64 `yaml:"sigma"`

	// Tolerance stops the iteration once the relative change in the
	// standard deviation falls below it
	Tolerance float64 `yaml:"tolerance"`

	// MaxIterations caps the number of clipping passes
	MaxIterations int `yaml:"maxIterations"`
}

// DefaultOptions returns 3-sigma clipping with a 1% tolerance and at most
// 10 passes.
func DefaultOptions() Options {
	return Options{
		Sigma:         3,
		Tolerance:     0.01,
		MaxIterations: 10,
	}
}

// Validate checks the clipping options
func (o Options) Validate() error {
	if !(o.Sigma > 0) {
		return fmt.Errorf("noise: sigma %v must be > 0", o.Sigma)
	}
	if !(o.Tolerance > 0) {
		return fmt.Errorf("noise: tolerance %v must be > 0", o.Tolerance)
	}
	if o.MaxIterations < 1 {
		return fmt.Errorf("noise: max iterations %d must be >= 1", o.MaxIterations)
	}
	return nil
}

// Estimate returns the standard deviation of the background pixels. With a
// region, the pixels inside it are taken as pure noise. Without one, the
// whole image is sigma-clipped to strip the source from the tails.
func Estimate(img *models.Image, region *models.Region, opts Options) (float64, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	if err := img.Validate(); err != nil {
		return 0, fmt.Errorf("noise: %w", err)
	}

	var std float64
	if region != nil {
		if !region.Within(img.Rows, img.Cols) {
			return 0, fmt.Errorf("noise: region %s outside %dx%d image", region, img.Rows, img.Cols)
		}
		_, std = stat.MeanStdDev(regionPixels(img, *region), nil)
	} else {
		std = clippedStdDev(img.Data, opts)
	}

	if !(std > 0) {
		return 0, ErrNoNoise
	}
	return std, nil
}

// EstimateMap returns a noise map with the shape of img filled with the
// estimated standard deviation.
func EstimateMap(img *models.Image, region *models.Region, opts Options) (*models.Image, error) {
	std, err := Estimate(img, region, opts)
	if err != nil {
		return nil, err
	}
	return Constant(img.Rows, img.Cols, std), nil
}

// Constant returns a rows x cols noise map of value sigma
func Constant(rows, cols int, sigma float64) *models.Image {
	m := models.NewImage(rows, cols)
	for i := range m.Data {
		m.Data[i] = sigma
	}
	return m
}

// clippedStdDev repeatedly discards pixels further than opts.Sigma standard
// deviations from the mean until the deviation settles.
func clippedStdDev(data []float64, opts Options) float64 {
	kept := append([]float64(nil), data...)
	mean, std := stat.MeanStdDev(kept, nil)

	for i := 0; i < opts.MaxIterations && std > 0; i++ {
		next := kept[:0:0]
		for _, v := range kept {
			if math.Abs(v-mean) <= opts.Sigma*std {
				next = append(next, v)
			}
		}
		if len(next) < 2 {
			break
		}
		newMean, newStd := stat.MeanStdDev(next, nil)
		change := math.Abs(newStd-std) / std
		kept, mean, std = next, newMean, newStd
		if change < opts.Tolerance {
			break
		}
	}
	return std
}

func regionPixels(img *models.Image, r models.Region) []float64 {
	pix := make([]float64, 0, r.Rows()*r.Cols())
	for row := r.RowMin; row < r.RowMax; row++ {
		pix = append(pix, img.Data[row*img.Cols+r.ColMin:row*img.Cols+r.ColMax]...)
	}
	return pix
}
