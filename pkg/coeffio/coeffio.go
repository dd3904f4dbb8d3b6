// Package coeffio reads and writes shapelet coefficient files.
package coeffio

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"shapeletfit/internal/models"
	"shapeletfit/pkg/shapelet"
)

// Record is the content of a coefficient file
type Record struct {
	// Source identifies the image the coefficients were fitted to
	Source string `yaml:"source"`

	// Shape is the (rows, cols) size of the fitted cutout
	Shape [2]int `yaml:"shape"`

	// Centroid is the expansion origin (row, col) in cutout pixels
	Centroid [2]float64 `yaml:"centroid"`

	// Beta is the scale pair (row, col) in pixels
	Beta [2]float64 `yaml:"beta"`

	// NMax is the model order (row, col)
	NMax [2]int `yaml:"nmax"`

	// Coefficients are stored row-major with NMax[1]+1 columns
	Coefficients []float64 `yaml:"coefficients,flow"`

	// Position holds sky coordinates when a header was available
	Position *Position `yaml:"position,omitempty"`
}

// Position carries the derived sky position and angular size in degrees
type Position struct {
	RA      float64 `yaml:"ra"`
	Dec     float64 `yaml:"dec"`
	SizeRow float64 `yaml:"sizeRow"`
	SizeCol float64 `yaml:"sizeCol"`
}

// FromResult builds a Record from a fit of an image of the given shape
func FromResult(res *models.FitResult, rows, cols int, source string) *Record {
	return &Record{
		Source:       source,
		Shape:        [2]int{rows, cols},
		Centroid:     [2]float64{res.Centroid.Row, res.Centroid.Col},
		Beta:         [2]float64{res.Scale.Row, res.Scale.Col},
		NMax:         [2]int{res.Order.Row, res.Order.Col},
		Coefficients: append([]float64(nil), res.Coefficients...),
	}
}

// Order returns the model order of the record
func (r *Record) Order() models.OrderPair {
	return models.OrderPair{Row: r.NMax[0], Col: r.NMax[1]}
}

// Scale returns the beta pair of the record
func (r *Record) Scale() models.ScalePair {
	return models.ScalePair{Row: r.Beta[0], Col: r.Beta[1]}
}

// Origin returns the centroid of the record
func (r *Record) Origin() models.Centroid {
	return models.Centroid{Row: r.Centroid[0], Col: r.Centroid[1]}
}

// Model reconstructs the fitted image from the stored coefficients
func (r *Record) Model() (*models.Image, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rows, cols := r.Shape[0], r.Shape[1]
	b, err := shapelet.BasisMatrix(r.Scale(), r.Order(), shapelet.Offsets(rows, r.Centroid[0]), shapelet.Offsets(cols, r.Centroid[1]))
	if err != nil {
		return nil, err
	}
	data, err := shapelet.Reconstruct(b, r.Coefficients)
	if err != nil {
		return nil, err
	}
	return models.NewImageFrom(rows, cols, data)
}

// Validate checks the coefficient count matches the order and the shape is
// positive.
func (r *Record) Validate() error {
	if r.Shape[0] <= 0 || r.Shape[1] <= 0 {
		return fmt.Errorf("invalid shape %v", r.Shape)
	}
	if r.NMax[0] < 0 || r.NMax[1] < 0 {
		return fmt.Errorf("invalid nmax %v", r.NMax)
	}
	if want := r.Order().Size(); len(r.Coefficients) != want {
		return fmt.Errorf("have %d coefficients, nmax %v needs %d", len(r.Coefficients), r.NMax, want)
	}
	if r.Beta[0] <= 0 || r.Beta[1] <= 0 {
		return fmt.Errorf("invalid beta %v", r.Beta)
	}
	return nil
}

// Write saves rec to path as YAML, creating parent directories
func Write(path string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("error validating coefficients: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error marshaling coefficients: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing coefficient file: %w", err)
	}
	return nil
}

// Read loads and validates a coefficient file
func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading coefficient file: %w", err)
	}
	rec := &Record{}
	if err := yaml.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("error parsing coefficient file: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("error validating coefficient file %s: %w", path, err)
	}
	return rec, nil
}
