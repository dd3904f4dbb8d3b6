package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Image represents a 2D array of pixel intensities
type Image struct {
	// Rows is the number of pixel rows (first array axis)
	Rows int

	// Cols is the number of pixel columns (second array axis)
	Cols int

	// Data holds the pixel values in row-major order
	Data []float64
}

// NewImage creates a zero-filled image with the given dimensions
func NewImage(rows, cols int) *Image {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return &Image{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// NewImageFrom wraps existing row-major data. The slice is not copied.
func NewImageFrom(rows, cols int, data []float64) (*Image, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("image data has %d values, expected %d for %dx%d", len(data), rows*cols, rows, cols)
	}
	return &Image{Rows: rows, Cols: cols, Data: data}, nil
}

// At returns the pixel value at (row, col)
func (im *Image) At(row, col int) float64 {
	return im.Data[row*im.Cols+col]
}

// Set stores v at (row, col)
func (im *Image) Set(row, col int, v float64) {
	im.Data[row*im.Cols+col] = v
}

// Shape returns the (rows, cols) dimensions of the image
func (im *Image) Shape() (int, int) {
	return im.Rows, im.Cols
}

// Len returns the number of pixels
func (im *Image) Len() int {
	return im.Rows * im.Cols
}

// Clone returns a deep copy of the image
func (im *Image) Clone() *Image {
	data := make([]float64, len(im.Data))
	copy(data, im.Data)
	return &Image{Rows: im.Rows, Cols: im.Cols, Data: data}
}

// Validate checks the image has positive dimensions, consistent storage and
// finite pixel values.
func (im *Image) Validate() error {
	if im == nil {
		return fmt.Errorf("image is nil")
	}
	if im.Rows <= 0 || im.Cols <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", im.Rows, im.Cols)
	}
	if len(im.Data) != im.Rows*im.Cols {
		return fmt.Errorf("image data has %d values, expected %d", len(im.Data), im.Rows*im.Cols)
	}
	for i, v := range im.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite pixel value %v at (%d,%d)", v, i/im.Cols, i%im.Cols)
		}
	}
	return nil
}

// SameShape reports whether two images have identical dimensions
func (im *Image) SameShape(other *Image) bool {
	return other != nil && im.Rows == other.Rows && im.Cols == other.Cols
}

// Region selects a rectangular sub-array of an image. Max bounds are
// exclusive, matching slice semantics.
type Region struct {
	RowMin, RowMax int
	ColMin, ColMax int
}

// ParseRegion parses a region given as "ymin,ymax,xmin,xmax"
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q must have 4 comma-separated values (ymin,ymax,xmin,xmax)", s)
	}
	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		vals[i] = v
	}
	r := Region{RowMin: vals[0], RowMax: vals[1], ColMin: vals[2], ColMax: vals[3]}
	if r.RowMax <= r.RowMin || r.ColMax <= r.ColMin {
		return Region{}, fmt.Errorf("region %q is empty", s)
	}
	return r, nil
}

// String formats the region in the same form ParseRegion accepts
func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.RowMin, r.RowMax, r.ColMin, r.ColMax)
}

// Rows returns the number of rows covered by the region
func (r Region) Rows() int { return r.RowMax - r.RowMin }

// Cols returns the number of columns covered by the region
func (r Region) Cols() int { return r.ColMax - r.ColMin }

// Within reports whether the region lies inside an image of the given shape
func (r Region) Within(rows, cols int) bool {
	return r.RowMin >= 0 && r.ColMin >= 0 && r.RowMax <= rows && r.ColMax <= cols &&
		r.RowMax > r.RowMin && r.ColMax > r.ColMin
}
