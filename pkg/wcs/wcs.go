// Package wcs maps pixel positions and scales to sky coordinates using a
// linear world coordinate system with a gnomonic (TAN) projection.
//
// Headers are read from a YAML sidecar next to the image:
//
//	ctype: TAN
//	crpix: [64.5, 64.5]        # reference pixel (x, y), 1-based
//	crval: [150.1, 2.2]        # RA, Dec at the reference pixel in degrees
//	cd: [[-2.8e-4, 0], [0, 2.8e-4]]
//
// cdelt may replace cd for an unrotated grid.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"shapeletfit/internal/models"
)

// ErrSingular is returned when the CD matrix cannot be inverted
var ErrSingular = errors.New("wcs: singular CD matrix")

// Header holds the linear WCS keywords. Index 0 refers to the x (column)
// axis and index 1 to the y (row) axis, as in FITS.
type Header struct {
	CType string        `yaml:"ctype,omitempty"`
	CRPix [2]float64    `yaml:"crpix"`
	CRVal [2]float64    `yaml:"crval"`
	CD    [2][2]float64 `yaml:"cd,omitempty"`
	CDelt [2]float64    `yaml:"cdelt,omitempty"`
}

// SidecarPath returns the header path conventionally paired with an image
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".wcs.yaml"
}

// LoadHeader reads and validates a YAML header
func LoadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading header file: %w", err)
	}
	h := &Header{}
	if err := yaml.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("error parsing header file: %w", err)
	}
	if h.CD == ([2][2]float64{}) {
		h.CD = [2][2]float64{{h.CDelt[0], 0}, {0, h.CDelt[1]}}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// SaveHeader writes h as YAML
func SaveHeader(h *Header, path string) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("error marshaling header: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing header file: %w", err)
	}
	return nil
}

// Validate checks the projection is supported and the CD matrix invertible
func (h *Header) Validate() error {
	if t := strings.ToUpper(h.CType); t != "" && t != "TAN" {
		return fmt.Errorf("wcs: unsupported projection %q", h.CType)
	}
	if _, err := h.inverseCD(); err != nil {
		return err
	}
	return nil
}

func (h *Header) cd() *mat.Dense {
	return mat.NewDense(2, 2, []float64{h.CD[0][0], h.CD[0][1], h.CD[1][0], h.CD[1][1]})
}

func (h *Header) inverseCD() (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.cd()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &inv, nil
}

// SkyPosition is a right ascension and declination in degrees
type SkyPosition struct {
	RA  float64
	Dec float64
}

// PixelToSky converts a 0-based (row, col) position inside a cutout whose
// top-left pixel sits at offset in the full image into sky coordinates.
func PixelToSky(c models.Centroid, h *Header, offset models.Centroid) SkyPosition {
	// FITS pixels are 1-based with x along columns
	x := c.Col + offset.Col + 1
	y := c.Row + offset.Row + 1

	var world mat.VecDense
	world.MulVec(h.cd(), mat.NewVecDense(2, []float64{x - h.CRPix[0], y - h.CRPix[1]}))
	xi := world.AtVec(0) * math.Pi / 180
	eta := world.AtVec(1) * math.Pi / 180

	ra0 := h.CRVal[0] * math.Pi / 180
	dec0 := h.CRVal[1] * math.Pi / 180
	den := math.Cos(dec0) - eta*math.Sin(dec0)
	ra := ra0 + math.Atan2(xi, den)
	dec := math.Atan2(eta*math.Cos(dec0)+math.Sin(dec0), math.Hypot(xi, den))

	raDeg := math.Mod(ra*180/math.Pi, 360)
	if raDeg < 0 {
		raDeg += 360
	}
	return SkyPosition{RA: raDeg, Dec: dec * 180 / math.Pi}
}

// SkyToPixel is the inverse of PixelToSky
func SkyToPixel(p SkyPosition, h *Header, offset models.Centroid) (models.Centroid, error) {
	inv, err := h.inverseCD()
	if err != nil {
		return models.Centroid{}, err
	}
	ra := p.RA * math.Pi / 180
	dec := p.Dec * math.Pi / 180
	ra0 := h.CRVal[0] * math.Pi / 180
	dec0 := h.CRVal[1] * math.Pi / 180

	cosc := math.Sin(dec0)*math.Sin(dec) + math.Cos(dec0)*math.Cos(dec)*math.Cos(ra-ra0)
	if cosc <= 0 {
		return models.Centroid{}, fmt.Errorf("wcs: position (%v,%v) is not on the projected hemisphere", p.RA, p.Dec)
	}
	xi := math.Cos(dec) * math.Sin(ra-ra0) / cosc
	eta := (math.Cos(dec0)*math.Sin(dec) - math.Sin(dec0)*math.Cos(dec)*math.Cos(ra-ra0)) / cosc

	var d mat.VecDense
	d.MulVec(inv, mat.NewVecDense(2, []float64{xi * 180 / math.Pi, eta * 180 / math.Pi}))
	return models.Centroid{
		Row: d.AtVec(1) + h.CRPix[1] - 1 - offset.Row,
		Col: d.AtVec(0) + h.CRPix[0] - 1 - offset.Col,
	}, nil
}

// PixelScale returns the angular size of one pixel along the row and column
// axes in degrees.
func (h *Header) PixelScale() models.ScalePair {
	return models.ScalePair{
		Row: math.Hypot(h.CD[0][1], h.CD[1][1]),
		Col: math.Hypot(h.CD[0][0], h.CD[1][0]),
	}
}

// ScaleToSize converts a beta pair in pixels to angular sizes in degrees
func ScaleToSize(s models.ScalePair, h *Header) models.ScalePair {
	ps := h.PixelScale()
	return models.ScalePair{Row: s.Row * ps.Row, Col: s.Col * ps.Col}
}
