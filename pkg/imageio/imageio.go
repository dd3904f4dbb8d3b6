// Package imageio loads image cutouts into float grids and writes float
// grids back out as 16-bit greyscale images.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"

	"shapeletfit/internal/models"
)

// Load reads a PNG, JPEG or TIFF file into an Image of luminance values in
// [0, 1]. Image rows run along y and columns along x.
func Load(path string) (*models.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := decode(file, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return FromImage(img), nil
}

func decode(r io.Reader, ext string) (image.Image, error) {
	switch ext {
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".png":
		return png.Decode(r)
	case ".tif", ".tiff":
		return tiff.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported image format %q", ext)
	}
}

// FromImage converts img to a float grid of 16-bit luminance scaled to [0, 1]
func FromImage(img image.Image) *models.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := models.NewImage(height, width)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			out.Data[y*width+x] = float64(g.Y) / 65535.0
		}
	}
	return out
}

// ToImage maps img linearly from its [min, max] range onto 16-bit greyscale.
// A constant image maps to black.
func ToImage(img *models.Image) image.Image {
	out := image.NewGray16(image.Rect(0, 0, img.Cols, img.Rows))
	lo, hi := minMax(img.Data)
	span := hi - lo

	for y := 0; y < img.Rows; y++ {
		for x := 0; x < img.Cols; x++ {
			var value uint16
			if span > 0 {
				value = uint16((img.At(y, x) - lo) / span * 65535.0)
			}
			out.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return out
}

// Save writes img as PNG or TIFF depending on the file extension
func Save(path string, img *models.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(file, ToImage(img))
	case ".tif", ".tiff":
		err = tiff.Encode(file, ToImage(img), &tiff.Options{Compression: tiff.Deflate})
	default:
		err = fmt.Errorf("unsupported output format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", path, err)
	}
	return nil
}

// SelectRegion copies the pixels of r out of img
func SelectRegion(img *models.Image, r models.Region) (*models.Image, error) {
	if !r.Within(img.Rows, img.Cols) {
		return nil, fmt.Errorf("region %s outside %dx%d image", r, img.Rows, img.Cols)
	}
	out := models.NewImage(r.Rows(), r.Cols())
	for row := 0; row < r.Rows(); row++ {
		src := (r.RowMin+row)*img.Cols + r.ColMin
		copy(out.Data[row*out.Cols:(row+1)*out.Cols], img.Data[src:src+out.Cols])
	}
	return out, nil
}

func minMax(data []float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return floats.Min(data), floats.Max(data)
}
