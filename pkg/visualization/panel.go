// Package visualization renders diagnostic plots of shapelet fits.
package visualization

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"shapeletfit/internal/models"
)

// paletteSize is the number of colours in each heat map palette
const paletteSize = 64

// Panel holds the four views of a fit: the data, the model with its
// centroid marked, the residual and the coefficient grid.
type Panel struct {
	Image        *models.Image
	Model        *models.Image
	Residual     *models.Image
	Coefficients [][]float64
	Centroid     models.Centroid
}

// NewPanel collects the views of res fitted to img
func NewPanel(img *models.Image, res *models.FitResult) Panel {
	return Panel{
		Image:        img,
		Model:        res.Model,
		Residual:     res.Residual,
		Coefficients: res.CoefficientGrid(),
		Centroid:     res.Centroid,
	}
}

// imageGrid adapts an Image to plotter.GridXYZ with x along columns
type imageGrid struct {
	img *models.Image
}

func (g imageGrid) Dims() (c, r int)   { return g.img.Cols, g.img.Rows }
func (g imageGrid) Z(c, r int) float64 { return g.img.At(r, c) }
func (g imageGrid) X(c int) float64    { return float64(c) }
func (g imageGrid) Y(r int) float64    { return float64(r) }

// coeffGrid adapts a coefficient grid indexed [i][j] to plotter.GridXYZ
type coeffGrid [][]float64

func (g coeffGrid) Dims() (c, r int)   { return len(g[0]), len(g) }
func (g coeffGrid) Z(c, r int) float64 { return g[r][c] }
func (g coeffGrid) X(c int) float64    { return float64(c) }
func (g coeffGrid) Y(r int) float64    { return float64(r) }

// Plots builds the 2x2 arrangement of plots for the panel
func (p Panel) Plots() ([][]*plot.Plot, error) {
	if p.Image == nil || p.Model == nil || p.Residual == nil {
		return nil, fmt.Errorf("panel needs an image, a model and a residual")
	}
	if len(p.Coefficients) == 0 || len(p.Coefficients[0]) == 0 {
		return nil, fmt.Errorf("panel needs at least one coefficient")
	}

	heat := palette.Heat(paletteSize, 1)
	diverging := moreland.SmoothBlueRed().Palette(paletteSize)

	image := newImagePlot("Image", true)
	image.Add(sequentialMap(imageGrid{p.Image}, heat))

	model := newImagePlot("Model", true)
	model.Add(sequentialMap(imageGrid{p.Model}, heat))
	marker, err := plotter.NewScatter(plotter.XYs{{X: p.Centroid.Col, Y: p.Centroid.Row}})
	if err != nil {
		return nil, err
	}
	marker.GlyphStyle.Shape = draw.PlusGlyph{}
	marker.GlyphStyle.Radius = vg.Points(5)
	model.Add(marker)

	residual := newImagePlot("Residual", true)
	residual.Add(divergingMap(imageGrid{p.Residual}, diverging))

	coeffs := newImagePlot("Coefficients", false)
	coeffs.X.Label.Text = "n2"
	coeffs.Y.Label.Text = "n1"
	coeffs.Add(divergingMap(coeffGrid(p.Coefficients), diverging))

	return [][]*plot.Plot{
		{image, model},
		{residual, coeffs},
	}, nil
}

// newImagePlot creates a plot titled title. Pixel plots put row 0 at the top.
func newImagePlot(title string, pixels bool) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	if pixels {
		p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
		p.X.Label.Text = "col"
		p.Y.Label.Text = "row"
	}
	return p
}

// sequentialMap spans the palette over the data range
func sequentialMap(g plotter.GridXYZ, pal palette.Palette) *plotter.HeatMap {
	h := plotter.NewHeatMap(g, pal)
	if h.Min == h.Max {
		h.Min, h.Max = h.Min-0.5, h.Max+0.5
	}
	return h
}

// divergingMap centres the palette on zero
func divergingMap(g plotter.GridXYZ, pal palette.Palette) *plotter.HeatMap {
	h := plotter.NewHeatMap(g, pal)
	m := math.Max(math.Abs(h.Min), math.Abs(h.Max))
	if m == 0 {
		m = 1
	}
	h.Min, h.Max = -m, m
	return h
}

// RenderPanel draws the panel as a PNG of the given size to w
func RenderPanel(w io.Writer, p Panel, width, height vg.Length) error {
	plots, err := p.Plots()
	if err != nil {
		return err
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}

	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("error encoding panel: %w", err)
	}
	return nil
}

// SavePanel renders the panel to an 8x8 inch PNG file
func SavePanel(path string, p Panel) error {
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

	return RenderPanel(file, p, 8*vg.Inch, 8*vg.Inch)
}
