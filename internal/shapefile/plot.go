package shapefile

import (
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/twpayne/go-geom"

	"corridor-platform/internal/geo"
)

// Plot errors are shown to staff as-is
var (
	ErrPlotMissingFiles = errors.New("No shapefile found! Make sure all required files are uploaded (.shp, .shx, .dbf, .prj).")
	ErrPlotTooManyFiles = errors.New("Too many files found! Make sure one file is uploaded for all four required types (.shp, .shx, .dbf, .prj).")
	ErrPlotNoSHP        = errors.New("No shapefile (.shp) found!")
)

const (
	plotSize    = 800
	plotPadding = 20
)

// PlotFiles checks that paths hold exactly one file for each of the four
// required shapefile components.
func PlotFiles(paths []string) error {
	count := 0
	hasSHP := false
	for _, p := range paths {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".shp":
			hasSHP = true
			count++
		case ".shx", ".dbf", ".prj":
			count++
		}
	}
	switch {
	case count < 4:
		return ErrPlotMissingFiles
	case count > 4:
		return ErrPlotTooManyFiles
	case !hasSHP:
		return ErrPlotNoSHP
	}
	return nil
}

// Plot renders the layer in Web Mercator as a PNG: half transparent fill
// with black edges.
func Plot(layer *Layer, w io.Writer) error {
	projected := make([]geom.T, 0, layer.Count)
	bounds := geom.NewBounds(geom.XY)
	for _, f := range layer.Features() {
		if f.Geometry == nil || f.Geometry.Empty() {
			continue
		}
		g, err := geo.Force2D(f.Geometry)
		if err != nil {
			return err
		}
		if g, err = layer.Reproject(g); err != nil {
			return err
		}
		if g, err = geo.ToWebMercator(g); err != nil {
			return err
		}
		b := g.Bounds()
		bounds.Set(
			math.Min(bounds.Min(0), b.Min(0)),
			math.Min(bounds.Min(1), b.Min(1)),
			math.Max(bounds.Max(0), b.Max(0)),
			math.Max(bounds.Max(1), b.Max(1)),
		)
		projected = append(projected, g)
	}
	if len(projected) == 0 {
		return geo.ErrEmptyGeometry
	}

	width := bounds.Max(0) - bounds.Min(0)
	height := bounds.Max(1) - bounds.Min(1)
	span := math.Max(width, height)
	if span == 0 {
		span = 1
	}
	scale := float64(plotSize-2*plotPadding) / span
	imgW := int(math.Ceil(width*scale)) + 2*plotPadding
	imgH := int(math.Ceil(height*scale)) + 2*plotPadding

	p := &plotter{
		dc: gg.NewContext(imgW, imgH),
		toPixel: func(x, y float64) (float64, float64) {
			return plotPadding + (x-bounds.Min(0))*scale, float64(imgH) - plotPadding - (y-bounds.Min(1))*scale
		},
	}
	p.dc.SetRGB(1, 1, 1)
	p.dc.Clear()
	p.dc.SetFillRuleEvenOdd()
	p.dc.SetLineWidth(1)

	for _, g := range projected {
		p.draw(g)
	}
	return p.dc.EncodePNG(w)
}

type plotter struct {
	dc      *gg.Context
	toPixel func(x, y float64) (float64, float64)
}

func (p *plotter) draw(g geom.T) {
	switch t := g.(type) {
	case *geom.Point:
		p.points(t.FlatCoords())
	case *geom.MultiPoint:
		p.points(t.FlatCoords())
	case *geom.LineString:
		p.path(t.FlatCoords(), []int{len(t.FlatCoords())}, false)
	case *geom.MultiLineString:
		p.path(t.FlatCoords(), t.Ends(), false)
	case *geom.Polygon:
		p.path(t.FlatCoords(), t.Ends(), true)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			poly := t.Polygon(i)
			p.path(poly.FlatCoords(), poly.Ends(), true)
		}
	case *geom.GeometryCollection:
		for _, child := range t.Geoms() {
			p.draw(child)
		}
	}
}

func (p *plotter) points(flat []float64) {
	for i := 0; i+1 < len(flat); i += 2 {
		x, y := p.toPixel(flat[i], flat[i+1])
		p.dc.DrawCircle(x, y, 3)
		p.fillAndStroke()
	}
}

func (p *plotter) path(flat []float64, ends []int, closed bool) {
	start := 0
	for _, end := range ends {
		p.dc.NewSubPath()
		for i := start; i+1 < end; i += 2 {
			x, y := p.toPixel(flat[i], flat[i+1])
			if i == start {
				p.dc.MoveTo(x, y)
			} else {
				p.dc.LineTo(x, y)
			}
		}
		if closed {
			p.dc.ClosePath()
		}
		start = end
	}
	if closed {
		p.fillAndStroke()
		return
	}
	p.dc.SetRGB(0.12, 0.47, 0.71)
	p.dc.Stroke()
}

func (p *plotter) fillAndStroke() {
	p.dc.SetRGBA(0.12, 0.47, 0.71, 0.5)
	p.dc.FillPreserve()
	p.dc.SetRGB(0, 0, 0)
	p.dc.Stroke()
}
