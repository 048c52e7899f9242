// Package geo holds the geometry helpers shared by the shapefile pipeline and
// the map views: conversions between geometry libraries, reprojection,
// simplification and overlay operations.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	geom2 "github.com/peterstace/simplefeatures/geom"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/xy"
)

// ErrEmptyGeometry is returned when an operation needs a non-empty geometry
var ErrEmptyGeometry = errors.New("empty geometry")

// ToSF converts a go-geom geometry to a simplefeatures geometry
func ToSF(g geom.T) (geom2.Geometry, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return geom2.Geometry{}, fmt.Errorf("error encoding geometry: %w", err)
	}
	sf, err := geom2.UnmarshalWKB(data)
	if err != nil {
		return geom2.Geometry{}, fmt.Errorf("error decoding geometry: %w", err)
	}
	return sf, nil
}

// FromSF converts a simplefeatures geometry back to go-geom
func FromSF(g geom2.Geometry) (geom.T, error) {
	t, err := wkb.Unmarshal(g.AsBinary())
	if err != nil {
		return nil, fmt.Errorf("error decoding geometry: %w", err)
	}
	return t, nil
}

// MarshalWKB encodes a geometry as little endian WKB
func MarshalWKB(g geom.T) ([]byte, error) {
	return wkb.Marshal(g, wkb.NDR)
}

// UnmarshalWKB decodes WKB into a geometry
func UnmarshalWKB(data []byte) (geom.T, error) {
	return wkb.Unmarshal(data)
}

// EncodeGeoJSON returns the GeoJSON geometry object for g
func EncodeGeoJSON(g geom.T) (json.RawMessage, error) {
	if g == nil {
		return json.RawMessage("null"), nil
	}
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	return data, nil
}

// ParseGeoJSON reads a GeoJSON geometry, Feature or FeatureCollection. For
// collections the geometries of all features are combined into one.
func ParseGeoJSON(data []byte) (geom.T, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("error parsing GeoJSON: %w", err)
	}

	switch head.Type {
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("error parsing GeoJSON feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, ErrEmptyGeometry
		}
		return Force2D(f.Geometry)
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("error parsing GeoJSON feature collection: %w", err)
		}
		if len(fc.Features) == 0 {
			return nil, ErrEmptyGeometry
		}
		geoms := make([]geom.T, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry == nil {
				continue
			}
			flat, err := Force2D(f.Geometry)
			if err != nil {
				return nil, err
			}
			geoms = append(geoms, flat)
		}
		if len(geoms) == 1 {
			return geoms[0], nil
		}
		return UnionAll(geoms)
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("error parsing GeoJSON geometry: %w", err)
		}
		return Force2D(g)
	}
}

// HasZ reports whether g carries a Z ordinate
func HasZ(g geom.T) bool {
	switch g.Layout() {
	case geom.XYZ, geom.XYZM:
		return true
	default:
		return false
	}
}

// Force2D drops Z and M ordinates
func Force2D(g geom.T) (geom.T, error) {
	if g.Layout() == geom.XY {
		return g, nil
	}
	return mapCoords(g, geom.XY, func(x, y float64) (float64, float64) {
		return x, y
	})
}

// Point returns a 2D point
func Point(lng, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat})
}

// Centroid returns the centroid of g as a point
func Centroid(g geom.T) (*geom.Point, error) {
	if gc, ok := g.(*geom.GeometryCollection); ok {
		if gc.Empty() {
			return nil, ErrEmptyGeometry
		}
		g = gc.Geom(0)
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return nil, err
	}
	return Point(c.X(), c.Y()), nil
}

// TypeName returns the GeoJSON type name of g
func TypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.LineString, *geom.LinearRing:
		return "LineString"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	default:
		return ""
	}
}

// mapCoords rebuilds g with every XY pair passed through fn. The output keeps
// g's shape; extra ordinates are copied when layout has room for them.
func mapCoords(g geom.T, layout geom.Layout, fn func(x, y float64) (float64, float64)) (geom.T, error) {
	if gc, ok := g.(*geom.GeometryCollection); ok {
		out := geom.NewGeometryCollection()
		for _, child := range gc.Geoms() {
			mapped, err := mapCoords(child, layout, fn)
			if err != nil {
				return nil, err
			}
			if err := out.Push(mapped); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	in := g.FlatCoords()
	inStride := g.Stride()
	outStride := layout.Stride()
	if inStride == 0 {
		inStride = outStride
	}
	out := make([]float64, 0, len(in)/inStride*outStride)
	for i := 0; i+1 < len(in); i += inStride {
		x, y := fn(in[i], in[i+1])
		out = append(out, x, y)
		for k := 2; k < outStride; k++ {
			if k < inStride {
				out = append(out, in[i+k])
			} else {
				out = append(out, 0)
			}
		}
	}

	scale := func(ends []int) []int {
		scaled := make([]int, len(ends))
		for i, e := range ends {
			scaled[i] = e / inStride * outStride
		}
		return scaled
	}

	switch t := g.(type) {
	case *geom.Point:
		if t.Empty() {
			return geom.NewPointEmpty(layout), nil
		}
		return geom.NewPointFlat(layout, out), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(layout, out), nil
	case *geom.LinearRing:
		return geom.NewLinearRingFlat(layout, out), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(layout, out, scale(t.Ends())), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(layout, out, geom.NewMultiPointFlatOptionWithEnds(scale(t.Ends()))), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(layout, out, scale(t.Ends())), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = scale(ends)
		}
		return geom.NewMultiPolygonFlat(layout, out, endss), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
}
