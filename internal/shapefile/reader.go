// Package shapefile reads ESRI shapefiles uploaded as document attachments
// and turns them into go-geom features.
package shapefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"corridor-platform/internal/geo"
)

// ErrNoShapefile is returned when no .shp file is among the given files
var ErrNoShapefile = errors.New("no shapefile (.shp) found")

// Feature is one record of a shapefile layer
type Feature struct {
	Attributes map[string]any
	Geometry   geom.T
}

// Layer is the single layer of a shapefile, fully read into memory
type Layer struct {
	Fields       []string
	Count        int
	GeometryType string
	CRS          geo.CRS
	// ProjectionMissing is set when no .prj file was found and WGS84 was assumed
	ProjectionMissing bool
	// ProjectionError is set when the .prj file describes a coordinate
	// system the features cannot be reprojected from
	ProjectionError error

	features []Feature
}

// Features returns the layer's records in file order
func (l *Layer) Features() []Feature {
	return l.features
}

// HasZ reports whether the layer stores elevation values
func (l *Layer) HasZ() bool {
	return strings.HasSuffix(l.GeometryType, "25D")
}

// Reproject returns g in WGS84 longitude/latitude
func (l *Layer) Reproject(g geom.T) (geom.T, error) {
	if l.ProjectionError != nil {
		return nil, l.ProjectionError
	}
	return l.CRS.ToWGS84(g)
}

// Files groups the component files of one shapefile
type Files struct {
	SHP string
	SHX string
	DBF string
	PRJ string
}

// Locate picks the shapefile components out of a list of paths
func Locate(paths []string) Files {
	var f Files
	for _, p := range paths {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".shp":
			if f.SHP == "" {
				f.SHP = p
			}
		case ".shx":
			if f.SHX == "" {
				f.SHX = p
			}
		case ".dbf":
			if f.DBF == "" {
				f.DBF = p
			}
		case ".prj":
			if f.PRJ == "" {
				f.PRJ = p
			}
		}
	}
	return f
}

// Open reads the shapefile found among paths
func Open(paths []string) (*Layer, error) {
	files := Locate(paths)
	if files.SHP == "" {
		return nil, ErrNoShapefile
	}

	layer := &Layer{CRS: geo.WGS84}
	if files.PRJ == "" {
		layer.ProjectionMissing = true
	} else {
		wkt, err := os.ReadFile(files.PRJ)
		if err != nil {
			return nil, fmt.Errorf("error reading projection file: %w", err)
		}
		if layer.CRS, err = geo.ParsePRJ(string(wkt)); err != nil {
			layer.ProjectionError = err
		}
	}

	// go-shp derives the .dbf name from the .shp name, and uploaded files
	// rarely share a base name, so they are staged side by side first.
	dir, err := os.MkdirTemp("", "shapefile-")
	if err != nil {
		return nil, fmt.Errorf("error creating staging directory: %w", err)
	}
	defer os.RemoveAll(dir)

	staged := map[string]string{"layer.shp": files.SHP, "layer.shx": files.SHX, "layer.dbf": files.DBF}
	for name, src := range staged {
		if src == "" {
			continue
		}
		if err := copyFile(src, filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}

	if err := layer.read(filepath.Join(dir, "layer.shp"), files.DBF != ""); err != nil {
		return nil, err
	}
	return layer, nil
}

func (l *Layer) read(path string, withDBF bool) error {
	r, err := shp.Open(path)
	if err != nil {
		return fmt.Errorf("error opening shapefile: %w", err)
	}
	defer r.Close()

	l.GeometryType = typeName(r.GeometryType)

	var fields []shp.Field
	if withDBF {
		fields = r.Fields()
	}
	l.Fields = make([]string, len(fields))
	for i, f := range fields {
		l.Fields[i] = f.String()
	}

	rows := 0
	if withDBF {
		rows = r.AttributeCount()
	}

	for r.Next() {
		n, shape := r.Shape()
		g, err := toGeometry(shape)
		if err != nil {
			return fmt.Errorf("error reading feature %d: %w", n, err)
		}

		attrs := make(map[string]any, len(fields))
		if n < rows {
			for i, f := range fields {
				attrs[l.Fields[i]] = parseValue(f, r.ReadAttribute(n, i))
			}
		}
		l.features = append(l.features, Feature{Attributes: attrs, Geometry: g})
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("error reading shapefile: %w", err)
	}

	l.Count = len(l.features)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error staging %s: %w", filepath.Base(src), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("error staging %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}

// typeName returns the OGR name of a shape type
func typeName(t shp.ShapeType) string {
	switch t {
	case shp.POINT:
		return "Point"
	case shp.POLYLINE:
		return "LineString"
	case shp.POLYGON:
		return "Polygon"
	case shp.MULTIPOINT:
		return "MultiPoint"
	case shp.POINTZ:
		return "Point25D"
	case shp.POLYLINEZ:
		return "LineString25D"
	case shp.POLYGONZ:
		return "Polygon25D"
	case shp.MULTIPOINTZ:
		return "MultiPoint25D"
	case shp.POINTM:
		return "PointM"
	case shp.POLYLINEM:
		return "LineStringM"
	case shp.POLYGONM:
		return "PolygonM"
	case shp.MULTIPOINTM:
		return "MultiPointM"
	case shp.MULTIPATCH:
		return "MultiPatch"
	default:
		return "Unknown"
	}
}

// parseValue converts a raw DBF value according to its field type
func parseValue(f shp.Field, raw string) any {
	raw = strings.TrimRight(raw, "\x00")
	raw = strings.TrimSpace(raw)

	switch f.Fieldtype {
	case 'N':
		if raw == "" {
			return nil
		}
		if f.Precision == 0 {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return v
			}
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return nil
	case 'F':
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return nil
	case 'L':
		switch raw {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		default:
			return nil
		}
	case 'D':
		if len(raw) != 8 {
			return nil
		}
		return raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8]
	default:
		return strings.ToValidUTF8(raw, "")
	}
}

func toGeometry(s shp.Shape) (geom.T, error) {
	switch v := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{v.X, v.Y}), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XYZ, []float64{v.X, v.Y, v.Z}), nil
	case *shp.PointM:
		return geom.NewPointFlat(geom.XYM, []float64{v.X, v.Y, v.M}), nil
	case *shp.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, flatPoints(v.Points, nil)), nil
	case *shp.MultiPointZ:
		return geom.NewMultiPointFlat(geom.XYZ, flatPoints(v.Points, v.ZArray)), nil
	case *shp.MultiPointM:
		return geom.NewMultiPointFlat(geom.XYM, flatPoints(v.Points, v.MArray)), nil
	case *shp.PolyLine:
		return lines(geom.XY, splitParts(v.Parts, v.Points, nil)), nil
	case *shp.PolyLineZ:
		return lines(geom.XYZ, splitParts(v.Parts, v.Points, v.ZArray)), nil
	case *shp.PolyLineM:
		return lines(geom.XYM, splitParts(v.Parts, v.Points, v.MArray)), nil
	case *shp.Polygon:
		return polygons(geom.XY, splitParts(v.Parts, v.Points, nil)), nil
	case *shp.PolygonZ:
		return polygons(geom.XYZ, splitParts(v.Parts, v.Points, v.ZArray)), nil
	case *shp.PolygonM:
		return polygons(geom.XYM, splitParts(v.Parts, v.Points, v.MArray)), nil
	default:
		return nil, fmt.Errorf("unsupported shape type %T", s)
	}
}

func flatPoints(points []shp.Point, extra []float64) []float64 {
	stride := 2
	if extra != nil {
		stride = 3
	}
	flat := make([]float64, 0, len(points)*stride)
	for i, p := range points {
		flat = append(flat, p.X, p.Y)
		if extra != nil {
			flat = append(flat, valueAt(extra, i))
		}
	}
	return flat
}

func valueAt(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

// splitParts cuts the point list of a multi-part shape into flat coordinate parts
func splitParts(parts []int32, points []shp.Point, extra []float64) [][]float64 {
	out := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		var partExtra []float64
		if extra != nil {
			partExtra = make([]float64, 0, end-start)
			for j := start; j < end; j++ {
				partExtra = append(partExtra, valueAt(extra, int(j)))
			}
		}
		out = append(out, flatPoints(points[start:end], partExtra))
	}
	return out
}

func lines(layout geom.Layout, parts [][]float64) geom.T {
	if len(parts) == 1 {
		return geom.NewLineStringFlat(layout, parts[0])
	}
	var (
		flat []float64
		ends []int
	)
	for _, p := range parts {
		flat = append(flat, p...)
		ends = append(ends, len(flat))
	}
	return geom.NewMultiLineStringFlat(layout, flat, ends)
}

// polygons assembles shapefile rings into polygons. Clockwise rings are
// shells; counter-clockwise rings are holes of the shell that contains them.
func polygons(layout geom.Layout, rings [][]float64) geom.T {
	var shells, holes [][]float64
	for _, r := range rings {
		if len(r) < 4*layout.Stride() {
			continue
		}
		if xy.IsRingCounterClockwise(layout, r) {
			holes = append(holes, r)
		} else {
			shells = append(shells, r)
		}
	}
	if len(shells) == 0 {
		shells, holes = holes, nil
	}

	members := make([][][]float64, len(shells))
	for i, s := range shells {
		members[i] = [][]float64{s}
	}
	for _, h := range holes {
		first := geom.Coord(h[:layout.Stride()])
		owner := -1
		for i, s := range shells {
			if xy.IsPointInRing(layout, first, s) {
				owner = i
				break
			}
		}
		if owner < 0 {
			members = append(members, [][]float64{h})
			continue
		}
		members[owner] = append(members[owner], h)
	}

	if len(members) == 1 {
		flat, ends := joinRings(members[0], 0)
		return geom.NewPolygonFlat(layout, flat, ends)
	}
	var (
		flat  []float64
		endss [][]int
	)
	for _, m := range members {
		f, ends := joinRings(m, len(flat))
		flat = append(flat, f...)
		endss = append(endss, ends)
	}
	return geom.NewMultiPolygonFlat(layout, flat, endss)
}

func joinRings(rings [][]float64, offset int) ([]float64, []int) {
	var (
		flat []float64
		ends []int
	)
	for _, r := range rings {
		flat = append(flat, r...)
		ends = append(ends, offset+len(flat))
	}
	return flat, ends
}
