package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

const (
	circleSegments = 64
	vertexSegments = 16
)

// circleRing returns a closed ring approximating a circle
func circleRing(cx, cy, radius float64, segments int) []float64 {
	flat := make([]float64, 0, (segments+1)*2)
	for i := 0; i < segments; i++ {
		angle := 2 * math.Pi * float64(i) / float64(segments)
		flat = append(flat, cx+radius*math.Cos(angle), cy+radius*math.Sin(angle))
	}
	return append(flat, flat[0], flat[1])
}

// CircleAround returns a polygon of the given radius in metres around a
// WGS84 point. The circle is built in Web Mercator and projected back.
func CircleAround(lng, lat, meters float64) (geom.T, error) {
	center, err := ToWebMercator(Point(lng, lat))
	if err != nil {
		return nil, err
	}
	c := center.FlatCoords()
	ring := circleRing(c[0], c[1], meters, circleSegments)
	circle := geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)})
	return FromWebMercator(circle)
}

// Buffer grows a WGS84 geometry by the given distance in metres. The shape is
// the union of the geometry's own area, a disc around every vertex and a
// rectangle along every segment, computed in Web Mercator.
func Buffer(g geom.T, meters float64) (geom.T, error) {
	if g == nil || g.Empty() {
		return nil, ErrEmptyGeometry
	}
	projected, err := ToWebMercator(g)
	if err != nil {
		return nil, err
	}
	projected, err = Force2D(projected)
	if err != nil {
		return nil, err
	}
	// Detail finer than a tenth of the distance disappears in the buffer anyway.
	projected, err = Simplify(projected, meters/10)
	if err != nil {
		return nil, err
	}

	pieces := bufferPieces(projected, meters)
	merged, err := UnionAll(pieces)
	if err != nil {
		return nil, err
	}
	return FromWebMercator(merged)
}

func bufferPieces(g geom.T, r float64) []geom.T {
	var pieces []geom.T

	addPath := func(flat []float64) {
		for i := 0; i+1 < len(flat); i += 2 {
			ring := circleRing(flat[i], flat[i+1], r, vertexSegments)
			pieces = append(pieces, geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)}))
			if i+3 >= len(flat) {
				continue
			}
			if rect := segmentRect(flat[i], flat[i+1], flat[i+2], flat[i+3], r); rect != nil {
				pieces = append(pieces, rect)
			}
		}
	}
	addParts := func(flat []float64, ends []int) {
		start := 0
		for _, end := range ends {
			addPath(flat[start:end])
			start = end
		}
	}

	switch t := g.(type) {
	case *geom.Point:
		addPath(t.FlatCoords())
	case *geom.MultiPoint:
		addPath(t.FlatCoords())
	case *geom.LineString:
		addPath(t.FlatCoords())
	case *geom.MultiLineString:
		addParts(t.FlatCoords(), t.Ends())
	case *geom.Polygon:
		pieces = append(pieces, t)
		addParts(t.FlatCoords(), t.Ends())
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			pieces = append(pieces, p)
			addParts(p.FlatCoords(), p.Ends())
		}
	case *geom.GeometryCollection:
		for _, child := range t.Geoms() {
			pieces = append(pieces, bufferPieces(child, r)...)
		}
	}
	return pieces
}

// segmentRect returns the rectangle of half-width r around a segment
func segmentRect(x1, y1, x2, y2, r float64) *geom.Polygon {
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil
	}
	nx, ny := -dy/length*r, dx/length*r
	ring := []float64{
		x1 + nx, y1 + ny,
		x2 + nx, y2 + ny,
		x2 - nx, y2 - ny,
		x1 - nx, y1 - ny,
		x1 + nx, y1 + ny,
	}
	return geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)})
}
