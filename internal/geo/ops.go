package geo

import (
	"fmt"

	geom2 "github.com/peterstace/simplefeatures/geom"
	"github.com/twpayne/go-geom"
)

// UnionAll merges geometries into one by pairwise reduction
func UnionAll(gs []geom.T) (geom.T, error) {
	if len(gs) == 0 {
		return nil, ErrEmptyGeometry
	}

	sfs := make([]geom2.Geometry, 0, len(gs))
	for _, g := range gs {
		if g == nil || g.Empty() {
			continue
		}
		sf, err := ToSF(g)
		if err != nil {
			return nil, err
		}
		sfs = append(sfs, sf)
	}
	if len(sfs) == 0 {
		return nil, ErrEmptyGeometry
	}

	for len(sfs) > 1 {
		next := make([]geom2.Geometry, 0, (len(sfs)+1)/2)
		for i := 0; i < len(sfs); i += 2 {
			if i+1 == len(sfs) {
				next = append(next, sfs[i])
				continue
			}
			u, err := geom2.Union(sfs[i], sfs[i+1])
			if err != nil {
				return nil, fmt.Errorf("error computing union: %w", err)
			}
			next = append(next, u)
		}
		sfs = next
	}
	return FromSF(sfs[0])
}

// Intersects reports whether two geometries share any point
func Intersects(a, b geom.T) (bool, error) {
	sa, err := ToSF(a)
	if err != nil {
		return false, err
	}
	sb, err := ToSF(b)
	if err != nil {
		return false, err
	}
	return geom2.Intersects(sa, sb), nil
}

// Intersection returns the part of a that lies inside b
func Intersection(a, b geom.T) (geom.T, error) {
	sa, err := ToSF(a)
	if err != nil {
		return nil, err
	}
	sb, err := ToSF(b)
	if err != nil {
		return nil, err
	}
	out, err := geom2.Intersection(sa, sb)
	if err != nil {
		return nil, fmt.Errorf("error computing intersection: %w", err)
	}
	return FromSF(out)
}

// Difference returns the part of a that lies outside b
func Difference(a, b geom.T) (geom.T, error) {
	sa, err := ToSF(a)
	if err != nil {
		return nil, err
	}
	sb, err := ToSF(b)
	if err != nil {
		return nil, err
	}
	out, err := geom2.Difference(sa, sb)
	if err != nil {
		return nil, fmt.Errorf("error computing difference: %w", err)
	}
	return FromSF(out)
}

// ClipOutcome tells what clipping did to a geometry
type ClipOutcome int

const (
	// ClipKeep means the geometry is fully inside the boundary
	ClipKeep ClipOutcome = iota
	// ClipDrop means the geometry is fully outside the boundary
	ClipDrop
	// ClipTrim means the geometry crossed the boundary and was cut
	ClipTrim
)

// Clip cuts g to boundary
func Clip(g, boundary geom.T) (geom.T, ClipOutcome, error) {
	sg, err := ToSF(g)
	if err != nil {
		return nil, ClipKeep, err
	}
	sb, err := ToSF(boundary)
	if err != nil {
		return nil, ClipKeep, err
	}

	if !geom2.Intersects(sg, sb) {
		return nil, ClipDrop, nil
	}
	if inside, err := geom2.Contains(sb, sg); err == nil && inside {
		return g, ClipKeep, nil
	}

	cut, err := geom2.Intersection(sg, sb)
	if err != nil {
		return nil, ClipKeep, fmt.Errorf("error clipping geometry: %w", err)
	}
	if cut.IsEmpty() {
		return nil, ClipDrop, nil
	}
	out, err := FromSF(cut)
	if err != nil {
		return nil, ClipKeep, err
	}
	return out, ClipTrim, nil
}

// calculateIntersectionArea returns the area shared by two polygons
func calculateIntersectionArea(requestPoly, layerPoly geom2.Geometry) float64 {
	if !geom2.Intersects(requestPoly, layerPoly) {
		return 0
	}
	if equals, err := geom2.Equals(requestPoly, layerPoly); err == nil && equals {
		return layerPoly.Area()
	}
	if contains, err := geom2.Contains(requestPoly, layerPoly); err == nil && contains {
		return layerPoly.Area()
	}
	intersection, err := geom2.Intersection(requestPoly, layerPoly)
	if err != nil {
		return 0
	}
	return intersection.Area()
}

// IntersectionPercentage returns the share of area's surface covered by
// layer, in percent. Overlaps under 5% count as none.
func IntersectionPercentage(area, layer geom.T) (float64, error) {
	sa, err := ToSF(area)
	if err != nil {
		return 0, err
	}
	sl, err := ToSF(layer)
	if err != nil {
		return 0, err
	}

	total := sa.Area()
	if total <= 0 {
		return 0, nil
	}
	shared := calculateIntersectionArea(sl, sa)
	if shared == 0 {
		return 0, nil
	}
	percentage := shared / total * 100
	if percentage < 5 {
		return 0, nil
	}
	if percentage > 100 {
		percentage = 100
	}
	return percentage, nil
}

type lengther interface {
	Length() float64
}

// Length returns the planar length of g in its own units. Polygons count
// their perimeter.
func Length(g geom.T) float64 {
	if gc, ok := g.(*geom.GeometryCollection); ok {
		total := 0.0
		for _, child := range gc.Geoms() {
			total += Length(child)
		}
		return total
	}
	if l, ok := g.(lengther); ok {
		return l.Length()
	}
	return 0
}

// LengthMeters returns the length of a WGS84 geometry measured in Web Mercator
func LengthMeters(g geom.T) (float64, error) {
	projected, err := ToWebMercator(g)
	if err != nil {
		return 0, err
	}
	return Length(projected), nil
}
