package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Indexed is something with a geometry that can be stored in an Index
type Indexed interface {
	Geom() geom.T
}

type indexEntry[T Indexed] struct {
	item   T
	bounds *geom.Bounds
}

// Index answers "which items intersect this geometry" with a bounding box
// prefilter in front of the exact test
type Index[T Indexed] struct {
	entries []indexEntry[T]
	bounds  *geom.Bounds
}

// NewIndex creates a new spatial index from a list of items
func NewIndex[T Indexed](items []T) *Index[T] {
	idx := &Index[T]{
		entries: make([]indexEntry[T], 0, len(items)),
		bounds:  geom.NewBounds(geom.XY),
	}
	for _, item := range items {
		g := item.Geom()
		if g == nil || g.Empty() {
			continue
		}
		b := g.Bounds()
		idx.entries = append(idx.entries, indexEntry[T]{item: item, bounds: b})
		idx.bounds.Set(
			math.Min(idx.bounds.Min(0), b.Min(0)),
			math.Min(idx.bounds.Min(1), b.Min(1)),
			math.Max(idx.bounds.Max(0), b.Max(0)),
			math.Max(idx.bounds.Max(1), b.Max(1)),
		)
	}
	return idx
}

// Len returns the number of indexed items
func (s *Index[T]) Len() int {
	return len(s.entries)
}

// Query returns all items whose geometry intersects the given geometry
func (s *Index[T]) Query(g geom.T) ([]T, error) {
	if len(s.entries) == 0 || g == nil || g.Empty() {
		return nil, nil
	}
	qb := g.Bounds()
	if !s.bounds.Overlaps(geom.XY, qb) {
		return nil, nil
	}

	results := make([]T, 0, len(s.entries)/4)
	for _, e := range s.entries {
		if !e.bounds.Overlaps(geom.XY, qb) {
			continue
		}
		hit, err := Intersects(e.item.Geom(), g)
		if err != nil {
			return nil, err
		}
		if hit {
			results = append(results, e.item)
		}
	}
	return results, nil
}
