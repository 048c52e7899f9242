package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

type vertex struct {
	X float64
	Y float64
}

// Constants for ring complexity thresholds
const (
	// Maximum number of points before simplification is considered
	maxPoints = 700
	// Minimum number of points to consider for simplification
	minPoints = 400
	// Base percentage of bounding box diagonal for epsilon
	baseEpsilonPercent = 0.1
)

// calculatePolygonArea calculates the area of a ring using the shoelace formula
func calculatePolygonArea(points []vertex) float64 {
	area := 0.0
	j := len(points) - 1
	for i := 0; i < len(points); i++ {
		area += (points[j].X + points[i].X) * (points[j].Y - points[i].Y)
		j = i
	}
	return math.Abs(area) / 2
}

// calculateBoundingBoxDiagonal calculates the diagonal length of the points' bounding box
func calculateBoundingBoxDiagonal(points []vertex) float64 {
	if len(points) == 0 {
		return 0
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	dx := maxX - minX
	dy := maxY - minY
	return math.Sqrt(dx*dx + dy*dy)
}

// calculatePolygonComplexity determines if a ring needs simplification and returns an appropriate epsilon
func calculatePolygonComplexity(points []vertex) (bool, float64) {
	numPoints := len(points)
	if numPoints < minPoints {
		return false, 0
	}

	area := calculatePolygonArea(points)
	pointsPerArea := math.Inf(1)
	if area > 0 {
		pointsPerArea = float64(numPoints) / area
	}

	if numPoints <= maxPoints && pointsPerArea <= maxPoints {
		return false, 0
	}

	diagonal := calculateBoundingBoxDiagonal(points)
	baseEpsilon := diagonal * baseEpsilonPercent / 100.0

	// More points means a larger epsilon, capped at 1% of the diagonal.
	epsilon := baseEpsilon * math.Pow(float64(numPoints)/float64(minPoints), 0.55)
	maxEpsilon := diagonal * 0.01
	if epsilon > maxEpsilon {
		epsilon = maxEpsilon
	}
	return true, epsilon
}

// perpendicularDistance calculates the perpendicular distance from a point to a line segment
func perpendicularDistance(point, lineStart, lineEnd vertex) float64 {
	if lineStart.X == lineEnd.X && lineStart.Y == lineEnd.Y {
		return math.Hypot(point.X-lineStart.X, point.Y-lineStart.Y)
	}

	// Twice the triangle area divided by the base
	area := math.Abs((lineEnd.Y-lineStart.Y)*point.X - (lineEnd.X-lineStart.X)*point.Y + lineEnd.X*lineStart.Y - lineEnd.Y*lineStart.X)
	lineLength := math.Hypot(lineEnd.X-lineStart.X, lineEnd.Y-lineStart.Y)
	return area / lineLength
}

// simplifyPath applies the Ramer-Douglas-Peucker algorithm
func simplifyPath(points []vertex, epsilon float64) []vertex {
	if len(points) <= 2 {
		return points
	}

	maxDistance := 0.0
	maxIndex := 0
	for i := 1; i < len(points)-1; i++ {
		distance := perpendicularDistance(points[i], points[0], points[len(points)-1])
		if distance > maxDistance {
			maxDistance = distance
			maxIndex = i
		}
	}

	if maxDistance > epsilon {
		firstLine := simplifyPath(points[:maxIndex+1], epsilon)
		secondLine := simplifyPath(points[maxIndex:], epsilon)

		result := make([]vertex, 0, len(firstLine)+len(secondLine)-1)
		result = append(result, firstLine[:len(firstLine)-1]...)
		return append(result, secondLine...)
	}

	return []vertex{points[0], points[len(points)-1]}
}

// simplifyRing simplifies a closed ring. A ring is split at its farthest
// vertex first so that both halves keep a stable anchor; rings that would
// collapse below four points are returned unchanged.
func simplifyRing(points []vertex, epsilon float64) []vertex {
	if len(points) < 5 {
		return points
	}
	far := 0
	farDist := 0.0
	for i := 1; i < len(points)-1; i++ {
		d := math.Hypot(points[i].X-points[0].X, points[i].Y-points[0].Y)
		if d > farDist {
			far, farDist = i, d
		}
	}
	if far == 0 {
		return points
	}
	first := simplifyPath(points[:far+1], epsilon)
	second := simplifyPath(points[far:], epsilon)
	result := make([]vertex, 0, len(first)+len(second)-1)
	result = append(result, first[:len(first)-1]...)
	result = append(result, second...)
	if len(result) < 4 {
		return points
	}
	return result
}

// epsilonFunc picks the tolerance for one ring or line; ok=false leaves it untouched
type epsilonFunc func(points []vertex) (float64, bool)

// Simplify reduces the vertex count of every line and ring in g with the
// given tolerance, expressed in the units of g's coordinates.
func Simplify(g geom.T, epsilon float64) (geom.T, error) {
	if epsilon <= 0 {
		return g, nil
	}
	return simplifyWith(g, func([]vertex) (float64, bool) {
		return epsilon, true
	})
}

// SimplifyAdaptive simplifies only the rings that are dense enough to slow
// down map rendering, with a tolerance scaled to each ring's size.
func SimplifyAdaptive(g geom.T) (geom.T, error) {
	return simplifyWith(g, func(points []vertex) (float64, bool) {
		needs, epsilon := calculatePolygonComplexity(points)
		return epsilon, needs
	})
}

func simplifyWith(g geom.T, eps epsilonFunc) (geom.T, error) {
	g, err := Force2D(g)
	if err != nil {
		return nil, err
	}

	switch t := g.(type) {
	case *geom.LineString:
		flat, _ := simplifyParts(t.FlatCoords(), []int{len(t.FlatCoords())}, false, eps)
		return geom.NewLineStringFlat(geom.XY, flat), nil
	case *geom.MultiLineString:
		flat, ends := simplifyParts(t.FlatCoords(), t.Ends(), false, eps)
		return geom.NewMultiLineStringFlat(geom.XY, flat, ends), nil
	case *geom.Polygon:
		flat, ends := simplifyParts(t.FlatCoords(), t.Ends(), true, eps)
		return geom.NewPolygonFlat(geom.XY, flat, ends), nil
	case *geom.MultiPolygon:
		var (
			out   []float64
			endss [][]int
			start int
		)
		for _, ends := range t.Endss() {
			if len(ends) == 0 {
				endss = append(endss, nil)
				continue
			}
			last := ends[len(ends)-1]
			rel := make([]int, len(ends))
			for i, e := range ends {
				rel[i] = e - start
			}
			flat, newEnds := simplifyParts(t.FlatCoords()[start:last], rel, true, eps)
			offset := len(out)
			for i := range newEnds {
				newEnds[i] += offset
			}
			out = append(out, flat...)
			endss = append(endss, newEnds)
			start = last
		}
		return geom.NewMultiPolygonFlat(geom.XY, out, endss), nil
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection()
		for _, child := range t.Geoms() {
			s, err := simplifyWith(child, eps)
			if err != nil {
				return nil, err
			}
			if err := gc.Push(s); err != nil {
				return nil, err
			}
		}
		return gc, nil
	default:
		return g, nil
	}
}

// simplifyParts simplifies each part of a 2D flat coordinate array
func simplifyParts(flat []float64, ends []int, closed bool, eps epsilonFunc) ([]float64, []int) {
	out := make([]float64, 0, len(flat))
	newEnds := make([]int, 0, len(ends))
	start := 0
	for _, end := range ends {
		part := make([]vertex, 0, (end-start)/2)
		for i := start; i+1 < end; i += 2 {
			part = append(part, vertex{X: flat[i], Y: flat[i+1]})
		}
		if epsilon, ok := eps(part); ok && epsilon > 0 {
			if closed {
				part = simplifyRing(part, epsilon)
			} else {
				part = simplifyPath(part, epsilon)
			}
		}
		for _, p := range part {
			out = append(out, p.X, p.Y)
		}
		newEnds = append(newEnds, len(out))
		start = end
	}
	return out, newEnds
}
