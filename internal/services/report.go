package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/twpayne/go-geom"

	"corridor-platform/internal/geo"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// Report layer keys
const (
	LayerSchools    = "schools"
	LayerCemeteries = "cemeteries"
	LayerParks      = "parks"
	LayerRivers     = "rivers"
	LayerRailway    = "railway"
	LayerCenters    = "centers"
	LayerRemnants   = "remnants"
	LayerGardens    = "gardens"
)

// NearbyRadius is the wider search used when nothing lies within SearchRadius
const NearbyRadius = 2000

// NearbyWidened is the warning returned when the nearby search was widened
const NearbyWidened = "We could not find anything in the regular area search, so we expanded our search to cover a wider area."

// Rating grades one aspect of a location
type Rating struct {
	Count  float64 `json:"count"`
	Rating int     `json:"rating"`
	Label  string  `json:"label"`
}

var ratingLabels = []string{"poor", "okay", "great"}

// rate grades count: up to poor is 0, up to okay is 1, above is 2
func rate(count, poor, okay float64) Rating {
	r := Rating{Count: count, Rating: 2}
	switch {
	case count <= poor:
		r.Rating = 0
	case count <= okay:
		r.Rating = 1
	}
	r.Label = ratingLabels[r.Rating]
	return r
}

// SpaceRef is a short reference to a space
type SpaceRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ReportLayer summarises one layer within the report circle
type ReportLayer struct {
	Key        string     `json:"key"`
	DocumentID int64      `json:"document_id"`
	Count      int        `json:"count"`
	Coverage   float64    `json:"coverage_percentage"`
	Spaces     []SpaceRef `json:"spaces"`
}

// SiteReport assesses a location as a place for a corridor garden
type SiteReport struct {
	Lat             float64                `json:"lat"`
	Lng             float64                `json:"lng"`
	Layers          map[string]ReportLayer `json:"layers"`
	RiverLength     float64                `json:"river_length"`
	RailwayLength   float64                `json:"railway_length"`
	Expansion       Rating                 `json:"expansion"`
	Connectors      Rating                 `json:"connectors"`
	Existing        Rating                 `json:"existing"`
	VegetationType  *models.VegetationType `json:"vegetation_type,omitempty"`
	OpenTheseLayers []int64                `json:"open_these_layers"`
	Maps            []MapGroup             `json:"parents"`
	Colors          map[int64]string       `json:"getcolors"`
}

// NearbyResult lists spaces of one layer around a location
type NearbyResult struct {
	Layer   string          `json:"layer"`
	Radius  int             `json:"radius"`
	Circle  json.RawMessage `json:"circle"`
	Spaces  []SpaceShape    `json:"spaces"`
	Warning string          `json:"warning,omitempty"`
}

// Profile is the planting profile of a location
type Profile struct {
	Lat            float64                `json:"lat"`
	Lng            float64                `json:"lng"`
	VegetationType *models.VegetationType `json:"info,omitempty"`
	Suburb         string                 `json:"suburb,omitempty"`
	Species        []models.Species       `json:"species"`
	Warning        string                 `json:"warning,omitempty"`
}

func (s *MapService) reportLayers() map[string]int64 {
	return map[string]int64{
		LayerSchools:    s.layers.Schools,
		LayerCemeteries: s.layers.Cemeteries,
		LayerParks:      s.layers.Parks,
		LayerRivers:     s.layers.Rivers,
		LayerRailway:    s.layers.Railway,
		LayerCenters:    s.layers.Centers,
		LayerRemnants:   s.layers.Remnants,
		LayerGardens:    s.layers.GardensSource,
	}
}

// Report counts what lies within 1 km of a location and rates it
func (s *MapService) Report(ctx context.Context, lat, lng float64) (*SiteReport, error) {
	circle, err := geo.CircleAround(lng, lat, SearchRadius)
	if err != nil {
		return nil, fmt.Errorf("error building report area: %w", err)
	}

	type result struct {
		layer  ReportLayer
		length float64
	}
	sources := s.reportLayers()
	results := make(chan result, len(sources))
	errs := make(chan error, len(sources))

	// Create a WaitGroup to wait for all goroutines to finish
	var wg sync.WaitGroup
	for key, sourceID := range sources {
		wg.Add(1)
		go func(key string, sourceID int64) {
			defer wg.Done()
			layer, spaces, err := s.layerWithin(ctx, key, sourceID, circle)
			if err != nil {
				errs <- err
				return
			}
			var length float64
			if key == LayerRivers || key == LayerRailway {
				if length, err = lengthWithin(spaces, circle); err != nil {
					errs <- fmt.Errorf("error measuring %s: %w", key, err)
					return
				}
			}
			results <- result{layer: layer, length: length}
		}(key, sourceID)
	}

	go func() {
		wg.Wait()
		close(results)
		close(errs)
	}()

	report := &SiteReport{Lat: lat, Lng: lng, Layers: make(map[string]ReportLayer, len(sources))}
	for r := range results {
		report.Layers[r.layer.Key] = r.layer
		switch r.layer.Key {
		case LayerRivers:
			report.RiverLength = r.length
		case LayerRailway:
			report.RailwayLength = r.length
		}
	}
	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	count := func(keys ...string) float64 {
		total := 0
		for _, k := range keys {
			total += report.Layers[k].Count
		}
		return float64(total)
	}
	report.Expansion = rate(count(LayerSchools, LayerCemeteries, LayerParks, LayerCenters), 1, 3)
	report.Connectors = rate(report.RiverLength+report.RailwayLength, 200, 500)
	report.Existing = rate(count(LayerRemnants, LayerGardens), 0, 2)

	if report.VegetationType, err = s.vegetationTypeAt(ctx, geo.Point(lng, lat)); err != nil {
		return nil, err
	}

	report.OpenTheseLayers = []int64{
		s.layers.Schools, s.layers.Cemeteries, s.layers.Parks, s.layers.Rivers, s.layers.Railway,
		s.layers.Remnants, s.layers.GardensSource, s.layers.BoundariesSpace, s.layers.Centers,
	}
	if report.Maps, report.Colors, err = s.analysisMaps(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// layerWithin returns the spaces of a source that touch area
func (s *MapService) layerWithin(ctx context.Context, key string, sourceID int64, area geom.T) (ReportLayer, []models.ReferenceSpace, error) {
	layer := ReportLayer{Key: key, DocumentID: sourceID, Spaces: make([]SpaceRef, 0)}
	spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &sourceID, Intersects: area})
	if err != nil {
		return layer, nil, fmt.Errorf("error loading %s: %w", key, err)
	}
	layer.Count = len(spaces)
	polygons := make([]geom.T, 0, len(spaces))
	for i := range spaces {
		sp := &spaces[i]
		layer.Spaces = append(layer.Spaces, SpaceRef{ID: sp.ID, Name: sp.DisplayName(), URL: sp.URL()})
		switch sp.Geometry.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
			polygons = append(polygons, sp.Geometry)
		}
	}
	if len(polygons) > 0 {
		if union, err := geo.UnionAll(polygons); err == nil {
			layer.Coverage, _ = geo.IntersectionPercentage(area, union)
		}
	}
	return layer, spaces, nil
}

// lengthWithin sums the length in metres of the parts of spaces inside area
func lengthWithin(spaces []models.ReferenceSpace, area geom.T) (float64, error) {
	total := 0.0
	for _, sp := range spaces {
		if sp.Geometry == nil {
			continue
		}
		part, err := geo.Intersection(sp.Geometry, area)
		if err != nil {
			return 0, err
		}
		length, err := geo.LengthMeters(part)
		if err != nil {
			return 0, err
		}
		total += length
	}
	return total, nil
}

// analysisMaps lists active documents included in site analysis, grouped by type
func (s *MapService) analysisMaps(ctx context.Context) ([]MapGroup, map[int64]string, error) {
	yes := true
	docs, err := s.store.ListDocuments(ctx, store.DocumentFilter{
		Types:                 models.MapDocTypes,
		Active:                &yes,
		IncludeInSiteAnalysis: &yes,
	})
	if err != nil {
		return nil, nil, err
	}
	groups, colors := groupByType(docs)
	return groups, colors, nil
}

func groupByType(docs []models.Document) ([]MapGroup, map[int64]string) {
	colors := make(map[int64]string)
	hits := make(map[models.DocType][]models.Document)
	for _, d := range docs {
		hits[d.DocType] = append(hits[d.DocType], d)
		colors[d.ID] = d.Color
	}
	groups := make([]MapGroup, 0, len(models.MapDocTypes))
	for i, t := range models.MapDocTypes {
		if len(hits[t]) == 0 {
			continue
		}
		groups = append(groups, MapGroup{Type: t, Label: t.Label(), Icon: mapIcons[i], Documents: hits[t]})
	}
	return groups, colors
}

// Nearby returns the spaces of a report layer around a location, clipped to
// the search circle. When nothing is found within 1 km the search is widened
// to 2 km.
func (s *MapService) Nearby(ctx context.Context, lat, lng float64, layer string) (*NearbyResult, error) {
	var sourceID int64
	switch layer {
	case LayerSchools, LayerCemeteries, LayerParks, LayerRivers, LayerRemnants:
		sourceID = s.reportLayers()[layer]
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}

	res := &NearbyResult{Layer: layer, Radius: SearchRadius, Spaces: make([]SpaceShape, 0)}
	circle, spaces, err := s.spacesAround(ctx, sourceID, lat, lng, SearchRadius)
	if err != nil {
		return nil, err
	}
	if len(spaces) == 0 {
		res.Radius = NearbyRadius
		res.Warning = NearbyWidened
		if circle, spaces, err = s.spacesAround(ctx, sourceID, lat, lng, NearbyRadius); err != nil {
			return nil, err
		}
	}
	if res.Circle, err = geo.EncodeGeoJSON(circle); err != nil {
		return nil, err
	}

	for _, sp := range spaces {
		clipped, err := geo.Intersection(sp.Geometry, circle)
		if err != nil {
			return nil, fmt.Errorf("error clipping space %d: %w", sp.ID, err)
		}
		encoded, err := geo.EncodeGeoJSON(clipped)
		if err != nil {
			return nil, err
		}
		res.Spaces = append(res.Spaces, SpaceShape{ID: sp.ID, Name: sp.DisplayName(), Geometry: encoded})
	}
	return res, nil
}

func (s *MapService) spacesAround(ctx context.Context, sourceID int64, lat, lng, radius float64) (geom.T, []models.ReferenceSpace, error) {
	circle, err := geo.CircleAround(lng, lat, radius)
	if err != nil {
		return nil, nil, err
	}
	spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &sourceID, Intersects: circle})
	if err != nil {
		return nil, nil, err
	}
	return circle, spaces, nil
}

// Profile returns the vegetation type, suburb and matching species of a
// location. When no vegetation type is found the profile carries a warning
// instead of an error.
func (s *MapService) Profile(ctx context.Context, lat, lng float64) (*Profile, error) {
	p := &Profile{Lat: lat, Lng: lng, Species: make([]models.Species, 0)}
	point := geo.Point(lng, lat)

	vt, err := s.vegetationTypeAt(ctx, point)
	if err != nil {
		return nil, err
	}
	if vt == nil {
		p.Warning = ErrNoVegetationType.Error()
		return p, nil
	}
	p.VegetationType = vt

	if p.Suburb, err = s.suburbOf(ctx, point); err != nil {
		return nil, err
	}
	if p.Species, err = s.store.ListSpecies(ctx, store.SpeciesFilter{VegetationTypeID: &vt.ID}); err != nil {
		return nil, err
	}
	return p, nil
}
