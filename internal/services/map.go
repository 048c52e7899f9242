package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/twpayne/go-geom"

	"corridor-platform/internal/config"
	"corridor-platform/internal/geo"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

const (
	// MaxLayerSpaces is how many spaces a layer shows unless all are requested
	MaxLayerSpaces = 500
	// SearchRadius is the radius in meters used around a chosen location
	SearchRadius = 1000
)

// simplification tolerances for large layers, by serialized size
var sizeTolerances = []struct {
	bytes     int64
	tolerance float64
}{
	{20 << 20, 0.05},
	{10 << 20, 0.02},
	{5 << 20, 0.001},
}

// mapIcons are shown next to each map group, in MapDocTypes order
var mapIcons = []string{"leaf", "draw-square", "train", "map-marker", "info-circle"}

// LayerOptions control how a layer is rendered
type LayerOptions struct {
	ShowAll  bool
	ShowFull bool
}

// LayerData is the rendered, cacheable part of a layer
type LayerData struct {
	Data       *models.LayerCollection `json:"data"`
	Legend     []models.LegendEntry    `json:"legend"`
	SpaceCount int                     `json:"space_count"`
	Warnings   []string                `json:"warnings,omitempty"`
}

// LayerView is a map layer with its styling
type LayerView struct {
	LayerData
	Document              *models.Document `json:"info"`
	ShowIndividualColors  bool             `json:"show_individual_colors"`
	Colors                []string         `json:"colors"`
	Properties            *models.Dataviz  `json:"properties,omitempty"`
	MapStyle              *models.MapStyle `json:"mapstyle,omitempty"`
	SwappedCorridorCoords [][2]float64     `json:"swapped_corridor_coords,omitempty"`
}

// GeoJSONQuery narrows the features returned for a document
type GeoJSONQuery struct {
	SpaceID  *int64
	Lat, Lng *float64
}

// SpaceView is the detail page of a reference space
type SpaceView struct {
	Space          *models.ReferenceSpace `json:"info"`
	Geometry       json.RawMessage        `json:"geometry"`
	GeomType       string                 `json:"geom_type"`
	Center         [2]float64             `json:"center"`
	Suburb         string                 `json:"suburb,omitempty"`
	VegetationType *models.VegetationType `json:"vegetation_type,omitempty"`
}

// SpaceShape is a space with its GeoJSON geometry
type SpaceShape struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Geometry json.RawMessage `json:"geometry"`
}

// MapGroup is one document type on the maps index
type MapGroup struct {
	Type      models.DocType    `json:"type"`
	Label     string            `json:"label"`
	Icon      string            `json:"icon"`
	Documents []models.Document `json:"documents"`
}

// MapsIndex lists the active map layers of a site
type MapsIndex struct {
	Groups                []MapGroup       `json:"parents"`
	Colors                map[int64]string `json:"getcolors"`
	Boundaries            *SpaceShape      `json:"boundaries,omitempty"`
	SwappedCorridorCoords [][2]float64     `json:"swapped_corridor_coords,omitempty"`
}

// VegetationTypesView is the vegetation map of a site
type VegetationTypesView struct {
	All    []models.VegetationType `json:"all"`
	Data   *models.LayerCollection `json:"data"`
	Legend []models.LegendEntry    `json:"legend"`
	Colors []string                `json:"colors"`
}

// VegetationTypeView is one vegetation type with its areas and species
type VegetationTypeView struct {
	Type    *models.VegetationType `json:"info"`
	Spaces  []SpaceShape           `json:"spaces"`
	Species []models.Species       `json:"species"`
}

// MapService renders documents and spaces for the maps
type MapService struct {
	store     MapStore
	cache     LayerCache
	layers    config.Layers
	mapboxKey string
	logger    logging.Logger
}

// NewMapService creates a new MapService instance
func NewMapService(st MapStore, cache LayerCache, layers config.Layers, mapboxKey string, logger logging.Logger) *MapService {
	return &MapService{
		store:     st,
		cache:     cache,
		layers:    layers,
		mapboxKey: mapboxKey,
		logger:    logger,
	}
}

// cached returns the cached JSON for a document variant, building it with
// build when needed
func (s *MapService) cached(ctx context.Context, docID int64, variant string, build func(ctx context.Context) (any, error)) ([]byte, error) {
	render := func(ctx context.Context) ([]byte, error) {
		v, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	if s.cache == nil {
		return render(ctx)
	}
	return s.cache.Get(ctx, docID, variant, render)
}

// legend keeps colour labels in first-seen order; a later label for the
// same colour replaces the earlier one
type legend struct {
	order  []string
	labels map[string]string
}

func newLegend() *legend {
	return &legend{labels: make(map[string]string)}
}

func (l *legend) set(color, label string) {
	if _, ok := l.labels[color]; !ok {
		l.order = append(l.order, color)
	}
	l.labels[color] = label
}

func (l *legend) entries() []models.LegendEntry {
	out := make([]models.LegendEntry, 0, len(l.order))
	for _, c := range l.order {
		out = append(out, models.LegendEntry{Label: l.labels[c], Color: c})
	}
	return out
}

// palette hands out colours in turn. Past the end it returns the first
// colour and starts over from it on the next call.
type palette struct {
	colors []string
	next   int
}

func (p *palette) color() string {
	if p.next < len(p.colors) {
		c := p.colors[p.next]
		p.next++
		return c
	}
	p.next = 0
	return p.colors[0]
}

// colorRule decides the colour of each feature from the dataviz settings
type colorRule struct {
	individual bool
	single     string
	assigned   map[string]string
	setFeature string
	palette    *palette
}

func newColorRule(dv *models.Dataviz) *colorRule {
	r := &colorRule{individual: true, palette: &palette{colors: models.IndividualColors}}
	if dv == nil || dv.Colors == nil {
		return r
	}
	switch dv.Colors.Option {
	case models.ColorSingle:
		r.individual = false
		r.single = dv.Colors.Color
	case models.ColorAssigned:
		r.assigned = dv.Colors.Features
		r.setFeature = dv.Colors.SetFeature
	}
	if scheme, ok := models.ColorSchemes[dv.Colors.Scheme]; ok && r.individual {
		r.palette = &palette{colors: scheme}
	}
	return r
}

func (r *colorRule) colorOf(sp *models.ReferenceSpace) string {
	if !r.individual {
		return r.single
	}
	if len(r.assigned) > 0 {
		value := attributeString(sp.Features()[r.setFeature])
		if c, ok := r.assigned[value]; ok {
			return c
		}
		return models.FallbackColor
	}
	return r.palette.color()
}

func viewDetails(url string) string {
	return fmt.Sprintf("<a href='%s'>View details</a>", url)
}

func (s *MapService) dataviz(ctx context.Context, site *models.Site, docID int64) (*models.Dataviz, error) {
	if site == nil {
		return nil, nil
	}
	dv, err := s.store.GetDataviz(ctx, site.ID, docID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return dv, err
}

// Layer renders a shapefile document as a coloured FeatureCollection
func (s *MapService) Layer(ctx context.Context, site *models.Site, docID int64, opts LayerOptions) (*LayerView, error) {
	d, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	dv, err := s.dataviz(ctx, site, docID)
	if err != nil {
		return nil, err
	}

	var siteID int64
	if site != nil {
		siteID = site.ID
	}
	variant := fmt.Sprintf("layer:site=%d:all=%t:full=%t", siteID, opts.ShowAll, opts.ShowFull)
	raw, err := s.cached(ctx, docID, variant, func(ctx context.Context) (any, error) {
		return s.buildLayer(ctx, d, dv, opts)
	})
	if err != nil {
		return nil, err
	}

	view := &LayerView{Document: d, Properties: dv}
	if err := json.Unmarshal(raw, &view.LayerData); err != nil {
		return nil, fmt.Errorf("error decoding cached layer %d: %w", docID, err)
	}
	rule := newColorRule(dv)
	view.ShowIndividualColors = rule.individual
	view.Colors = rule.palette.colors

	if dv != nil && dv.MapStyleID != nil {
		style, err := s.store.GetMapStyle(ctx, *dv.MapStyleID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if style != nil {
			style.TileLayer = style.ResolvedTileLayer(s.mapboxKey)
			view.MapStyle = style
		}
	}
	if view.SwappedCorridorCoords, err = s.SwappedCorridorCoords(ctx, site); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *MapService) buildLayer(ctx context.Context, d *models.Document, dv *models.Dataviz, opts LayerOptions) (*LayerData, error) {
	filter := store.SpaceFilter{SourceID: &d.ID}
	count, err := s.store.CountSpaces(ctx, filter)
	if err != nil {
		return nil, err
	}
	if !opts.ShowAll {
		filter.Limit = MaxLayerSpaces
	}
	spaces, err := s.store.ListSpaces(ctx, filter)
	if err != nil {
		return nil, err
	}

	var tolerance float64
	if !opts.ShowFull {
		size, err := s.store.SourceSizeBytes(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range sizeTolerances {
			if size > t.bytes {
				tolerance = t.tolerance
				break
			}
		}
	}

	rule := newColorRule(dv)
	legend := newLegend()
	data := &LayerData{Data: models.NewLayerCollection(), SpaceCount: count}

	for i := range spaces {
		sp := &spaces[i]
		g, err := simplifyForMap(sp.Geometry, tolerance, opts.ShowFull)
		if err == nil {
			data.Data.GeomType = geo.TypeName(sp.Geometry)
		}

		color := rule.colorOf(sp)
		if rule.individual {
			legend.set(color, sp.Name)
		}

		var encoded json.RawMessage
		if err == nil {
			encoded, err = geo.EncodeGeoJSON(g)
		}
		if err != nil {
			data.Warnings = append(data.Warnings, fmt.Sprintf(
				"We had an issue reading one of the items which had an invalid geometry (%s). Error: %v", sp.DisplayName(), err))
			continue
		}
		data.Data.Features = append(data.Data.Features, models.LayerFeature{
			Type:     "Feature",
			Geometry: encoded,
			Properties: map[string]any{
				"name":    sp.DisplayName(),
				"id":      sp.ID,
				"content": viewDetails(sp.URL()),
				"color":   color,
			},
		})
	}
	data.Legend = legend.entries()
	return data, nil
}

func simplifyForMap(g geom.T, tolerance float64, full bool) (geom.T, error) {
	if g == nil || g.Empty() {
		return nil, geo.ErrEmptyGeometry
	}
	switch {
	case tolerance > 0:
		return geo.Simplify(g, tolerance)
	case !full:
		return geo.SimplifyAdaptive(g)
	default:
		return g, nil
	}
}

// SwappedCorridorCoords returns the outer ring of the site's corridor as
// [lat, lng] pairs, used to black out everything outside the corridor
func (s *MapService) SwappedCorridorCoords(ctx context.Context, site *models.Site) ([][2]float64, error) {
	if site == nil || site.CorridorID == nil {
		return nil, nil
	}
	spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: site.CorridorID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(spaces) == 0 {
		return nil, nil
	}
	return swapRing(spaces[0].Geometry), nil
}

func swapRing(g geom.T) [][2]float64 {
	var ring *geom.LinearRing
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() > 0 {
			ring = t.LinearRing(0)
		}
	case *geom.MultiPolygon:
		if t.NumPolygons() > 0 && t.Polygon(0).NumLinearRings() > 0 {
			ring = t.Polygon(0).LinearRing(0)
		}
	}
	if ring == nil {
		return nil
	}
	coords := ring.Coords()
	out := make([][2]float64, len(coords))
	for i, c := range coords {
		out[i] = [2]float64{c.Y(), c.X()}
	}
	return out
}

// GeoJSON returns the features of a document, optionally limited to one
// space and to the area around a location
func (s *MapService) GeoJSON(ctx context.Context, docID int64, q GeoJSONQuery) ([]byte, error) {
	d, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	variant := "geojson"
	if q.SpaceID != nil {
		variant += fmt.Sprintf(":space=%d", *q.SpaceID)
	}
	if q.Lat != nil && q.Lng != nil {
		variant += fmt.Sprintf(":at=%.6f,%.6f", *q.Lat, *q.Lng)
	}
	return s.cached(ctx, docID, variant, func(ctx context.Context) (any, error) {
		return s.buildGeoJSON(ctx, d, q)
	})
}

func (s *MapService) buildGeoJSON(ctx context.Context, d *models.Document, q GeoJSONQuery) (*models.LayerCollection, error) {
	filter := store.SpaceFilter{SourceID: &d.ID}
	if q.SpaceID != nil {
		filter.IDs = []int64{*q.SpaceID}
	}
	var circle geom.T
	if q.Lat != nil && q.Lng != nil {
		var err error
		if circle, err = geo.CircleAround(*q.Lng, *q.Lat, SearchRadius); err != nil {
			return nil, err
		}
		filter.Intersects = circle
	}
	spaces, err := s.store.ListSpaces(ctx, filter)
	if err != nil {
		return nil, err
	}

	source := fmt.Sprintf("<br><a href='%s'>View source layer: <strong>%s</strong></a>", d.Path(), html.EscapeString(d.Name))
	fc := models.NewLayerCollection()
	for _, sp := range spaces {
		if sp.Geometry == nil || sp.Geometry.Empty() {
			continue
		}
		g := sp.Geometry
		if circle != nil {
			if g, err = geo.Intersection(g, circle); err != nil {
				return nil, fmt.Errorf("error intersecting space %d: %w", sp.ID, err)
			}
		}
		encoded, err := geo.EncodeGeoJSON(g)
		if err != nil {
			return nil, fmt.Errorf("error encoding space %d: %w", sp.ID, err)
		}
		if fc.GeomType == "" {
			fc.GeomType = geo.TypeName(g)
		}
		fc.Features = append(fc.Features, models.LayerFeature{
			Type:     "Feature",
			Geometry: encoded,
			Properties: map[string]any{
				"name":    sp.Name,
				"content": viewDetails(sp.URL()) + source,
				"id":      sp.ID,
			},
		})
	}
	return fc, nil
}

// Space returns a reference space with its centre, suburb and vegetation type
func (s *MapService) Space(ctx context.Context, id int64) (*SpaceView, error) {
	sp, err := s.store.GetSpace(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &SpaceView{Space: sp}
	if sp.Geometry == nil || sp.Geometry.Empty() {
		return view, nil
	}

	if view.Geometry, err = geo.EncodeGeoJSON(sp.Geometry); err != nil {
		return nil, err
	}
	view.GeomType = geo.TypeName(sp.Geometry)
	if c, err := geo.Centroid(sp.Geometry); err == nil {
		view.Center = [2]float64{c.Y(), c.X()}
	}
	if view.Suburb, err = s.suburbOf(ctx, sp.Geometry); err != nil {
		return nil, err
	}
	if view.VegetationType, err = s.vegetationTypeOfSpace(ctx, sp.ID); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *MapService) suburbOf(ctx context.Context, g geom.T) (string, error) {
	suburb, err := s.store.SpaceAt(ctx, s.layers.Suburbs, g)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return titleCase(suburb.Name), nil
}

func (s *MapService) vegetationTypeOfSpace(ctx context.Context, spaceID int64) (*models.VegetationType, error) {
	types, err := s.store.VegetationTypesOfSpace(ctx, spaceID)
	if err != nil || len(types) == 0 {
		return nil, err
	}
	return &types[0], nil
}

// vegetationTypeAt returns the vegetation type of the vegetation map at g
func (s *MapService) vegetationTypeAt(ctx context.Context, g geom.T) (*models.VegetationType, error) {
	sp, err := s.store.SpaceAt(ctx, s.layers.VegetationMap, g)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.vegetationTypeOfSpace(ctx, sp.ID)
}

// titleCase upper-cases the first letter of every word and lower-cases the rest
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// SpaceGeoJSON returns the name and GeoJSON geometry of a space for download
func (s *MapService) SpaceGeoJSON(ctx context.Context, id int64) (string, []byte, error) {
	sp, err := s.store.GetSpace(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if sp.Geometry == nil {
		return "", nil, fmt.Errorf("space %d: %w", id, geo.ErrEmptyGeometry)
	}
	data, err := geo.EncodeGeoJSON(sp.Geometry)
	if err != nil {
		return "", nil, err
	}
	return sp.Name, data, nil
}

func shapeOf(sp *models.ReferenceSpace) (*SpaceShape, error) {
	out := &SpaceShape{ID: sp.ID, Name: sp.Name}
	if sp.Geometry == nil {
		return out, nil
	}
	var err error
	out.Geometry, err = geo.EncodeGeoJSON(sp.Geometry)
	return out, err
}

// Maps lists the site's active shapefile layers grouped by map type
func (s *MapService) Maps(ctx context.Context, site *models.Site) (*MapsIndex, error) {
	yes := true
	filter := store.DocumentFilter{Types: models.MapDocTypes, Shapefile: &yes, Active: &yes}
	if site != nil {
		filter.SiteID = &site.ID
	}
	docs, err := s.store.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	index := &MapsIndex{}
	index.Groups, index.Colors = groupByType(docs)

	boundaries, err := s.store.GetSpace(ctx, s.layers.BoundariesSpace)
	switch {
	case err == nil:
		if index.Boundaries, err = shapeOf(boundaries); err != nil {
			return nil, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if index.SwappedCorridorCoords, err = s.SwappedCorridorCoords(ctx, site); err != nil {
		return nil, err
	}
	return index, nil
}

// VegetationTypes renders the site's vegetation map with one colour per area
func (s *MapService) VegetationTypes(ctx context.Context, site *models.Site) (*VegetationTypesView, error) {
	view := &VegetationTypesView{Colors: models.IndividualColors, Legend: make([]models.LegendEntry, 0)}
	var err error
	if view.All, err = s.store.ListVegetationTypes(ctx, site.ID); err != nil {
		return nil, err
	}
	if site.VegetationTypesMap == nil {
		view.Data = models.NewLayerCollection()
		return view, nil
	}

	mapID := *site.VegetationTypesMap
	raw, err := s.cached(ctx, mapID, "vegetation-types", func(ctx context.Context) (any, error) {
		return s.buildVegetationLayer(ctx, mapID)
	})
	if err != nil {
		return nil, err
	}
	var data LayerData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("error decoding cached vegetation map: %w", err)
	}
	view.Data = data.Data
	view.Legend = data.Legend
	return view, nil
}

func (s *MapService) buildVegetationLayer(ctx context.Context, mapID int64) (*LayerData, error) {
	spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &mapID})
	if err != nil {
		return nil, err
	}
	colors := &palette{colors: models.IndividualColors}
	legend := newLegend()
	data := &LayerData{Data: models.NewLayerCollection(), SpaceCount: len(spaces)}
	for _, sp := range spaces {
		color := colors.color()
		legend.set(color, sp.Name)
		if sp.Geometry == nil {
			continue
		}
		encoded, err := geo.EncodeGeoJSON(sp.Geometry)
		if err != nil {
			data.Warnings = append(data.Warnings, fmt.Sprintf(
				"We had an issue reading one of the items which had an invalid geometry (%s). Error: %v", sp.DisplayName(), err))
			continue
		}
		data.Data.GeomType = geo.TypeName(sp.Geometry)
		data.Data.Features = append(data.Data.Features, models.LayerFeature{
			Type:     "Feature",
			Geometry: encoded,
			Properties: map[string]any{
				"name":    sp.DisplayName(),
				"id":      sp.ID,
				"content": fmt.Sprintf("<a href='?redirect=%d'>View details</a>", sp.ID),
				"color":   color,
			},
		})
	}
	data.Legend = legend.entries()
	return data, nil
}

// VegetationTypeRedirect returns the page of the vegetation type a space of
// the vegetation map belongs to
func (s *MapService) VegetationTypeRedirect(ctx context.Context, spaceID int64) (string, error) {
	vt, err := s.vegetationTypeOfSpace(ctx, spaceID)
	if err != nil {
		return "", err
	}
	if vt == nil {
		return "", fmt.Errorf("vegetation type of space %d: %w", spaceID, store.ErrNotFound)
	}
	return "/vegetation-types/" + vt.Slug, nil
}

// VegetationType returns a vegetation type with its areas and species
func (s *MapService) VegetationType(ctx context.Context, slug string) (*VegetationTypeView, error) {
	vt, err := s.store.GetVegetationTypeBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	spaces, err := s.store.SpacesOfVegetationType(ctx, vt.ID)
	if err != nil {
		return nil, err
	}
	view := &VegetationTypeView{Type: vt, Spaces: make([]SpaceShape, 0, len(spaces))}
	for i := range spaces {
		shape, err := shapeOf(&spaces[i])
		if err != nil {
			return nil, err
		}
		view.Spaces = append(view.Spaces, *shape)
	}
	if view.Species, err = s.store.ListSpecies(ctx, store.SpeciesFilter{VegetationTypeID: &vt.ID}); err != nil {
		return nil, err
	}
	return view, nil
}

// VegetationTypeGeoJSON returns the first area of a vegetation type for download
func (s *MapService) VegetationTypeGeoJSON(ctx context.Context, slug string) (string, []byte, error) {
	vt, err := s.store.GetVegetationTypeBySlug(ctx, slug)
	if err != nil {
		return "", nil, err
	}
	spaces, err := s.store.SpacesOfVegetationType(ctx, vt.ID)
	if err != nil {
		return "", nil, err
	}
	if len(spaces) == 0 || spaces[0].Geometry == nil {
		return "", nil, fmt.Errorf("vegetation type %q has no area: %w", slug, store.ErrNotFound)
	}
	data, err := geo.EncodeGeoJSON(spaces[0].Geometry)
	if err != nil {
		return "", nil, err
	}
	return vt.Name, data, nil
}
