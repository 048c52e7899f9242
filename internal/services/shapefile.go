package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/twpayne/go-geom"
	"golang.org/x/exp/slices"

	"corridor-platform/internal/geo"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/shapefile"
	"corridor-platform/internal/store"
)

// MaxFeatures is the number of objects a shapefile may hold before an
// administrator has to accept it
const MaxFeatures = 1000

const (
	errTooManyObjects = "This file has too many objects. It needs to be verified by an administrator in order to be fully loaded into the system."
	err3D             = "This shapefile includes data in 3D. We only store shapefiles with 2D data. Please remove the elevation data (Z coordinates). This can be done, for instance, using QGIS: https://docs.qgis.org/testing/en/docs/user_manual/processing_algs/qgis/vectorgeometry.html#drop-m-z-values"
	errMergePrefix    = "The following error occurred when trying to merge geometries: "
)

// Processing modes chosen when classifying a shapefile
const (
	ProcessSingle     = "single_reference_space"
	ProcessGroup      = "group_spaces_by_name"
	ProcessIndividual = "individual"
)

// Column roles chosen when classifying a shapefile
const (
	ColumnPrimary = "primary"
	ColumnImport  = "import"
)

// Observer records the outcome of a long running operation
type Observer func(operation string, start time.Time, err error)

// Upload is a file received from a form
type Upload struct {
	Name string
	Size int64
	File interface {
		io.Reader
		io.ReaderAt
	}
}

// ShapefileForm holds the editable fields of a shapefile document
type ShapefileForm struct {
	Name                  string
	Author                string
	URL                   string
	Color                 string
	DocType               models.DocType
	Description           string
	IncludeInSiteAnalysis bool
	IsActive              bool
}

// ClassifyRequest assigns a role to each attribute field and picks how
// features become spaces
type ClassifyRequest struct {
	Actions    map[string]string
	Processing string
	Clip       *int64
}

// ConvertResult reports a conversion. Error holds the message stored in the
// document when the conversion was rejected.
type ConvertResult struct {
	Spaces int    `json:"spaces"`
	Error  string `json:"processing_error,omitempty"`
}

// ClipResult reports a clip operation
type ClipResult struct {
	Boundary string `json:"boundary"`
	Removed  int64  `json:"removed"`
	Clipped  int    `json:"clipped"`
	Message  string `json:"message"`
}

// PlotResult reports a preview plot
type PlotResult struct {
	Path  string `json:"shapefile_plot,omitempty"`
	Error string `json:"shapefile_plot_error,omitempty"`
}

// ShapefileDetail is the control panel view of one shapefile
type ShapefileDetail struct {
	Document     *models.Document        `json:"document"`
	Attachments  []models.Attachment     `json:"attachments"`
	SpaceCount   int                     `json:"space_count"`
	SizeBytes    int64                   `json:"size_in_bytes"`
	ClipBoundary *models.ReferenceSpace  `json:"clip_boundaries,omitempty"`
	Corridors    []models.ReferenceSpace `json:"corridors"`
	Warning      string                  `json:"warning,omitempty"`
}

// DatavizForm holds the posted visual configuration of a layer
type DatavizForm struct {
	Option      string
	Color       string
	SetFeature  *string
	Features    *string
	Scheme      string
	MapStyleID  *int64
	Opacity     *int
	FillOpacity *int
	LineWidth   *int
}

// ShapefileService imports shapefile documents into reference spaces
type ShapefileService struct {
	store     ShapefileStore
	cache     LayerCache
	mediaRoot string
	logger    logging.Logger

	// Observe is called after conversions and plots when set
	Observe Observer
}

// NewShapefileService creates a new ShapefileService instance
func NewShapefileService(st ShapefileStore, cache LayerCache, mediaRoot string, logger logging.Logger) *ShapefileService {
	return &ShapefileService{
		store:     st,
		cache:     cache,
		mediaRoot: mediaRoot,
		logger:    logger,
	}
}

func (s *ShapefileService) observe(op string, start time.Time, err error) {
	if s.Observe != nil {
		s.Observe(op, start, err)
	}
}

func (s *ShapefileService) invalidate(ctx context.Context, docID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, docID); err != nil {
		s.logger.WithError(err).WithField("document_id", docID).Warn("Could not invalidate layer cache")
	}
}

// visibleTo reports whether a document may be managed from the given site
func visibleTo(d *models.Document, site *models.Site) bool {
	return site == nil || d.SiteID == nil || *d.SiteID == site.ID
}

// Document returns a shapefile document that belongs to the site or to no site
func (s *ShapefileService) Document(ctx context.Context, site *models.Site, id int64) (*models.Document, error) {
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsShapefile {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotShapefile)
	}
	if !visibleTo(d, site) {
		return nil, fmt.Errorf("document %d: %w", id, store.ErrNotFound)
	}
	return d, nil
}

// List returns the shapefiles of a site
func (s *ShapefileService) List(ctx context.Context, site *models.Site) ([]models.Document, error) {
	yes := true
	return s.store.ListDocuments(ctx, store.DocumentFilter{SiteID: &site.ID, Shapefile: &yes})
}

func (s *ShapefileService) attachmentPaths(ctx context.Context, docID int64) ([]string, error) {
	attachments, err := s.store.ListAttachments(ctx, docID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(attachments))
	for _, a := range attachments {
		paths = append(paths, filepath.Join(s.mediaRoot, filepath.FromSlash(a.File)))
	}
	return paths, nil
}

func (s *ShapefileService) openLayer(ctx context.Context, docID int64) (*shapefile.Layer, error) {
	paths, err := s.attachmentPaths(ctx, docID)
	if err != nil {
		return nil, err
	}
	layer, err := shapefile.Open(paths)
	if err != nil {
		return nil, fmt.Errorf("error opening shapefile of document %d: %w", docID, err)
	}
	return layer, nil
}

// Detail returns a shapefile with its files, size and clip boundary
func (s *ShapefileService) Detail(ctx context.Context, site *models.Site, id int64) (*ShapefileDetail, error) {
	d, err := s.Document(ctx, site, id)
	if err != nil {
		return nil, err
	}
	detail := &ShapefileDetail{Document: d, Corridors: make([]models.ReferenceSpace, 0)}

	if detail.Attachments, err = s.store.ListAttachments(ctx, id); err != nil {
		return nil, err
	}
	if detail.SpaceCount, err = s.store.CountSpaces(ctx, store.SpaceFilter{SourceID: &id}); err != nil {
		return nil, err
	}
	if detail.SpaceCount > 0 {
		if detail.SizeBytes, err = s.store.SourceSizeBytes(ctx, id); err != nil {
			return nil, err
		}
	}
	if d.Meta.Clip != nil {
		boundary, err := s.store.GetSpace(ctx, *d.Meta.Clip)
		if err != nil {
			detail.Warning = "We could not clip the shapefile - error: " + err.Error()
		} else {
			boundary.Geometry = nil
			detail.ClipBoundary = boundary
		}
	}

	corridors, err := s.store.ListDocuments(ctx, store.DocumentFilter{Types: []models.DocType{models.DocCorridor}})
	if err != nil {
		return nil, err
	}
	for _, c := range corridors {
		spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &c.ID})
		if err != nil {
			return nil, err
		}
		for _, sp := range spaces {
			sp.Geometry = nil
			detail.Corridors = append(detail.Corridors, sp)
		}
	}
	return detail, nil
}

// Fields returns the attribute fields of a shapefile for classification
func (s *ShapefileService) Fields(ctx context.Context, site *models.Site, id int64) ([]string, error) {
	if _, err := s.Document(ctx, site, id); err != nil {
		return nil, err
	}
	layer, err := s.openLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	return layer.Fields, nil
}

// LoadInfo reads the shapefile and stores its fields, count and type
func (s *ShapefileService) LoadInfo(ctx context.Context, site *models.Site, id int64) (*models.ShapefileInfo, error) {
	d, err := s.Document(ctx, site, id)
	if err != nil {
		return nil, err
	}
	layer, err := s.openLayer(ctx, id)
	if err != nil {
		return nil, err
	}

	d.Meta.ShapefileInfo = &models.ShapefileInfo{
		Fields: layer.Fields,
		Count:  layer.Count,
		Type:   layer.GeometryType,
	}
	if err := s.store.UpdateDocumentMeta(ctx, id, d.Meta); err != nil {
		return nil, err
	}
	s.logger.WithFields(logging.Fields{
		"document_id": id,
		"count":       layer.Count,
		"type":        layer.GeometryType,
	}).Info("Shapefile info loaded")
	return d.Meta.ShapefileInfo, nil
}

// AcceptLargeFile lets a shapefile with more than MaxFeatures objects be converted
func (s *ShapefileService) AcceptLargeFile(ctx context.Context, site *models.Site, id int64) error {
	d, err := s.Document(ctx, site, id)
	if err != nil {
		return err
	}
	if d.Meta.ShapefileInfo == nil {
		return ErrNoShapefileInfo
	}
	if d.Meta.ShapefileInfo.Count <= MaxFeatures {
		return nil
	}
	d.Meta.SkipSizeCheck = true
	return s.store.UpdateDocumentMeta(ctx, id, d.Meta)
}

// Classify stores the column roles and processing mode, removes the current
// spaces and converts the shapefile again
func (s *ShapefileService) Classify(ctx context.Context, site *models.Site, id int64, req ClassifyRequest) (*ConvertResult, error) {
	d, err := s.Document(ctx, site, id)
	if err != nil {
		return nil, err
	}
	layer, err := s.openLayer(ctx, id)
	if err != nil {
		return nil, err
	}

	columns := &models.Columns{Import: make([]string, 0)}
	if d.Meta.Columns != nil {
		columns.Name = d.Meta.Columns.Name
	}
	for _, field := range layer.Fields {
		switch req.Actions[field] {
		case ColumnPrimary:
			columns.Name = field
		case ColumnImport:
			columns.Import = append(columns.Import, field)
		}
	}
	d.Meta.Columns = columns
	d.Meta.Clip = req.Clip
	d.Meta.SingleReferenceSpace = req.Processing == ProcessSingle
	d.Meta.GroupSpacesByName = req.Processing == ProcessGroup

	if err := s.store.UpdateDocumentMeta(ctx, id, d.Meta); err != nil {
		return nil, err
	}
	if _, err := s.store.DeleteSpacesBySource(ctx, id); err != nil {
		return nil, err
	}
	return s.convert(ctx, d, layer)
}

// Convert turns the shapefile features into reference spaces
func (s *ShapefileService) Convert(ctx context.Context, site *models.Site, id int64) (*ConvertResult, error) {
	d, err := s.Document(ctx, site, id)
	if err != nil {
		return nil, err
	}
	layer, err := s.openLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.convert(ctx, d, layer)
}

func (s *ShapefileService) convert(ctx context.Context, d *models.Document, layer *shapefile.Layer) (*ConvertResult, error) {
	start := time.Now()
	spaces, msg := buildSpaces(d, layer)

	if msg == "" && d.Meta.Clip != nil {
		boundary, err := s.store.GetSpace(ctx, *d.Meta.Clip)
		if err != nil {
			msg = "We could not clip the shapefile - error: " + err.Error()
		} else {
			spaces, msg = clipSpaces(spaces, boundary.Geometry)
		}
	}

	if msg == "" {
		if err := s.store.ReplaceSpaces(ctx, d.ID, spaces); err != nil {
			s.observe("convert", start, err)
			return nil, err
		}
	}

	d.Meta.ProcessingDate = time.Now().UTC().Format(time.RFC3339)
	if msg != "" {
		d.Meta.ProcessingError = msg
	} else {
		d.Meta.Processed = true
		d.Meta.ProcessingError = ""
	}
	if err := s.store.UpdateDocumentMeta(ctx, d.ID, d.Meta); err != nil {
		return nil, err
	}
	s.invalidate(ctx, d.ID)

	var outcome error
	if msg != "" {
		outcome = errors.New(msg)
	}
	s.observe("convert", start, outcome)

	entry := s.logger.WithFields(logging.Fields{
		"document_id": d.ID,
		"features":    layer.Count,
		"spaces":      len(spaces),
		"duration":    time.Since(start).String(),
	})
	if msg != "" {
		entry.WithField("processing_error", msg).Warn("Shapefile conversion rejected")
		return &ConvertResult{Error: msg}, nil
	}
	entry.Info("Shapefile converted")
	return &ConvertResult{Spaces: len(spaces)}, nil
}

// conversion error messages per processing mode
type stageMessages struct {
	prepare string
	crs     string
}

var modeMessages = map[string]stageMessages{
	ProcessSingle: {
		prepare: "The following error occurred when trying to fetch the shapefile info: ",
		crs:     "The following error occurred when trying to change the coordinate reference system: ",
	},
	ProcessGroup: {
		prepare: "The following error occurred when trying to prepare the shapefile element: ",
		crs:     "The following error occurred when trying to change the coordinate reference system: ",
	},
	ProcessIndividual: {
		prepare: "The following error occurred when trying to obtain the shapefile geometry: ",
		crs:     "The following error occurred when trying to convert the coordinate reference system to WGS84: ",
	},
}

func processingMode(m models.DocumentMeta) string {
	switch {
	case m.SingleReferenceSpace:
		return ProcessSingle
	case m.GroupSpacesByName:
		return ProcessGroup
	default:
		return ProcessIndividual
	}
}

// buildSpaces converts the layer according to the document's processing
// mode. A non-empty message means the conversion was rejected.
func buildSpaces(d *models.Document, layer *shapefile.Layer) ([]models.ReferenceSpace, string) {
	if layer.Count > MaxFeatures && !d.Meta.SkipSizeCheck {
		return nil, errTooManyObjects
	}

	mode := processingMode(d.Meta)
	features := layer.Features()
	geoms, msg := prepareGeometries(features, layer, modeMessages[mode])
	if msg != "" {
		return nil, msg
	}
	for _, g := range geoms {
		if g != nil && geo.HasZ(g) {
			return nil, err3D
		}
	}

	var nameColumn string
	var importColumns []string
	if d.Meta.Columns != nil {
		nameColumn = d.Meta.Columns.Name
		importColumns = d.Meta.Columns.Import
	}

	switch mode {
	case ProcessSingle:
		parts := make([]geom.T, 0, len(geoms))
		for _, g := range geoms {
			if g != nil {
				parts = append(parts, g)
			}
		}
		union, err := geo.UnionAll(parts)
		if err != nil {
			return nil, errMergePrefix + err.Error()
		}
		return []models.ReferenceSpace{{Name: d.Name, Geometry: union}}, ""

	case ProcessGroup:
		order := make([]string, 0)
		groups := make(map[string][]geom.T)
		for i, f := range features {
			if geoms[i] == nil {
				continue
			}
			name := attributeString(f.Attributes[nameColumn])
			if name == "" {
				name = "Unnamed"
			}
			if _, ok := groups[name]; !ok {
				order = append(order, name)
			}
			groups[name] = append(groups[name], geoms[i])
		}
		spaces := make([]models.ReferenceSpace, 0, len(order))
		for _, name := range order {
			union, err := geo.UnionAll(groups[name])
			if err != nil {
				return nil, errMergePrefix + err.Error()
			}
			spaces = append(spaces, models.ReferenceSpace{Name: name, Geometry: union})
		}
		return spaces, ""

	default:
		spaces := make([]models.ReferenceSpace, 0, len(features))
		for i, f := range features {
			if geoms[i] == nil {
				continue
			}
			imported := make(map[string]any, len(importColumns))
			for _, field := range layer.Fields {
				if slices.Contains(importColumns, field) {
					imported[field] = f.Attributes[field]
				}
			}
			spaces = append(spaces, models.ReferenceSpace{
				Name:     attributeString(f.Attributes[nameColumn]),
				Geometry: geoms[i],
				Meta:     map[string]any{"features": imported},
			})
		}
		return spaces, ""
	}
}

// prepareGeometries strips Z and M ordinates and reprojects every feature to
// WGS84 in parallel. The returned slice is aligned with features; features
// without geometry stay nil.
func prepareGeometries(features []shapefile.Feature, layer *shapefile.Layer, messages stageMessages) ([]geom.T, string) {
	type result struct {
		index int
		g     geom.T
	}
	type failure struct {
		index  int
		prefix string
		err    error
	}

	geoms := make([]geom.T, len(features))
	results := make(chan result, len(features))
	failures := make(chan failure, len(features))

	// Create a WaitGroup to wait for all goroutines to finish
	var wg sync.WaitGroup
	for i, f := range features {
		if f.Geometry == nil || f.Geometry.Empty() {
			continue
		}
		wg.Add(1)
		go func(i int, g geom.T) {
			defer wg.Done()
			var err error
			// measures are dropped along with elevation
			if layer.HasZ() || g.Layout().MIndex() >= 0 {
				if g, err = geo.Force2D(g); err != nil {
					failures <- failure{index: i, prefix: messages.prepare, err: err}
					return
				}
			}
			if g, err = layer.Reproject(g); err != nil {
				failures <- failure{index: i, prefix: messages.crs, err: err}
				return
			}
			results <- result{index: i, g: g}
		}(i, f.Geometry)
	}

	go func() {
		wg.Wait()
		close(results)
		close(failures)
	}()

	for r := range results {
		geoms[r.index] = r.g
	}

	// Report the failure of the first feature in file order
	first := failure{index: -1}
	for f := range failures {
		if first.index == -1 || f.index < first.index {
			first = f
		}
	}
	if first.index >= 0 {
		return nil, first.prefix + first.err.Error()
	}
	return geoms, ""
}

// clipSpaces cuts spaces to boundary and drops those entirely outside it
func clipSpaces(spaces []models.ReferenceSpace, boundary geom.T) ([]models.ReferenceSpace, string) {
	kept := spaces[:0]
	for _, sp := range spaces {
		g, outcome, err := geo.Clip(sp.Geometry, boundary)
		if err != nil {
			return nil, "We could not clip the shapefile - error: " + err.Error()
		}
		switch outcome {
		case geo.ClipDrop:
			continue
		case geo.ClipTrim:
			sp.Geometry = g
		}
		kept = append(kept, sp)
	}
	return kept, ""
}

func attributeString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Clip stores the boundary on the document, removes the spaces outside it and
// cuts the ones crossing it
func (s *ShapefileService) Clip(ctx context.Context, site *models.Site, id, boundaryID int64) (*ClipResult, error) {
	d, err := s.Document(ctx, site, id)
	if err != nil {
		return nil, err
	}
	boundary, err := s.store.GetSpace(ctx, boundaryID)
	if err != nil {
		return nil, err
	}
	d.Meta.Clip = &boundaryID
	if err := s.store.UpdateDocumentMeta(ctx, id, d.Meta); err != nil {
		return nil, err
	}

	spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &id})
	if err != nil {
		return nil, err
	}
	items := make([]*models.ReferenceSpace, len(spaces))
	for i := range spaces {
		items[i] = &spaces[i]
	}
	inside, err := geo.NewIndex(items).Query(boundary.Geometry)
	if err != nil {
		return nil, fmt.Errorf("error querying spaces inside the boundary: %w", err)
	}
	keep := make(map[int64]bool, len(inside))
	for _, sp := range inside {
		keep[sp.ID] = true
	}

	remove := make([]int64, 0)
	for _, sp := range spaces {
		if !keep[sp.ID] {
			remove = append(remove, sp.ID)
		}
	}
	removed, err := s.store.DeleteSpaces(ctx, remove)
	if err != nil {
		return nil, err
	}

	clipped := 0
	for _, sp := range inside {
		g, outcome, err := geo.Clip(sp.Geometry, boundary.Geometry)
		if err != nil {
			return nil, fmt.Errorf("error clipping space %d: %w", sp.ID, err)
		}
		if outcome != geo.ClipTrim {
			continue
		}
		if err := s.store.UpdateSpaceGeometry(ctx, sp.ID, g); err != nil {
			return nil, err
		}
		clipped++
	}
	s.invalidate(ctx, id)

	return &ClipResult{
		Boundary: boundary.Name,
		Removed:  removed,
		Clipped:  clipped,
		Message: fmt.Sprintf("Borders were clipped to %s; %d spaces were removed and %d spaces were clipped.",
			boundary.Name, removed, clipped),
	}, nil
}

// CreatePlot renders a preview image of the shapefile into the media root
func (s *ShapefileService) CreatePlot(ctx context.Context, site *models.Site, id int64) (*PlotResult, error) {
	start := time.Now()
	d, err := s.Document(ctx, site, id)
	if err != nil {
		return nil, err
	}
	paths, err := s.attachmentPaths(ctx, id)
	if err != nil {
		return nil, err
	}

	output := fmt.Sprintf("plots/%d.png", id)
	plotErr := s.writePlot(paths, filepath.Join(s.mediaRoot, filepath.FromSlash(output)))
	s.observe("plot", start, plotErr)

	if plotErr != nil {
		d.Meta.ShapefilePlotError = plotErr.Error()
	} else {
		d.Meta.ShapefilePlot = output
		d.Meta.ShapefilePlotError = ""
	}
	if err := s.store.UpdateDocumentMeta(ctx, id, d.Meta); err != nil {
		return nil, err
	}
	if plotErr != nil {
		return &PlotResult{Error: plotErr.Error()}, nil
	}
	return &PlotResult{Path: output}, nil
}

func (s *ShapefileService) writePlot(paths []string, output string) error {
	if err := shapefile.PlotFiles(paths); err != nil {
		return err
	}
	layer, err := shapefile.Open(paths)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("error creating plot directory: %w", err)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("error creating plot file: %w", err)
	}
	if err := shapefile.Plot(layer, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveShapefileDocument creates or updates a shapefile document. Uploaded
// files replace the current attachments; zip files are unpacked.
func (s *ShapefileService) SaveShapefileDocument(ctx context.Context, site *models.Site, id int64, form ShapefileForm, uploads []Upload, user string) (*models.Document, error) {
	if strings.TrimSpace(form.Name) == "" {
		return nil, invalid("name", "This field is required.")
	}
	if !form.DocType.Valid() {
		return nil, invalid("doc_type", "Select a valid choice. %s is not one of the available choices.", form.DocType)
	}

	d := &models.Document{}
	action := models.LogCreate
	if id != 0 {
		existing, err := s.Document(ctx, site, id)
		if err != nil {
			return nil, err
		}
		d = existing
		action = models.LogUpdate
	}

	d.Name = strings.TrimSpace(form.Name)
	d.Author = form.Author
	d.URL = form.URL
	d.Color = form.Color
	d.DocType = form.DocType
	d.Description = form.Description
	d.IncludeInSiteAnalysis = form.IncludeInSiteAnalysis
	d.IsActive = form.IsActive
	d.IsShapefile = true
	if site != nil {
		d.SiteID = &site.ID
	}
	d.Meta.SingleReferenceSpace = false
	d.Meta.GroupSpacesByName = false

	if err := s.store.SaveDocument(ctx, d); err != nil {
		return nil, err
	}
	err := s.store.AddLog(ctx, &models.LogEntry{
		Action: action,
		Name:   "Shapefile: " + d.Name,
		URL:    fmt.Sprintf("/controlpanel/shapefiles/%d", d.ID),
		User:   user,
	})
	if err != nil {
		return nil, err
	}

	if len(uploads) > 0 {
		files, err := s.storeUploads(d.ID, uploads)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.ReplaceAttachments(ctx, d.ID, files); err != nil {
			return nil, err
		}
		s.invalidate(ctx, d.ID)
	}
	return d, nil
}

// storeUploads writes uploads to MEDIA_ROOT/files/{id}/ and returns their
// paths relative to the media root
func (s *ShapefileService) storeUploads(docID int64, uploads []Upload) ([]string, error) {
	return writeUploads(s.mediaRoot, filepath.Join("files", strconv.FormatInt(docID, 10)), uploads, true)
}

// writeUploads replaces the content of mediaRoot/rel with the uploads and
// returns their slash separated paths relative to mediaRoot. Zip uploads are
// unpacked when unzip is set.
func writeUploads(mediaRoot, rel string, uploads []Upload, unzip bool) ([]string, error) {
	dir := filepath.Join(mediaRoot, rel)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("error removing previous files: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating upload directory: %w", err)
	}

	written := make([]string, 0, len(uploads))
	seen := make(map[string]bool)
	write := func(name string, r io.Reader) error {
		name = filepath.Base(filepath.Clean("/" + name))
		if name == "/" || name == "." {
			return invalid("file", "invalid file name")
		}
		out, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("error saving %s: %w", name, err)
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return fmt.Errorf("error saving %s: %w", name, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("error saving %s: %w", name, err)
		}
		if !seen[name] {
			seen[name] = true
			written = append(written, filepath.ToSlash(filepath.Join(rel, name)))
		}
		return nil
	}

	for _, u := range uploads {
		if unzip && strings.HasSuffix(strings.ToLower(u.Name), ".zip") {
			files, err := shapefile.ExtractZip(u.File, u.Size)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				if err := write(f.Name, bytes.NewReader(f.Data)); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := write(u.Name, u.File); err != nil {
			return nil, err
		}
	}
	return written, nil
}

// Zip returns the document name and a zip archive of its attachments
func (s *ShapefileService) Zip(ctx context.Context, id int64) (string, []byte, error) {
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return "", nil, err
	}
	paths, err := s.attachmentPaths(ctx, id)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if err := shapefile.BuildZip(&buf, paths); err != nil {
		return "", nil, err
	}
	return d.Name, buf.Bytes(), nil
}

// Dataviz returns the site's visual configuration of a shapefile, creating
// an empty one when none exists, and the available map styles
func (s *ShapefileService) Dataviz(ctx context.Context, site *models.Site, id int64) (*models.Dataviz, []models.MapStyle, error) {
	if _, err := s.Document(ctx, site, id); err != nil {
		return nil, nil, err
	}
	d, err := s.store.GetDataviz(ctx, site.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		d = &models.Dataviz{SiteID: site.ID, ShapefileID: id}
		err = s.store.SaveDataviz(ctx, d)
	}
	if err != nil {
		return nil, nil, err
	}
	styles, err := s.store.ListMapStyles(ctx)
	if err != nil {
		return nil, nil, err
	}
	return d, styles, nil
}

// SaveDataviz stores the posted configuration. An invalid features object
// is skipped and reported in the returned warning.
func (s *ShapefileService) SaveDataviz(ctx context.Context, site *models.Site, id int64, form DatavizForm) (*models.Dataviz, string, error) {
	d, _, err := s.Dataviz(ctx, site, id)
	if err != nil {
		return nil, "", err
	}

	var warning string
	colors := &models.DatavizColors{Option: form.Option, Color: form.Color, Scheme: form.Scheme}
	if form.SetFeature != nil {
		colors.SetFeature = *form.SetFeature
	}
	if form.Features != nil {
		var features map[string]string
		if err := json.Unmarshal([]byte(*form.Features), &features); err != nil {
			warning = "JSON object is not valid and was not saved"
		} else {
			colors.Features = features
		}
	}
	d.Colors = colors
	d.MapStyleID = form.MapStyleID
	d.Opacity = form.Opacity
	d.FillOpacity = form.FillOpacity
	d.LineWidth = form.LineWidth

	if err := s.store.SaveDataviz(ctx, d); err != nil {
		return nil, "", err
	}
	s.invalidate(ctx, id)
	return d, warning, nil
}
