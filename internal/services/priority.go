package services

import (
	"context"
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"corridor-platform/internal/config"
	"corridor-platform/internal/geo"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// PriorityBuffer is the buffer in metres around rivers and bionet
const PriorityBuffer = 400

// PoorQualityFlag marks rivers of poor water quality in their meta data
const PoorQualityFlag = "poor_quality_river"

const derivedNote = "It is used for our priority map. It can be regenerated from the control panel. Do not edit this map manually."

// derived documents of the priority map, by name
var (
	riverSegmentsDoc = derivedDoc{
		name:    "Rivers with poor quality and not close to Bionet",
		content: "This document contains the rivers (with buffer) that are NOT close to bionet. " + derivedNote,
	}
	riverBufferDoc = derivedDoc{
		name:    "Poor quality rivers with buffer",
		content: "This document is generated by taking low-quality rivers and giving them a certain buffer. " + derivedNote,
	}
	bionetFlatDoc = derivedDoc{
		name:    "Bionet - flat file",
		content: "This document contains all of bionet, but all elements are grouped together. " + derivedNote,
	}
	bionetBufferDoc = derivedDoc{
		name:    "Bionet - with buffer",
		content: "This document contains all of bionet, but all elements are grouped together and given a buffer. " + derivedNote,
	}
)

type derivedDoc struct {
	name    string
	content string
}

// PriorityLayers holds the geometries that make up the priority map
type PriorityLayers struct {
	Rivers        []SpaceShape `json:"rivers"`
	RiverSegments *SpaceShape  `json:"river_segments,omitempty"`
	RiverBuffer   *SpaceShape  `json:"river_buffer,omitempty"`
	BionetFlat    *SpaceShape  `json:"bionet_flat,omitempty"`
	BionetBuffer  *SpaceShape  `json:"bionet_buffer,omitempty"`
}

// PriorityService rebuilds the derived layers of the priority map
type PriorityService struct {
	store  PriorityStore
	cache  LayerCache
	layers config.Layers
	logger logging.Logger
}

// NewPriorityService creates a new PriorityService instance
func NewPriorityService(st PriorityStore, cache LayerCache, layers config.Layers, logger logging.Logger) *PriorityService {
	return &PriorityService{store: st, cache: cache, layers: layers, logger: logger}
}

func (s *PriorityService) document(ctx context.Context, d derivedDoc) (*models.Document, error) {
	doc, created, err := s.store.GetOrCreateDocument(ctx, d.name, models.Document{
		Content: d.content,
		DocType: models.DocGeneral,
	})
	if err != nil {
		return nil, fmt.Errorf("error loading document %q: %w", d.name, err)
	}
	if created {
		s.logger.WithField("document", doc.ID).Infof("Created priority map document %q", d.name)
	}
	return doc, nil
}

// replace stores g as the only space of doc
func (s *PriorityService) replace(ctx context.Context, doc *models.Document, name, description string, g geom.T) error {
	if err := s.store.ReplaceSpaces(ctx, doc.ID, []models.ReferenceSpace{{
		Name:        name,
		Description: description,
		Geometry:    g,
	}}); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, doc.ID); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate layer cache")
		}
	}
	return nil
}

// MarkPoorQualityRivers flags the rivers named in the poor quality list and
// returns how many were flagged
func (s *PriorityService) MarkPoorQualityRivers(ctx context.Context) (int, error) {
	rivers, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &s.layers.Rivers})
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, r := range rivers {
		if !slices.Contains(s.layers.PoorRivers, r.Name) {
			continue
		}
		meta := make(map[string]any, len(r.Meta)+1)
		for k, v := range r.Meta {
			meta[k] = v
		}
		meta[PoorQualityFlag] = true
		if err := s.store.UpdateSpaceMeta(ctx, r.ID, meta); err != nil {
			return marked, err
		}
		marked++
	}
	s.logger.WithField("count", marked).Info("Marked poor quality rivers")
	return marked, nil
}

// RebuildBuffers recreates the river buffer, the flattened bionet and the
// bionet buffer. The river and bionet layers are built concurrently.
func (s *PriorityService) RebuildBuffers(ctx context.Context) ([]string, error) {
	start := time.Now()
	riverBuffer, err := s.document(ctx, riverBufferDoc)
	if err != nil {
		return nil, err
	}
	bionetFlat, err := s.document(ctx, bionetFlatDoc)
	if err != nil {
		return nil, err
	}
	bionetBuffer, err := s.document(ctx, bionetBufferDoc)
	if err != nil {
		return nil, err
	}

	var riverMsg, bionetMsg, bufferMsg string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rivers, err := s.store.ListSpaces(gctx, store.SpaceFilter{SourceID: &s.layers.Rivers, MetaFlag: PoorQualityFlag})
		if err != nil {
			return err
		}
		union, err := unionSpaces(rivers)
		if err != nil {
			return fmt.Errorf("error merging poor quality rivers: %w", err)
		}
		buffered, err := geo.Buffer(union, PriorityBuffer)
		if err != nil {
			return fmt.Errorf("error buffering rivers: %w", err)
		}
		if err := s.replace(gctx, riverBuffer, "Rivers with buffer",
			fmt.Sprintf("Automatically created from the original shapefile, by adding a %dm buffer.", PriorityBuffer), buffered); err != nil {
			return err
		}
		riverMsg = fmt.Sprintf("We created RIVERS WITH BUFFERS with %dm distance", PriorityBuffer)
		return nil
	})
	g.Go(func() error {
		bionet, err := s.store.ListSpaces(gctx, store.SpaceFilter{SourceID: &s.layers.Bionet})
		if err != nil {
			return err
		}
		union, err := unionSpaces(bionet)
		if err != nil {
			return fmt.Errorf("error merging bionet: %w", err)
		}
		if err := s.replace(gctx, bionetFlat, "Bionet in a single layer",
			"Automatically created from the original shapefile, unified into a single layer.", union); err != nil {
			return err
		}
		bionetMsg = "We created bionet as a single layer"

		buffered, err := geo.Buffer(union, PriorityBuffer)
		if err != nil {
			return fmt.Errorf("error buffering bionet: %w", err)
		}
		if err := s.replace(gctx, bionetBuffer, "Bionet with a buffer",
			fmt.Sprintf("Automatically created from the original shapefile, with a buffer of %dm.", PriorityBuffer), buffered); err != nil {
			return err
		}
		bufferMsg = fmt.Sprintf("We created BIONET WITH BUFFERS with %dm distance", PriorityBuffer)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.WithField("duration", time.Since(start).String()).Info("Rebuilt priority map buffers")
	return []string{riverMsg, bionetMsg, bufferMsg}, nil
}

func unionSpaces(spaces []models.ReferenceSpace) (geom.T, error) {
	parts := make([]geom.T, 0, len(spaces))
	for _, sp := range spaces {
		if sp.Geometry != nil && !sp.Geometry.Empty() {
			parts = append(parts, sp.Geometry)
		}
	}
	if len(parts) == 0 {
		return nil, geo.ErrEmptyGeometry
	}
	return geo.UnionAll(parts)
}

// firstGeometry returns the geometry of the first space of a document
func (s *PriorityService) firstGeometry(ctx context.Context, doc *models.Document) (geom.T, error) {
	spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &doc.ID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(spaces) == 0 || spaces[0].Geometry == nil {
		return nil, fmt.Errorf("%q has no geometry, rebuild the buffers first: %w", doc.Name, store.ErrNotFound)
	}
	return spaces[0].Geometry, nil
}

// CalculateDifference stores the river buffer minus the bionet buffer as the
// rivers that are far from bionet
func (s *PriorityService) CalculateDifference(ctx context.Context) error {
	segments, err := s.document(ctx, riverSegmentsDoc)
	if err != nil {
		return err
	}
	riverBuffer, err := s.document(ctx, riverBufferDoc)
	if err != nil {
		return err
	}
	bionetBuffer, err := s.document(ctx, bionetBufferDoc)
	if err != nil {
		return err
	}

	rivers, err := s.firstGeometry(ctx, riverBuffer)
	if err != nil {
		return err
	}
	bionet, err := s.firstGeometry(ctx, bionetBuffer)
	if err != nil {
		return err
	}
	diff, err := geo.Difference(rivers, bionet)
	if err != nil {
		return fmt.Errorf("error subtracting bionet from rivers: %w", err)
	}
	return s.replace(ctx, segments, "Rivers far from Bionet", "Automatically created from the original shapefile.", diff)
}

// Layers returns the poor quality rivers and the derived layers for display
func (s *PriorityService) Layers(ctx context.Context) (*PriorityLayers, error) {
	out := &PriorityLayers{Rivers: make([]SpaceShape, 0)}
	rivers, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &s.layers.Rivers, MetaFlag: PoorQualityFlag})
	if err != nil {
		return nil, err
	}
	for i := range rivers {
		shape, err := shapeOf(&rivers[i])
		if err != nil {
			return nil, err
		}
		out.Rivers = append(out.Rivers, *shape)
	}

	for _, target := range []struct {
		doc derivedDoc
		dst **SpaceShape
	}{
		{riverSegmentsDoc, &out.RiverSegments},
		{riverBufferDoc, &out.RiverBuffer},
		{bionetFlatDoc, &out.BionetFlat},
		{bionetBufferDoc, &out.BionetBuffer},
	} {
		doc, err := s.document(ctx, target.doc)
		if err != nil {
			return nil, err
		}
		spaces, err := s.store.ListSpaces(ctx, store.SpaceFilter{SourceID: &doc.ID, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(spaces) == 0 {
			continue
		}
		if *target.dst, err = shapeOf(&spaces[0]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
