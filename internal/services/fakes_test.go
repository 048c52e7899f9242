package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/twpayne/go-geom"

	"corridor-platform/internal/clients"
	"corridor-platform/internal/email"
	"corridor-platform/internal/geo"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

type vegLink struct {
	species int64
	vt      int64
	file    *int64
}

// fakeStore is an in-memory repository with the behaviour the services rely on
type fakeStore struct {
	mu     sync.Mutex
	nextID int64

	documents   map[int64]*models.Document
	attachments map[int64]*models.Attachment
	spaces      map[int64]*models.ReferenceSpace
	datavizs    map[[2]int64]*models.Dataviz
	styles      map[int64]*models.MapStyle
	vegTypes    map[int64]*models.VegetationType
	vegSpaces   map[int64][]int64
	species     map[int64]*models.Species
	genera      map[string]*models.Genus
	families    map[string]*models.Family
	siteLinks   map[int64][]int64
	vegLinks    []vegLink
	photos      map[int64]*models.Photo
	gardens     map[int64]*models.Garden
	gardenPages map[[2]int64][]int64
	pages       map[int64]*models.Page
	managers    map[int64]*models.GardenManager
	logs        []models.LogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:      100,
		documents:   make(map[int64]*models.Document),
		attachments: make(map[int64]*models.Attachment),
		spaces:      make(map[int64]*models.ReferenceSpace),
		datavizs:    make(map[[2]int64]*models.Dataviz),
		styles:      make(map[int64]*models.MapStyle),
		vegTypes:    make(map[int64]*models.VegetationType),
		vegSpaces:   make(map[int64][]int64),
		species:     make(map[int64]*models.Species),
		genera:      make(map[string]*models.Genus),
		families:    make(map[string]*models.Family),
		siteLinks:   make(map[int64][]int64),
		photos:      make(map[int64]*models.Photo),
		gardens:     make(map[int64]*models.Garden),
		gardenPages: make(map[[2]int64][]int64),
		pages:       make(map[int64]*models.Page),
		managers:    make(map[int64]*models.GardenManager),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, store.ErrNotFound)...)
}

// fixtures

func (f *fakeStore) addDocument(d models.Document) *models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == 0 {
		d.ID = f.id()
	}
	f.documents[d.ID] = &d
	return &d
}

func (f *fakeStore) addSpace(source int64, name string, g geom.T, meta map[string]any) *models.ReferenceSpace {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp := &models.ReferenceSpace{ID: f.id(), Name: name, Geometry: g, SourceID: &source, Meta: meta}
	f.spaces[sp.ID] = sp
	return sp
}

func (f *fakeStore) addVegetationType(vt models.VegetationType, spaceIDs ...int64) *models.VegetationType {
	f.mu.Lock()
	defer f.mu.Unlock()
	vt.ID = f.id()
	f.vegTypes[vt.ID] = &vt
	f.vegSpaces[vt.ID] = spaceIDs
	return &vt
}

func (f *fakeStore) spacesOf(source int64) []models.ReferenceSpace {
	out, _ := f.ListSpaces(context.Background(), store.SpaceFilter{SourceID: &source})
	return out
}

// documents

func (f *fakeStore) GetDocument(_ context.Context, id int64) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok {
		return nil, notFoundf("document %d", id)
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, flt store.DocumentFilter) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Document, 0)
	for _, d := range f.documents {
		if flt.SiteID != nil {
			own := d.SiteID != nil && *d.SiteID == *flt.SiteID
			if !own && !(flt.WithGlobal && d.SiteID == nil) {
				continue
			}
		}
		if len(flt.Types) > 0 {
			found := false
			for _, t := range flt.Types {
				found = found || t == d.DocType
			}
			if !found {
				continue
			}
		}
		if flt.Shapefile != nil && d.IsShapefile != *flt.Shapefile {
			continue
		}
		if flt.Active != nil && d.IsActive != *flt.Active {
			continue
		}
		if flt.IncludeInSiteAnalysis != nil && d.IncludeInSiteAnalysis != *flt.IncludeInSiteAnalysis {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SaveDocument(_ context.Context, d *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == 0 {
		d.ID = f.id()
		d.CreatedAt = time.Now()
	}
	cp := *d
	f.documents[d.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateDocumentMeta(_ context.Context, id int64, meta models.DocumentMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok {
		return notFoundf("document %d", id)
	}
	d.Meta = meta
	return nil
}

func (f *fakeStore) GetOrCreateDocument(ctx context.Context, name string, template models.Document) (*models.Document, bool, error) {
	f.mu.Lock()
	for _, d := range f.documents {
		if d.Name == name {
			cp := *d
			f.mu.Unlock()
			return &cp, false, nil
		}
	}
	f.mu.Unlock()
	template.ID = 0
	template.Name = name
	if err := f.SaveDocument(ctx, &template); err != nil {
		return nil, false, err
	}
	return &template, true, nil
}

func (f *fakeStore) ListAttachments(_ context.Context, documentID int64) ([]models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Attachment, 0)
	for _, a := range f.attachments {
		if a.DocumentID == documentID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetAttachment(_ context.Context, id int64) (*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[id]
	if !ok {
		return nil, notFoundf("attachment %d", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ReplaceAttachments(_ context.Context, documentID int64, files []string) ([]models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.attachments {
		if a.DocumentID == documentID {
			delete(f.attachments, id)
		}
	}
	out := make([]models.Attachment, 0, len(files))
	for _, file := range files {
		a := &models.Attachment{ID: f.id(), DocumentID: documentID, File: file}
		f.attachments[a.ID] = a
		out = append(out, *a)
	}
	return out, nil
}

// spaces

func matchSpace(sp *models.ReferenceSpace, flt store.SpaceFilter) bool {
	if flt.SourceID != nil && (sp.SourceID == nil || *sp.SourceID != *flt.SourceID) {
		return false
	}
	if len(flt.IDs) > 0 {
		found := false
		for _, id := range flt.IDs {
			found = found || id == sp.ID
		}
		if !found {
			return false
		}
	}
	if flt.MetaFlag != "" {
		if v, _ := sp.Meta[flt.MetaFlag].(bool); !v {
			return false
		}
	}
	if len(flt.Names) > 0 {
		found := false
		for _, n := range flt.Names {
			found = found || n == sp.Name
		}
		if !found {
			return false
		}
	}
	if flt.Intersects != nil {
		if sp.Geometry == nil {
			return false
		}
		ok, err := geo.Intersects(sp.Geometry, flt.Intersects)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (f *fakeStore) ListSpaces(_ context.Context, flt store.SpaceFilter) ([]models.ReferenceSpace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ReferenceSpace, 0)
	for _, sp := range f.spaces {
		if matchSpace(sp, flt) {
			out = append(out, *sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeStore) CountSpaces(ctx context.Context, flt store.SpaceFilter) (int, error) {
	flt.Limit = 0
	out, err := f.ListSpaces(ctx, flt)
	return len(out), err
}

func (f *fakeStore) GetSpace(_ context.Context, id int64) (*models.ReferenceSpace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.spaces[id]
	if !ok {
		return nil, notFoundf("space %d", id)
	}
	cp := *sp
	return &cp, nil
}

func (f *fakeStore) SpaceAt(ctx context.Context, sourceID int64, g geom.T) (*models.ReferenceSpace, error) {
	out, _ := f.ListSpaces(ctx, store.SpaceFilter{SourceID: &sourceID, Intersects: g, Limit: 1})
	if len(out) == 0 {
		return nil, notFoundf("space of %d", sourceID)
	}
	return &out[0], nil
}

func (f *fakeStore) CreateSpace(_ context.Context, sp *models.ReferenceSpace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp.ID = f.id()
	cp := *sp
	f.spaces[sp.ID] = &cp
	return nil
}

func (f *fakeStore) ReplaceSpaces(_ context.Context, sourceID int64, spaces []models.ReferenceSpace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sp := range f.spaces {
		if sp.SourceID != nil && *sp.SourceID == sourceID {
			delete(f.spaces, id)
		}
	}
	for i := range spaces {
		spaces[i].ID = f.id()
		spaces[i].SourceID = &sourceID
		cp := spaces[i]
		f.spaces[cp.ID] = &cp
	}
	return nil
}

func (f *fakeStore) DeleteSpacesBySource(_ context.Context, sourceID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, sp := range f.spaces {
		if sp.SourceID != nil && *sp.SourceID == sourceID {
			delete(f.spaces, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteSpaces(_ context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := f.spaces[id]; ok {
			delete(f.spaces, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UpdateSpaceGeometry(_ context.Context, id int64, g geom.T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.spaces[id]
	if !ok {
		return notFoundf("space %d", id)
	}
	sp.Geometry = g
	return nil
}

func (f *fakeStore) UpdateSpaceMeta(_ context.Context, id int64, meta map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.spaces[id]
	if !ok {
		return notFoundf("space %d", id)
	}
	sp.Meta = meta
	return nil
}

func (f *fakeStore) SourceSizeBytes(ctx context.Context, sourceID int64) (int64, error) {
	var size int64
	for _, sp := range f.spacesOf(sourceID) {
		data, err := geo.MarshalWKB(sp.Geometry)
		if err != nil {
			return 0, err
		}
		size += int64(len(data))
	}
	return size, nil
}

func (f *fakeStore) AddLog(_ context.Context, entry *models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = f.id()
	entry.Date = time.Now()
	f.logs = append(f.logs, *entry)
	return nil
}

// dataviz and map styles

func (f *fakeStore) GetDataviz(_ context.Context, siteID, shapefileID int64) (*models.Dataviz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.datavizs[[2]int64{siteID, shapefileID}]
	if !ok {
		return nil, notFoundf("dataviz %d/%d", siteID, shapefileID)
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) SaveDataviz(_ context.Context, d *models.Dataviz) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == 0 {
		d.ID = f.id()
	}
	cp := *d
	f.datavizs[[2]int64{d.SiteID, d.ShapefileID}] = &cp
	return nil
}

func (f *fakeStore) GetMapStyle(_ context.Context, id int64) (*models.MapStyle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.styles[id]
	if !ok {
		return nil, notFoundf("map style %d", id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) ListMapStyles(_ context.Context) ([]models.MapStyle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.MapStyle, 0, len(f.styles))
	for _, m := range f.styles {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// vegetation types

func (f *fakeStore) GetVegetationType(_ context.Context, id int64) (*models.VegetationType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vt, ok := f.vegTypes[id]
	if !ok {
		return nil, notFoundf("vegetation type %d", id)
	}
	cp := *vt
	return &cp, nil
}

func (f *fakeStore) GetVegetationTypeBySlug(_ context.Context, slug string) (*models.VegetationType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, vt := range f.vegTypes {
		if vt.Slug == slug {
			cp := *vt
			return &cp, nil
		}
	}
	return nil, notFoundf("vegetation type %q", slug)
}

func (f *fakeStore) ListVegetationTypes(_ context.Context, siteID int64) ([]models.VegetationType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.VegetationType, 0)
	for _, vt := range f.vegTypes {
		if vt.SiteID == siteID {
			out = append(out, *vt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) VegetationTypesOfSpace(_ context.Context, spaceID int64) ([]models.VegetationType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.VegetationType, 0)
	for vtID, ids := range f.vegSpaces {
		for _, id := range ids {
			if id == spaceID {
				out = append(out, *f.vegTypes[vtID])
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SpacesOfVegetationType(ctx context.Context, vegetationTypeID int64) ([]models.ReferenceSpace, error) {
	f.mu.Lock()
	ids := f.vegSpaces[vegetationTypeID]
	f.mu.Unlock()
	if len(ids) == 0 {
		return []models.ReferenceSpace{}, nil
	}
	return f.ListSpaces(ctx, store.SpaceFilter{IDs: ids})
}

// species

func (f *fakeStore) GetOrCreateGenus(_ context.Context, name string) (*models.Genus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.genera[name]; ok {
		return g, nil
	}
	g := &models.Genus{ID: f.id(), Name: name}
	f.genera[name] = g
	return g, nil
}

func (f *fakeStore) GetOrCreateFamily(_ context.Context, name string) (*models.Family, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fam, ok := f.families[name]; ok {
		return fam, nil
	}
	fam := &models.Family{ID: f.id(), Name: name}
	f.families[name] = fam
	return fam, nil
}

func (f *fakeStore) GetSpecies(_ context.Context, id int64) (*models.Species, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.species[id]
	if !ok {
		return nil, notFoundf("species %d", id)
	}
	cp := *sp
	return &cp, nil
}

func (f *fakeStore) GetOrCreateSpecies(_ context.Context, name string, genusID int64) (*models.Species, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sp := range f.species {
		if sp.Name == name {
			cp := *sp
			return &cp, false, nil
		}
	}
	sp := &models.Species{ID: f.id(), Name: name, GenusID: genusID}
	f.species[sp.ID] = sp
	cp := *sp
	return &cp, true, nil
}

func (f *fakeStore) ListSpecies(_ context.Context, flt store.SpeciesFilter) ([]models.Species, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Species, 0)
	for _, sp := range f.species {
		if flt.SiteID != nil {
			linked := false
			for _, site := range f.siteLinks[sp.ID] {
				linked = linked || site == *flt.SiteID
			}
			if !linked {
				continue
			}
		}
		if flt.VegetationTypeID != nil {
			linked := false
			for _, l := range f.vegLinks {
				linked = linked || (l.species == sp.ID && l.vt == *flt.VegetationTypeID)
			}
			if !linked {
				continue
			}
		}
		if flt.GenusID != nil && sp.GenusID != *flt.GenusID {
			continue
		}
		if flt.FamilyID != nil && (sp.FamilyID == nil || *sp.FamilyID != *flt.FamilyID) {
			continue
		}
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) UpdateSpecies(_ context.Context, sp *models.Species) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.species[sp.ID]; !ok {
		return notFoundf("species %d", sp.ID)
	}
	cp := *sp
	f.species[sp.ID] = &cp
	return nil
}

func (f *fakeStore) LinkSpeciesToSite(_ context.Context, speciesID, siteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.siteLinks[speciesID] {
		if s == siteID {
			return nil
		}
	}
	f.siteLinks[speciesID] = append(f.siteLinks[speciesID], siteID)
	return nil
}

func (f *fakeStore) ClearSpeciesListLinks(_ context.Context, fileID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.vegLinks[:0]
	for _, l := range f.vegLinks {
		if l.file == nil || *l.file != fileID {
			kept = append(kept, l)
		}
	}
	f.vegLinks = kept
	return nil
}

func (f *fakeStore) LinkSpeciesToVegetationType(_ context.Context, speciesID, vegetationTypeID int64, fileID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vegLinks = append(f.vegLinks, vegLink{species: speciesID, vt: vegetationTypeID, file: fileID})
	return nil
}

func matchPhoto(p *models.Photo, flt store.PhotoFilter) bool {
	if flt.SpeciesID != nil && (p.SpeciesID == nil || *p.SpeciesID != *flt.SpeciesID) {
		return false
	}
	if flt.GardenID != nil && (p.GardenID == nil || *p.GardenID != *flt.GardenID) {
		return false
	}
	return flt.Source == "" || p.Source == flt.Source
}

func (f *fakeStore) ListPhotos(_ context.Context, flt store.PhotoFilter) ([]models.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Photo, 0)
	for _, p := range f.photos {
		if matchPhoto(p, flt) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) CreatePhoto(_ context.Context, p *models.Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id()
	if p.UploadDate.IsZero() {
		p.UploadDate = time.Now()
	}
	cp := *p
	f.photos[p.ID] = &cp
	return nil
}

func (f *fakeStore) DeletePhotos(_ context.Context, flt store.PhotoFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, p := range f.photos {
		if matchPhoto(p, flt) {
			delete(f.photos, id)
			n++
		}
	}
	return n, nil
}

// gardens

func (f *fakeStore) GetGarden(_ context.Context, id int64) (*models.Garden, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gardens[id]
	if !ok {
		return nil, notFoundf("garden %d", id)
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) GetGardenByUUID(_ context.Context, uuid string) (*models.Garden, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.gardens {
		if g.UUID == uuid {
			cp := *g
			return &cp, nil
		}
	}
	return nil, notFoundf("garden %s", uuid)
}

func (f *fakeStore) ListGardens(_ context.Context, flt store.GardenFilter) ([]models.Garden, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Garden, 0)
	for _, g := range f.gardens {
		if flt.SiteID != nil && g.SiteID != *flt.SiteID {
			continue
		}
		if flt.Active != nil && g.IsActive != *flt.Active {
			continue
		}
		if flt.UserCreated != nil && g.IsUserCreated != *flt.UserCreated {
			continue
		}
		if flt.Owner != "" && g.Owner != flt.Owner {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) CreateGarden(_ context.Context, g *models.Garden) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g.ID = f.id()
	g.IsGarden = true
	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt
	cp := *g
	f.gardens[g.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateGarden(_ context.Context, g *models.Garden) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.gardens[g.ID]; !ok {
		return notFoundf("garden %d", g.ID)
	}
	g.UpdatedAt = time.Now()
	cp := *g
	f.gardens[g.ID] = &cp
	return nil
}

func (f *fakeStore) SetGardenActive(_ context.Context, id int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gardens[id]
	if !ok {
		return notFoundf("garden %d", id)
	}
	g.IsActive = active
	return nil
}

func (f *fakeStore) DeleteGarden(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.gardens[id]; !ok {
		return notFoundf("garden %d", id)
	}
	delete(f.gardens, id)
	return nil
}

func (f *fakeStore) SetGardenPages(_ context.Context, gardenID int64, kind models.PageType, pageIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gardenPages[[2]int64{gardenID, int64(kind)}] = append([]int64(nil), pageIDs...)
	return nil
}

func (f *fakeStore) ListGardenPages(_ context.Context, gardenID int64, kind models.PageType) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.gardenPages[[2]int64{gardenID, int64(kind)}]...), nil
}

func (f *fakeStore) AddManager(_ context.Context, gardenID int64, name, address string) (*models.GardenManager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	address = strings.ToLower(strings.TrimSpace(address))
	for _, m := range f.managers {
		if m.GardenID == gardenID && m.Email == address {
			m.Name = name
			cp := *m
			return &cp, nil
		}
	}
	m := &models.GardenManager{ID: f.id(), Name: name, Email: address, GardenID: gardenID, CreatedAt: time.Now()}
	f.managers[m.ID] = m
	cp := *m
	return &cp, nil
}

func (f *fakeStore) SaveManagerToken(_ context.Context, gardenID int64, address, token string, expires time.Time) (*models.GardenManager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	address = strings.ToLower(strings.TrimSpace(address))
	for _, m := range f.managers {
		if m.GardenID == gardenID && m.Email == address {
			m.Token = token
			m.TokenExpirationDate = &expires
			cp := *m
			return &cp, nil
		}
	}
	return nil, notFoundf("manager %s", address)
}

func (f *fakeStore) GetManagerByToken(_ context.Context, gardenUUID, token string) (*models.GardenManager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.managers {
		g, ok := f.gardens[m.GardenID]
		if ok && g.UUID == gardenUUID && m.Token != "" && m.Token == token {
			cp := *m
			return &cp, nil
		}
	}
	return nil, notFoundf("manager token")
}

// pages

func (f *fakeStore) GetPage(_ context.Context, id int64) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return nil, notFoundf("page %d", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetPageBySlug(_ context.Context, slug string, siteID *int64) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var shared *models.Page
	for _, p := range f.pages {
		if p.Slug != slug {
			continue
		}
		if p.SiteID == nil {
			shared = p
			continue
		}
		if siteID != nil && *p.SiteID == *siteID {
			cp := *p
			return &cp, nil
		}
	}
	if shared != nil {
		cp := *shared
		return &cp, nil
	}
	return nil, notFoundf("page %q", slug)
}

func (f *fakeStore) ListPages(_ context.Context, flt store.PageFilter) ([]models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Page, 0)
	for _, p := range f.pages {
		if flt.SiteID != nil && p.SiteID != nil && *p.SiteID != *flt.SiteID {
			continue
		}
		if flt.Type != 0 && p.PageType != flt.Type {
			continue
		}
		if flt.Active != nil && p.IsActive != *flt.Active {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SavePage(_ context.Context, p *models.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		p.ID = f.id()
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	cp := *p
	f.pages[p.ID] = &cp
	return nil
}

// fakeMailer records the mails it was asked to send
type fakeMailer struct {
	mu         sync.Mutex
	newGardens []email.NewGardenMail
	updates    []email.GardenUpdateMail
	links      []email.ManageGardenMail
	recipients []string
	err        error
}

func (m *fakeMailer) SendNewGarden(_ context.Context, _ *models.Site, data email.NewGardenMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newGardens = append(m.newGardens, data)
	return m.err
}

func (m *fakeMailer) SendGardenUpdate(_ context.Context, _ *models.Site, data email.GardenUpdateMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, data)
	return m.err
}

func (m *fakeMailer) SendManageGarden(_ context.Context, manager *models.GardenManager, data email.ManageGardenMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, data)
	m.recipients = append(m.recipients, manager.Email)
	return m.err
}

// fakeINat serves canned taxa
type fakeINat struct {
	byName   map[string]clients.Taxon
	byID     map[int64]clients.Taxon
	err      error
	searches int
}

func (c *fakeINat) Search(_ context.Context, name string) (clients.Taxon, error) {
	c.searches++
	if c.err != nil {
		return nil, c.err
	}
	t, ok := c.byName[name]
	if !ok {
		return nil, clients.ErrNoResults
	}
	return t, nil
}

func (c *fakeINat) Taxon(_ context.Context, id int64) (clients.Taxon, error) {
	if c.err != nil {
		return nil, c.err
	}
	t, ok := c.byID[id]
	if !ok {
		return nil, clients.ErrNoResults
	}
	return t, nil
}

// fakeWiki serves canned summaries by title
type fakeWiki struct {
	summaries map[string]*clients.Summary
	titles    []string
}

func (c *fakeWiki) Summary(_ context.Context, title string) (*clients.Summary, error) {
	c.titles = append(c.titles, title)
	s, ok := c.summaries[title]
	if !ok {
		return nil, clients.ErrPageNotFound
	}
	return s, nil
}

// geometry helpers

// square returns an axis-aligned square polygon with its lower-left corner at x, y
func square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}})
}

func line(coords ...float64) *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, coords)
}

func int64p(v int64) *int64 { return &v }

func float64p(v float64) *float64 { return &v }
