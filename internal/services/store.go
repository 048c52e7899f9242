package services

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"

	"corridor-platform/internal/cache"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// DocumentStore is the document and attachment part of the repository
type DocumentStore interface {
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	ListDocuments(ctx context.Context, f store.DocumentFilter) ([]models.Document, error)
	SaveDocument(ctx context.Context, d *models.Document) error
	UpdateDocumentMeta(ctx context.Context, id int64, meta models.DocumentMeta) error
	GetOrCreateDocument(ctx context.Context, name string, template models.Document) (*models.Document, bool, error)
	ListAttachments(ctx context.Context, documentID int64) ([]models.Attachment, error)
	GetAttachment(ctx context.Context, id int64) (*models.Attachment, error)
	ReplaceAttachments(ctx context.Context, documentID int64, files []string) ([]models.Attachment, error)
}

// SpaceStore is the reference space part of the repository
type SpaceStore interface {
	ListSpaces(ctx context.Context, f store.SpaceFilter) ([]models.ReferenceSpace, error)
	CountSpaces(ctx context.Context, f store.SpaceFilter) (int, error)
	GetSpace(ctx context.Context, id int64) (*models.ReferenceSpace, error)
	SpaceAt(ctx context.Context, sourceID int64, g geom.T) (*models.ReferenceSpace, error)
	CreateSpace(ctx context.Context, sp *models.ReferenceSpace) error
	ReplaceSpaces(ctx context.Context, sourceID int64, spaces []models.ReferenceSpace) error
	DeleteSpacesBySource(ctx context.Context, sourceID int64) (int64, error)
	DeleteSpaces(ctx context.Context, ids []int64) (int64, error)
	UpdateSpaceGeometry(ctx context.Context, id int64, g geom.T) error
	UpdateSpaceMeta(ctx context.Context, id int64, meta map[string]any) error
	SourceSizeBytes(ctx context.Context, sourceID int64) (int64, error)
}

// LogStore appends audit log entries
type LogStore interface {
	AddLog(ctx context.Context, entry *models.LogEntry) error
}

// VegetationStore resolves vegetation types
type VegetationStore interface {
	GetVegetationType(ctx context.Context, id int64) (*models.VegetationType, error)
	GetVegetationTypeBySlug(ctx context.Context, slug string) (*models.VegetationType, error)
	ListVegetationTypes(ctx context.Context, siteID int64) ([]models.VegetationType, error)
	VegetationTypesOfSpace(ctx context.Context, spaceID int64) ([]models.VegetationType, error)
	SpacesOfVegetationType(ctx context.Context, vegetationTypeID int64) ([]models.ReferenceSpace, error)
}

// ShapefileStore is what the shapefile pipeline needs
type ShapefileStore interface {
	DocumentStore
	SpaceStore
	LogStore
	GetDataviz(ctx context.Context, siteID, shapefileID int64) (*models.Dataviz, error)
	SaveDataviz(ctx context.Context, d *models.Dataviz) error
	ListMapStyles(ctx context.Context) ([]models.MapStyle, error)
}

// MapStore is what the map views need
type MapStore interface {
	DocumentStore
	SpaceStore
	VegetationStore
	GetDataviz(ctx context.Context, siteID, shapefileID int64) (*models.Dataviz, error)
	GetMapStyle(ctx context.Context, id int64) (*models.MapStyle, error)
	ListSpecies(ctx context.Context, f store.SpeciesFilter) ([]models.Species, error)
}

// PriorityStore is what the priority map rebuild needs
type PriorityStore interface {
	DocumentStore
	SpaceStore
}

// GardenStore is what the garden workflows need
type GardenStore interface {
	SpaceStore
	VegetationStore
	LogStore
	GetGarden(ctx context.Context, id int64) (*models.Garden, error)
	GetGardenByUUID(ctx context.Context, uuid string) (*models.Garden, error)
	ListGardens(ctx context.Context, f store.GardenFilter) ([]models.Garden, error)
	CreateGarden(ctx context.Context, g *models.Garden) error
	UpdateGarden(ctx context.Context, g *models.Garden) error
	SetGardenActive(ctx context.Context, id int64, active bool) error
	DeleteGarden(ctx context.Context, id int64) error
	SetGardenPages(ctx context.Context, gardenID int64, kind models.PageType, pageIDs []int64) error
	ListGardenPages(ctx context.Context, gardenID int64, kind models.PageType) ([]int64, error)
	ListPages(ctx context.Context, f store.PageFilter) ([]models.Page, error)
	AddManager(ctx context.Context, gardenID int64, name, email string) (*models.GardenManager, error)
	SaveManagerToken(ctx context.Context, gardenID int64, email, token string, expires time.Time) (*models.GardenManager, error)
	GetManagerByToken(ctx context.Context, gardenUUID, token string) (*models.GardenManager, error)
	ListPhotos(ctx context.Context, f store.PhotoFilter) ([]models.Photo, error)
}

// SpeciesStore is what the species workflows need
type SpeciesStore interface {
	GetAttachment(ctx context.Context, id int64) (*models.Attachment, error)
	GetOrCreateGenus(ctx context.Context, name string) (*models.Genus, error)
	GetOrCreateFamily(ctx context.Context, name string) (*models.Family, error)
	GetSpecies(ctx context.Context, id int64) (*models.Species, error)
	GetOrCreateSpecies(ctx context.Context, name string, genusID int64) (*models.Species, bool, error)
	ListSpecies(ctx context.Context, f store.SpeciesFilter) ([]models.Species, error)
	UpdateSpecies(ctx context.Context, sp *models.Species) error
	LinkSpeciesToSite(ctx context.Context, speciesID, siteID int64) error
	ClearSpeciesListLinks(ctx context.Context, fileID int64) error
	LinkSpeciesToVegetationType(ctx context.Context, speciesID, vegetationTypeID int64, fileID *int64) error
	GetVegetationType(ctx context.Context, id int64) (*models.VegetationType, error)
	ListPhotos(ctx context.Context, f store.PhotoFilter) ([]models.Photo, error)
	CreatePhoto(ctx context.Context, p *models.Photo) error
	DeletePhotos(ctx context.Context, f store.PhotoFilter) (int64, error)
}

// PageStore is what the page service needs
type PageStore interface {
	LogStore
	GetPage(ctx context.Context, id int64) (*models.Page, error)
	GetPageBySlug(ctx context.Context, slug string, siteID *int64) (*models.Page, error)
	ListPages(ctx context.Context, f store.PageFilter) ([]models.Page, error)
	SavePage(ctx context.Context, p *models.Page) error
}

// LayerCache caches rendered layers per document
type LayerCache interface {
	Get(ctx context.Context, docID int64, variant string, build cache.Builder) ([]byte, error)
	Invalidate(ctx context.Context, docID int64) error
}
