package services

import (
	"context"
	"errors"
	"fmt"

	"corridor-platform/internal/clients"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// TaxonClient looks up taxa on iNaturalist
type TaxonClient interface {
	Search(ctx context.Context, name string) (clients.Taxon, error)
	Taxon(ctx context.Context, id int64) (clients.Taxon, error)
}

// SummaryClient fetches Wikipedia article summaries
type SummaryClient interface {
	Summary(ctx context.Context, title string) (*clients.Summary, error)
}

// INatError is an iNaturalist lookup failure. Its message is also saved in
// the species meta data as inat_error.
type INatError struct {
	Message string
}

func (e *INatError) Error() string {
	return e.Message
}

// SpeciesService enriches species from iNaturalist and Wikipedia and imports
// species lists
type SpeciesService struct {
	store     SpeciesStore
	inat      TaxonClient
	wiki      SummaryClient
	mediaRoot string
	logger    logging.Logger
}

// NewSpeciesService creates a new SpeciesService instance
func NewSpeciesService(st SpeciesStore, inat TaxonClient, wiki SummaryClient, mediaRoot string, logger logging.Logger) *SpeciesService {
	return &SpeciesService{
		store:     st,
		inat:      inat,
		wiki:      wiki,
		mediaRoot: mediaRoot,
		logger:    logger,
	}
}

// List returns the species active on a site
func (s *SpeciesService) List(ctx context.Context, site *models.Site) ([]models.Species, error) {
	return s.store.ListSpecies(ctx, store.SpeciesFilter{SiteID: &site.ID})
}

func inatMessage(err error) string {
	var status *clients.StatusError
	switch {
	case errors.Is(err, clients.ErrNoResults):
		return clients.ErrNoResults.Error()
	case errors.As(err, &status):
		return status.Error()
	default:
		return fmt.Sprintf("An error occurred: %v", err)
	}
}

// failTaxa records an iNaturalist failure on the species
func (s *SpeciesService) failTaxa(ctx context.Context, sp *models.Species, cause error) error {
	msg := inatMessage(cause)
	sp.Meta["inat_error"] = msg
	if err := s.store.UpdateSpecies(ctx, sp); err != nil {
		return err
	}
	return &INatError{Message: msg}
}

// FetchTaxa loads the iNaturalist record of a species. Without a known taxon
// the species name is searched first. The family, common name and licensed
// photos are filled in from the record.
func (s *SpeciesService) FetchTaxa(ctx context.Context, id int64) (*models.Species, error) {
	sp, err := s.store.GetSpecies(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Meta == nil {
		sp.Meta = make(map[string]any)
	}

	taxonID := sp.INatID()
	if taxonID == 0 {
		found, err := s.inat.Search(ctx, sp.Name)
		if err != nil {
			return nil, s.failTaxa(ctx, sp, err)
		}
		sp.Meta["inat"] = map[string]any(found)
		delete(sp.Meta, "inat_error")
		taxonID = found.ID()

		if !sp.HasLink("inaturalist") {
			sp.Links = append(sp.Links, clients.TaxonURL(taxonID))
		}
		if wiki := found.WikipediaURL(); wiki != "" && !sp.HasLink("wikipedia.org") {
			sp.Links = append(sp.Links, wiki)
		}
		if err := s.store.UpdateSpecies(ctx, sp); err != nil {
			return nil, err
		}
	}

	taxon, err := s.inat.Taxon(ctx, taxonID)
	if err != nil {
		return nil, s.failTaxa(ctx, sp, err)
	}
	sp.Meta["inat"] = map[string]any(taxon)
	delete(sp.Meta, "inat_error")

	if sp.FamilyID == nil {
		if name := taxon.Family(); name != "" {
			family, err := s.store.GetOrCreateFamily(ctx, name)
			if err != nil {
				return nil, err
			}
			sp.FamilyID = &family.ID
		}
	}
	if sp.CommonName == "" {
		sp.CommonName = taxon.CommonName()
	}

	if err := s.loadPhotos(ctx, sp, taxon); err != nil {
		return nil, err
	}
	return sp, nil
}

// loadPhotos replaces the species' iNaturalist photos with the licensed
// photos of taxon, numbered after the existing photos
func (s *SpeciesService) loadPhotos(ctx context.Context, sp *models.Species, taxon clients.Taxon) error {
	photos, err := s.store.ListPhotos(ctx, store.PhotoFilter{SpeciesID: &sp.ID})
	if err != nil {
		return err
	}
	pos := 0
	for _, p := range photos {
		if sp.PhotoID != nil && p.ID == *sp.PhotoID && p.Source == models.PhotoINat {
			sp.PhotoID = nil
		}
		if p.Source != models.PhotoINat && p.Position > pos {
			pos = p.Position
		}
	}
	if err := s.store.UpdateSpecies(ctx, sp); err != nil {
		return err
	}
	if _, err := s.store.DeletePhotos(ctx, store.PhotoFilter{SpeciesID: &sp.ID, Source: models.PhotoINat}); err != nil {
		return err
	}

	for _, p := range taxon.Photos() {
		pos++
		author, _ := p["attribution"].(string)
		license, _ := p["license_code"].(string)
		photo := &models.Photo{
			Author:      author,
			ImageINat:   p,
			LicenseCode: license,
			SpeciesID:   &sp.ID,
			Position:    pos,
			Source:      models.PhotoINat,
		}
		if err := s.store.CreatePhoto(ctx, photo); err != nil {
			return err
		}
		if sp.PhotoID == nil {
			sp.PhotoID = &photo.ID
		}
	}
	sp.Meta["pics_imported"] = true
	return s.store.UpdateSpecies(ctx, sp)
}

// FetchWikipedia stores the summary of the Wikipedia article linked from the
// species' iNaturalist record
func (s *SpeciesService) FetchWikipedia(ctx context.Context, id int64) (*clients.Summary, error) {
	sp, err := s.store.GetSpecies(ctx, id)
	if err != nil {
		return nil, err
	}
	inat, _ := sp.Meta["inat"].(map[string]any)
	articleURL, _ := inat["wikipedia_url"].(string)
	if articleURL == "" {
		return nil, ErrNoWikipedia
	}

	summary, err := s.wiki.Summary(ctx, clients.TitleFromURL(articleURL))
	if err != nil {
		return nil, err
	}
	if summary.Extract != "" {
		sp.Summary = summary.Extract
		if err := s.store.UpdateSpecies(ctx, sp); err != nil {
			return nil, err
		}
	}
	return summary, nil
}
