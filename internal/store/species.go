package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"corridor-platform/internal/models"
)

const speciesColumns = `sp.id, sp.name, sp.common_name, sp.genus_id, sp.family_id, sp.links, sp.photo_id,
	sp.meta_data, sp.summary_wikipedia`

// SpeciesFilter narrows ListSpecies. Zero values do not filter.
type SpeciesFilter struct {
	SiteID           *int64
	VegetationTypeID *int64
	GenusID          *int64
	FamilyID         *int64
}

func scanSpecies(row interface{ Scan(...any) error }) (*models.Species, error) {
	var (
		sp     models.Species
		family sql.NullInt64
		photo  sql.NullInt64
		links  []byte
		meta   []byte
	)
	err := row.Scan(&sp.ID, &sp.Name, &sp.CommonName, &sp.GenusID, &family, &links, &photo, &meta, &sp.Summary)
	if err != nil {
		return nil, err
	}
	sp.FamilyID = int64Ptr(family)
	sp.PhotoID = int64Ptr(photo)
	if err := scanJSON(links, &sp.Links); err != nil {
		return nil, err
	}
	if err := scanJSON(meta, &sp.Meta); err != nil {
		return nil, err
	}
	return &sp, nil
}

// GetOrCreateGenus returns the genus called name, creating it when missing
func (s *Store) GetOrCreateGenus(ctx context.Context, name string) (*models.Genus, error) {
	g := models.Genus{Name: name}
	err := s.db.QueryRowContext(ctx, `INSERT INTO genus (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, name).Scan(&g.ID)
	if err != nil {
		return nil, fmt.Errorf("error saving genus %q: %w", name, err)
	}
	return &g, nil
}

// GetOrCreateFamily returns the family called name, creating it when missing
func (s *Store) GetOrCreateFamily(ctx context.Context, name string) (*models.Family, error) {
	f := models.Family{Name: name}
	err := s.db.QueryRowContext(ctx, `INSERT INTO family (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, name).Scan(&f.ID)
	if err != nil {
		return nil, fmt.Errorf("error saving family %q: %w", name, err)
	}
	return &f, nil
}

// GetSpecies returns the species with the given id
func (s *Store) GetSpecies(ctx context.Context, id int64) (*models.Species, error) {
	sp, err := scanSpecies(s.db.QueryRowContext(ctx, `SELECT `+speciesColumns+` FROM species sp WHERE sp.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("error loading species %d: %w", id, notFound(err))
	}
	return sp, nil
}

// GetOrCreateSpecies returns the species called name, creating it in the
// given genus when missing. The bool reports whether it was created.
func (s *Store) GetOrCreateSpecies(ctx context.Context, name string, genusID int64) (*models.Species, bool, error) {
	sp, err := scanSpecies(s.db.QueryRowContext(ctx, `SELECT `+speciesColumns+` FROM species sp WHERE sp.name = $1`, name))
	if err == nil {
		return sp, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("error looking up species %q: %w", name, err)
	}

	sp = &models.Species{Name: name, GenusID: genusID, Links: []string{}}
	err = s.db.QueryRowContext(ctx, `INSERT INTO species (name, genus_id) VALUES ($1, $2) RETURNING id`, name, genusID).Scan(&sp.ID)
	if err != nil {
		return nil, false, fmt.Errorf("error creating species %q: %w", name, err)
	}
	return sp, true, nil
}

// ListSpecies returns species matching the filter ordered by name
func (s *Store) ListSpecies(ctx context.Context, f SpeciesFilter) ([]models.Species, error) {
	var w where
	if f.SiteID != nil {
		w.add("EXISTS (SELECT 1 FROM species_sites ss WHERE ss.species_id = sp.id AND ss.site_id = ?)", *f.SiteID)
	}
	if f.VegetationTypeID != nil {
		w.add("EXISTS (SELECT 1 FROM species_vegetation_types sv WHERE sv.species_id = sp.id AND sv.vegetation_type_id = ?)", *f.VegetationTypeID)
	}
	if f.GenusID != nil {
		w.add("sp.genus_id = ?", *f.GenusID)
	}
	if f.FamilyID != nil {
		w.add("sp.family_id = ?", *f.FamilyID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+speciesColumns+` FROM species sp`+w.String()+` ORDER BY sp.name`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error listing species: %w", err)
	}
	defer rows.Close()

	list := make([]models.Species, 0)
	for rows.Next() {
		sp, err := scanSpecies(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning species: %w", err)
		}
		list = append(list, *sp)
	}
	return list, rows.Err()
}

// UpdateSpecies saves the descriptive fields of a species
func (s *Store) UpdateSpecies(ctx context.Context, sp *models.Species) error {
	links := sp.Links
	if links == nil {
		links = []string{}
	}
	linkData, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("error encoding species links: %w", err)
	}
	meta := sp.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("error encoding species meta data: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE species SET
		common_name = $2, family_id = $3, links = $4, photo_id = $5, meta_data = $6, summary_wikipedia = $7
		WHERE id = $1`,
		sp.ID, sp.CommonName, nullInt64(sp.FamilyID), linkData, nullInt64(sp.PhotoID), metaData, sp.Summary)
	if err != nil {
		return fmt.Errorf("error updating species %d: %w", sp.ID, err)
	}
	return requireRow(res, sp.ID)
}

// LinkSpeciesToSite makes a species part of a site's species list
func (s *Store) LinkSpeciesToSite(ctx context.Context, speciesID, siteID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO species_sites (species_id, site_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, speciesID, siteID)
	if err != nil {
		return fmt.Errorf("error linking species %d to site %d: %w", speciesID, siteID, err)
	}
	return nil
}

// ClearSpeciesListLinks removes the links created from one species list file
func (s *Store) ClearSpeciesListLinks(ctx context.Context, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM species_vegetation_type_links WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("error clearing species list links of file %d: %w", fileID, err)
	}
	return nil
}

// LinkSpeciesToVegetationType records that a species list file places a
// species in a vegetation type
func (s *Store) LinkSpeciesToVegetationType(ctx context.Context, speciesID, vegetationTypeID int64, fileID *int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO species_vegetation_types (species_id, vegetation_type_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, speciesID, vegetationTypeID)
		if err != nil {
			return fmt.Errorf("error linking species %d to vegetation type %d: %w", speciesID, vegetationTypeID, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO species_vegetation_type_links (species_id, vegetation_type_id, file_id)
			VALUES ($1, $2, $3)`, speciesID, vegetationTypeID, nullInt64(fileID))
		if err != nil {
			return fmt.Errorf("error recording species list link: %w", err)
		}
		return nil
	})
}

const vegetationTypeColumns = `vt.id, vt.name, vt.description, vt.slug, vt.site_id, vt.meta_data`

func scanVegetationType(row interface{ Scan(...any) error }) (*models.VegetationType, error) {
	var (
		vt   models.VegetationType
		meta []byte
	)
	if err := row.Scan(&vt.ID, &vt.Name, &vt.Description, &vt.Slug, &vt.SiteID, &meta); err != nil {
		return nil, err
	}
	if err := scanJSON(meta, &vt.Meta); err != nil {
		return nil, err
	}
	return &vt, nil
}

func (s *Store) listVegetationTypes(ctx context.Context, query string, args ...any) ([]models.VegetationType, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing vegetation types: %w", err)
	}
	defer rows.Close()

	list := make([]models.VegetationType, 0)
	for rows.Next() {
		vt, err := scanVegetationType(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning vegetation type: %w", err)
		}
		list = append(list, *vt)
	}
	return list, rows.Err()
}

// GetVegetationType returns a vegetation type by id
func (s *Store) GetVegetationType(ctx context.Context, id int64) (*models.VegetationType, error) {
	vt, err := scanVegetationType(s.db.QueryRowContext(ctx,
		`SELECT `+vegetationTypeColumns+` FROM vegetation_types vt WHERE vt.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("error loading vegetation type %d: %w", id, notFound(err))
	}
	return vt, nil
}

// GetVegetationTypeBySlug returns a vegetation type by its slug
func (s *Store) GetVegetationTypeBySlug(ctx context.Context, slug string) (*models.VegetationType, error) {
	vt, err := scanVegetationType(s.db.QueryRowContext(ctx,
		`SELECT `+vegetationTypeColumns+` FROM vegetation_types vt WHERE vt.slug = $1`, slug))
	if err != nil {
		return nil, fmt.Errorf("error loading vegetation type %q: %w", slug, notFound(err))
	}
	return vt, nil
}

// ListVegetationTypes returns the vegetation types of a site
func (s *Store) ListVegetationTypes(ctx context.Context, siteID int64) ([]models.VegetationType, error) {
	return s.listVegetationTypes(ctx,
		`SELECT `+vegetationTypeColumns+` FROM vegetation_types vt WHERE vt.site_id = $1 ORDER BY vt.name`, siteID)
}

// VegetationTypesOfSpace returns the vegetation types mapped to a space
func (s *Store) VegetationTypesOfSpace(ctx context.Context, spaceID int64) ([]models.VegetationType, error) {
	return s.listVegetationTypes(ctx, `SELECT `+vegetationTypeColumns+` FROM vegetation_types vt
		JOIN vegetation_type_spaces vs ON vs.vegetation_type_id = vt.id
		WHERE vs.space_id = $1 ORDER BY vt.id`, spaceID)
}

// SpacesOfVegetationType returns the map spaces of a vegetation type
func (s *Store) SpacesOfVegetationType(ctx context.Context, vegetationTypeID int64) ([]models.ReferenceSpace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+spaceColumns+` FROM reference_spaces s
		JOIN vegetation_type_spaces vs ON vs.space_id = s.id
		WHERE vs.vegetation_type_id = $1 ORDER BY s.id`, vegetationTypeID)
	if err != nil {
		return nil, fmt.Errorf("error listing spaces of vegetation type %d: %w", vegetationTypeID, err)
	}
	defer rows.Close()

	spaces := make([]models.ReferenceSpace, 0)
	for rows.Next() {
		sp, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning space: %w", err)
		}
		spaces = append(spaces, *sp)
	}
	return spaces, rows.Err()
}

// PhotoFilter narrows ListPhotos. Zero values do not filter.
type PhotoFilter struct {
	SpeciesID *int64
	GardenID  *int64
	Source    models.PhotoSource
}

const photoColumns = `id, description, image, image_inat, position, author, species_id, garden_id,
	license_code, source, upload_date`

func scanPhoto(row interface{ Scan(...any) error }) (*models.Photo, error) {
	var (
		p       models.Photo
		inat    []byte
		species sql.NullInt64
		garden  sql.NullInt64
		source  string
	)
	err := row.Scan(&p.ID, &p.Description, &p.Image, &inat, &p.Position, &p.Author, &species, &garden,
		&p.LicenseCode, &source, &p.UploadDate)
	if err != nil {
		return nil, err
	}
	p.SpeciesID = int64Ptr(species)
	p.GardenID = int64Ptr(garden)
	p.Source = models.PhotoSource(source)
	if err := scanJSON(inat, &p.ImageINat); err != nil {
		return nil, err
	}
	return &p, nil
}

func photoWhere(f PhotoFilter) *where {
	w := &where{}
	if f.SpeciesID != nil {
		w.add("species_id = ?", *f.SpeciesID)
	}
	if f.GardenID != nil {
		w.add("garden_id = ?", *f.GardenID)
	}
	if f.Source != "" {
		w.add("source = ?", string(f.Source))
	}
	return w
}

// ListPhotos returns photos matching the filter in position order
func (s *Store) ListPhotos(ctx context.Context, f PhotoFilter) ([]models.Photo, error) {
	w := photoWhere(f)
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos`+w.String()+` ORDER BY position, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error listing photos: %w", err)
	}
	defer rows.Close()

	photos := make([]models.Photo, 0)
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning photo: %w", err)
		}
		photos = append(photos, *p)
	}
	return photos, rows.Err()
}

// CreatePhoto inserts a photo
func (s *Store) CreatePhoto(ctx context.Context, p *models.Photo) error {
	inat, err := jsonArg(p.ImageINat)
	if err != nil {
		return err
	}
	if p.Source == "" {
		p.Source = models.PhotoUpload
	}
	err = s.db.QueryRowContext(ctx, `INSERT INTO photos
		(description, image, image_inat, position, author, species_id, garden_id, license_code, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, upload_date`,
		p.Description, p.Image, inat, p.Position, p.Author, nullInt64(p.SpeciesID), nullInt64(p.GardenID),
		p.LicenseCode, string(p.Source)).Scan(&p.ID, &p.UploadDate)
	if err != nil {
		return fmt.Errorf("error creating photo: %w", err)
	}
	return nil
}

// DeletePhotos removes photos matching the filter and returns how many went
func (s *Store) DeletePhotos(ctx context.Context, f PhotoFilter) (int64, error) {
	w := photoWhere(f)
	if len(w.clauses) == 0 {
		return 0, fmt.Errorf("refusing to delete photos without a filter")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM photos`+w.String(), w.args...)
	if err != nil {
		return 0, fmt.Errorf("error deleting photos: %w", err)
	}
	return res.RowsAffected()
}
