package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"corridor-platform/internal/models"
)

const gardenColumns = `s.id, s.name, s.description, ST_AsBinary(s.geometry), s.source_id, s.meta_data,
	g.uuid, g.is_active, g.is_user_created, g.original, g.site_id, g.contact_name, g.contact_phone,
	g.contact_email, g.vegetation_type_id, g.owner,
	g.phase_assessment, g.phase_alienremoval, g.phase_landscaping, g.phase_pioneers,
	g.phase_birdsinsects, g.phase_specialists, g.phase_placemaking,
	g.created_at, g.updated_at`

const gardenFrom = ` FROM gardens g JOIN reference_spaces s ON s.id = g.space_id`

// GardenFilter narrows ListGardens. Zero values do not filter.
type GardenFilter struct {
	SiteID      *int64
	Active      *bool
	UserCreated *bool
	Owner       string
}

func phasePtr(n sql.NullInt16) *models.PhaseStatus {
	if !n.Valid {
		return nil
	}
	p := models.PhaseStatus(n.Int16)
	return &p
}

func phaseArg(p *models.PhaseStatus) any {
	if p == nil {
		return nil
	}
	return int16(*p)
}

func scanGarden(row interface{ Scan(...any) error }) (*models.Garden, error) {
	var (
		g        models.Garden
		wkb      []byte
		source   sql.NullInt64
		meta     []byte
		original []byte
		vegType  sql.NullInt64
		phases   [7]sql.NullInt16
	)
	err := row.Scan(&g.ID, &g.Name, &g.Description, &wkb, &source, &meta,
		&g.UUID, &g.IsActive, &g.IsUserCreated, &original, &g.SiteID, &g.ContactName, &g.ContactPhone,
		&g.ContactEmail, &vegType, &g.Owner,
		&phases[0], &phases[1], &phases[2], &phases[3], &phases[4], &phases[5], &phases[6],
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if g.Geometry, err = scanGeom(wkb); err != nil {
		return nil, err
	}
	g.IsGarden = true
	g.SourceID = int64Ptr(source)
	g.VegetationTypeID = int64Ptr(vegType)
	if err := scanJSON(meta, &g.Meta); err != nil {
		return nil, err
	}
	if err := scanJSON(original, &g.Original); err != nil {
		return nil, err
	}
	g.GardenPhases = models.GardenPhases{
		Assessment:   phasePtr(phases[0]),
		AlienRemoval: phasePtr(phases[1]),
		Landscaping:  phasePtr(phases[2]),
		Pioneers:     phasePtr(phases[3]),
		BirdsInsects: phasePtr(phases[4]),
		Specialists:  phasePtr(phases[5]),
		Placemaking:  phasePtr(phases[6]),
	}
	return &g, nil
}

// GetGarden returns a garden whether or not it is active
func (s *Store) GetGarden(ctx context.Context, id int64) (*models.Garden, error) {
	g, err := scanGarden(s.db.QueryRowContext(ctx, `SELECT `+gardenColumns+gardenFrom+` WHERE g.space_id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("error loading garden %d: %w", id, notFound(err))
	}
	return g, nil
}

// GetGardenByUUID returns the garden with the given public uuid
func (s *Store) GetGardenByUUID(ctx context.Context, uuid string) (*models.Garden, error) {
	g, err := scanGarden(s.db.QueryRowContext(ctx, `SELECT `+gardenColumns+gardenFrom+` WHERE g.uuid::text = $1`, uuid))
	if err != nil {
		return nil, fmt.Errorf("error loading garden %s: %w", uuid, notFound(err))
	}
	return g, nil
}

// ListGardens returns the gardens matching the filter ordered by name
func (s *Store) ListGardens(ctx context.Context, f GardenFilter) ([]models.Garden, error) {
	var w where
	if f.SiteID != nil {
		w.add("g.site_id = ?", *f.SiteID)
	}
	if f.Active != nil {
		w.add("g.is_active = ?", *f.Active)
	}
	if f.UserCreated != nil {
		w.add("g.is_user_created = ?", *f.UserCreated)
	}
	if f.Owner != "" {
		w.add("g.owner = ?", f.Owner)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+gardenColumns+gardenFrom+w.String()+` ORDER BY s.name`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error listing gardens: %w", err)
	}
	defer rows.Close()

	gardens := make([]models.Garden, 0)
	for rows.Next() {
		g, err := scanGarden(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning garden: %w", err)
		}
		gardens = append(gardens, *g)
	}
	return gardens, rows.Err()
}

// CreateGarden inserts the garden's space and garden row together
func (s *Store) CreateGarden(ctx context.Context, g *models.Garden) error {
	original, err := jsonArg(g.Original)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertSpace(ctx, tx, &g.ReferenceSpace); err != nil {
			return err
		}
		g.IsGarden = true
		err := tx.QueryRowContext(ctx, `INSERT INTO gardens
			(space_id, uuid, is_active, is_user_created, original, site_id, contact_name, contact_phone,
			 contact_email, vegetation_type_id, owner,
			 phase_assessment, phase_alienremoval, phase_landscaping, phase_pioneers,
			 phase_birdsinsects, phase_specialists, phase_placemaking)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING created_at, updated_at`,
			g.ID, g.UUID, g.IsActive, g.IsUserCreated, original, g.SiteID, g.ContactName, g.ContactPhone,
			g.ContactEmail, nullInt64(g.VegetationTypeID), g.Owner,
			phaseArg(g.Assessment), phaseArg(g.AlienRemoval), phaseArg(g.Landscaping), phaseArg(g.Pioneers),
			phaseArg(g.BirdsInsects), phaseArg(g.Specialists), phaseArg(g.Placemaking)).
			Scan(&g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error creating garden: %w", err)
		}
		return nil
	})
}

// UpdateGarden saves every editable field of a garden and its space
func (s *Store) UpdateGarden(ctx context.Context, g *models.Garden) error {
	geomData, err := geomArg(g.Geometry)
	if err != nil {
		return err
	}
	meta, err := jsonArg(g.Meta)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE reference_spaces SET
			name = $2, description = $3, geometry = ST_SetSRID(ST_GeomFromWKB($4), 4326), meta_data = $5
			WHERE id = $1`, g.ID, g.Name, g.Description, geomData, meta)
		if err != nil {
			return fmt.Errorf("error updating garden %d: %w", g.ID, err)
		}
		if err := requireRow(res, g.ID); err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `UPDATE gardens SET
			is_active = $2, contact_name = $3, contact_phone = $4, contact_email = $5, vegetation_type_id = $6,
			phase_assessment = $7, phase_alienremoval = $8, phase_landscaping = $9, phase_pioneers = $10,
			phase_birdsinsects = $11, phase_specialists = $12, phase_placemaking = $13, updated_at = NOW()
			WHERE space_id = $1 RETURNING updated_at`,
			g.ID, g.IsActive, g.ContactName, g.ContactPhone, g.ContactEmail, nullInt64(g.VegetationTypeID),
			phaseArg(g.Assessment), phaseArg(g.AlienRemoval), phaseArg(g.Landscaping), phaseArg(g.Pioneers),
			phaseArg(g.BirdsInsects), phaseArg(g.Specialists), phaseArg(g.Placemaking)).
			Scan(&g.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error updating garden %d: %w", g.ID, notFound(err))
		}
		return nil
	})
}

// SetGardenActive publishes or hides a garden
func (s *Store) SetGardenActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gardens SET is_active = $2, updated_at = NOW() WHERE space_id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("error updating garden %d: %w", id, err)
	}
	return requireRow(res, id)
}

// DeleteGarden removes a garden together with its space, managers and photos
func (s *Store) DeleteGarden(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reference_spaces WHERE id = $1 AND EXISTS (SELECT 1 FROM gardens WHERE space_id = $1)`, id)
	if err != nil {
		return fmt.Errorf("error deleting garden %d: %w", id, err)
	}
	return requireRow(res, id)
}

// SetGardenPages replaces the target or site feature pages linked to a garden
func (s *Store) SetGardenPages(ctx context.Context, gardenID int64, kind models.PageType, pageIDs []int64) error {
	table := "garden_targets"
	if kind == models.PageFeatures {
		table = "garden_site_features"
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE garden_id = $1`, gardenID); err != nil {
			return fmt.Errorf("error clearing %s: %w", table, err)
		}
		if len(pageIDs) == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (garden_id, page_id)
			SELECT $1, id FROM pages WHERE id = ANY($2) AND page_type = $3`,
			gardenID, pq.Array(pageIDs), int(kind))
		if err != nil {
			return fmt.Errorf("error linking %s: %w", table, err)
		}
		return nil
	})
}

// ListGardenPages returns the ids of the target or site feature pages of a garden
func (s *Store) ListGardenPages(ctx context.Context, gardenID int64, kind models.PageType) ([]int64, error) {
	table := "garden_targets"
	if kind == models.PageFeatures {
		table = "garden_site_features"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT page_id FROM `+table+` WHERE garden_id = $1 ORDER BY page_id`, gardenID)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", table, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const managerColumns = `id, name, email, garden_id, created_at, COALESCE(token, ''), token_expiration_date`

func scanManager(row interface{ Scan(...any) error }) (*models.GardenManager, error) {
	var (
		m       models.GardenManager
		expires sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.GardenID, &m.CreatedAt, &m.Token, &expires); err != nil {
		return nil, err
	}
	m.TokenExpirationDate = timePtr(expires)
	return &m, nil
}

// AddManager registers an e-mail address as manager of a garden
func (s *Store) AddManager(ctx context.Context, gardenID int64, name, email string) (*models.GardenManager, error) {
	m, err := scanManager(s.db.QueryRowContext(ctx, `INSERT INTO garden_managers (name, email, garden_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (garden_id, email) DO UPDATE SET name = EXCLUDED.name
		RETURNING `+managerColumns,
		name, strings.ToLower(strings.TrimSpace(email)), gardenID))
	if err != nil {
		return nil, fmt.Errorf("error saving garden manager: %w", err)
	}
	return m, nil
}

// SaveManagerToken gives an existing manager of a garden a new access token.
// It returns ErrNotFound when the address does not manage the garden.
func (s *Store) SaveManagerToken(ctx context.Context, gardenID int64, email, token string, expires time.Time) (*models.GardenManager, error) {
	m, err := scanManager(s.db.QueryRowContext(ctx, `UPDATE garden_managers
		SET token = $3, token_expiration_date = $4
		WHERE garden_id = $2 AND email = $1
		RETURNING `+managerColumns,
		strings.ToLower(strings.TrimSpace(email)), gardenID, token, expires))
	if err != nil {
		return nil, fmt.Errorf("error saving garden manager token: %w", notFound(err))
	}
	return m, nil
}

// GetManagerByToken returns the manager holding token for the garden with the given uuid
func (s *Store) GetManagerByToken(ctx context.Context, gardenUUID, token string) (*models.GardenManager, error) {
	m, err := scanManager(s.db.QueryRowContext(ctx, `SELECT `+managerColumns+` FROM garden_managers
		WHERE token = $2 AND garden_id = (SELECT space_id FROM gardens WHERE uuid::text = $1)`, gardenUUID, token))
	if err != nil {
		return nil, fmt.Errorf("error loading garden manager: %w", notFound(err))
	}
	return m, nil
}
