package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/twpayne/go-geom"

	"corridor-platform/internal/models"
)

const spaceColumns = `s.id, s.name, s.description, ST_AsBinary(s.geometry), s.source_id, s.meta_data,
	EXISTS (SELECT 1 FROM gardens g WHERE g.space_id = s.id)`

const insertSpaceSQL = `INSERT INTO reference_spaces (name, description, geometry, source_id, meta_data)
	VALUES ($1, $2, ST_SetSRID(ST_GeomFromWKB($3), 4326), $4, $5) RETURNING id`

// SpaceFilter narrows ListSpaces. Zero values do not filter.
type SpaceFilter struct {
	SourceID *int64
	IDs      []int64
	// Intersects keeps spaces whose geometry intersects this WGS84 geometry
	Intersects geom.T
	// MetaFlag keeps spaces whose meta data has this key set to true
	MetaFlag string
	Names    []string
	Limit    int
}

func scanSpace(row interface{ Scan(...any) error }) (*models.ReferenceSpace, error) {
	var (
		sp     models.ReferenceSpace
		wkb    []byte
		source sql.NullInt64
		meta   []byte
	)
	if err := row.Scan(&sp.ID, &sp.Name, &sp.Description, &wkb, &source, &meta, &sp.IsGarden); err != nil {
		return nil, err
	}
	g, err := scanGeom(wkb)
	if err != nil {
		return nil, err
	}
	sp.Geometry = g
	sp.SourceID = int64Ptr(source)
	if err := scanJSON(meta, &sp.Meta); err != nil {
		return nil, err
	}
	return &sp, nil
}

func spaceWhere(f SpaceFilter) (*where, error) {
	w := &where{}
	if f.SourceID != nil {
		w.add("s.source_id = ?", *f.SourceID)
	}
	if len(f.IDs) > 0 {
		w.add("s.id = ANY(?)", pq.Array(f.IDs))
	}
	if len(f.Names) > 0 {
		w.add("s.name = ANY(?)", pq.Array(f.Names))
	}
	if f.Intersects != nil {
		arg, err := geomArg(f.Intersects)
		if err != nil {
			return nil, err
		}
		w.add("ST_Intersects(s.geometry, ST_SetSRID(ST_GeomFromWKB(?), 4326))", arg)
	}
	if f.MetaFlag != "" {
		w.add("(s.meta_data ->> ?)::boolean IS TRUE", f.MetaFlag)
	}
	return w, nil
}

// ListSpaces returns the spaces matching the filter in id order
func (s *Store) ListSpaces(ctx context.Context, f SpaceFilter) ([]models.ReferenceSpace, error) {
	w, err := spaceWhere(f)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + spaceColumns + ` FROM reference_spaces s` + w.String() + ` ORDER BY s.id`
	if f.Limit > 0 {
		query += ` LIMIT ` + w.next(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error listing spaces: %w", err)
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

// CountSpaces returns how many spaces match the filter
func (s *Store) CountSpaces(ctx context.Context, f SpaceFilter) (int, error) {
	w, err := spaceWhere(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_spaces s`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting spaces: %w", err)
	}
	return n, nil
}

// GetSpace returns the space with the given id
func (s *Store) GetSpace(ctx context.Context, id int64) (*models.ReferenceSpace, error) {
	sp, err := scanSpace(s.db.QueryRowContext(ctx,
		`SELECT `+spaceColumns+` FROM reference_spaces s WHERE s.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("error loading space %d: %w", id, notFound(err))
	}
	return sp, nil
}

// SpaceAt returns the first space of a source whose geometry intersects g
func (s *Store) SpaceAt(ctx context.Context, sourceID int64, g geom.T) (*models.ReferenceSpace, error) {
	spaces, err := s.ListSpaces(ctx, SpaceFilter{SourceID: &sourceID, Intersects: g, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(spaces) == 0 {
		return nil, fmt.Errorf("no space of source %d at this location: %w", sourceID, ErrNotFound)
	}
	return &spaces[0], nil
}

func insertSpace(ctx context.Context, q querier, sp *models.ReferenceSpace) error {
	g, err := geomArg(sp.Geometry)
	if err != nil {
		return err
	}
	meta, err := jsonArg(sp.Meta)
	if err != nil {
		return err
	}
	err = q.QueryRowContext(ctx, insertSpaceSQL, sp.Name, sp.Description, g, nullInt64(sp.SourceID), meta).Scan(&sp.ID)
	if err != nil {
		return fmt.Errorf("error creating space %q: %w", sp.Name, err)
	}
	return nil
}

// CreateSpace inserts a single space
func (s *Store) CreateSpace(ctx context.Context, sp *models.ReferenceSpace) error {
	return insertSpace(ctx, s.db, sp)
}

// ReplaceSpaces deletes every space of a source and inserts the given ones in
// one transaction, so a failed import leaves the previous spaces in place.
func (s *Store) ReplaceSpaces(ctx context.Context, sourceID int64, spaces []models.ReferenceSpace) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reference_spaces WHERE source_id = $1`, sourceID); err != nil {
			return fmt.Errorf("error removing spaces of source %d: %w", sourceID, err)
		}
		for i := range spaces {
			spaces[i].SourceID = &sourceID
			if err := insertSpace(ctx, tx, &spaces[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSpacesBySource removes every space of a source and returns how many went
func (s *Store) DeleteSpacesBySource(ctx context.Context, sourceID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reference_spaces WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("error removing spaces of source %d: %w", sourceID, err)
	}
	return res.RowsAffected()
}

// DeleteSpaces removes the spaces with the given ids
func (s *Store) DeleteSpaces(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM reference_spaces WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("error removing spaces: %w", err)
	}
	return res.RowsAffected()
}

// UpdateSpaceGeometry replaces the geometry of a space
func (s *Store) UpdateSpaceGeometry(ctx context.Context, id int64, g geom.T) error {
	arg, err := geomArg(g)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reference_spaces SET geometry = ST_SetSRID(ST_GeomFromWKB($2), 4326) WHERE id = $1`, id, arg)
	if err != nil {
		return fmt.Errorf("error updating geometry of space %d: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateSpaceMeta replaces the meta data of a space
func (s *Store) UpdateSpaceMeta(ctx context.Context, id int64, meta map[string]any) error {
	arg, err := jsonArg(meta)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE reference_spaces SET meta_data = $2 WHERE id = $1`, id, arg)
	if err != nil {
		return fmt.Errorf("error updating meta data of space %d: %w", id, err)
	}
	return requireRow(res, id)
}

// SourceSizeBytes returns the summed WKB size of all geometries of a source
func (s *Store) SourceSizeBytes(ctx context.Context, sourceID int64) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(octet_length(ST_AsBinary(geometry))), 0) FROM reference_spaces WHERE source_id = $1`,
		sourceID).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("error measuring spaces of source %d: %w", sourceID, err)
	}
	return size, nil
}
