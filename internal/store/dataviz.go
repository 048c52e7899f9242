package store

import (
	"context"
	"database/sql"
	"fmt"

	"corridor-platform/internal/models"
)

func intPtr(n sql.NullInt32) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// GetDataviz returns the visual configuration a site uses for a shapefile
func (s *Store) GetDataviz(ctx context.Context, siteID, shapefileID int64) (*models.Dataviz, error) {
	var (
		d        models.Dataviz
		mapStyle sql.NullInt64
		colors   []byte
		opacity  sql.NullInt32
		fill     sql.NullInt32
		width    sql.NullInt32
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, site_id, shapefile_id, mapstyle_id, colors, opacity, fill_opacity, line_width
		FROM datavizes WHERE site_id = $1 AND shapefile_id = $2`, siteID, shapefileID).
		Scan(&d.ID, &d.SiteID, &d.ShapefileID, &mapStyle, &colors, &opacity, &fill, &width)
	if err != nil {
		return nil, fmt.Errorf("error loading dataviz of shapefile %d: %w", shapefileID, notFound(err))
	}
	d.MapStyleID = int64Ptr(mapStyle)
	d.Opacity = intPtr(opacity)
	d.FillOpacity = intPtr(fill)
	d.LineWidth = intPtr(width)
	if len(colors) > 0 && string(colors) != "null" {
		d.Colors = &models.DatavizColors{}
		if err := scanJSON(colors, d.Colors); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// SaveDataviz creates or replaces the configuration of a site and shapefile pair
func (s *Store) SaveDataviz(ctx context.Context, d *models.Dataviz) error {
	var colors any
	if d.Colors != nil {
		var err error
		if colors, err = jsonArg(d.Colors); err != nil {
			return err
		}
	}
	err := s.db.QueryRowContext(ctx, `INSERT INTO datavizes
		(site_id, shapefile_id, mapstyle_id, colors, opacity, fill_opacity, line_width)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (site_id, shapefile_id) DO UPDATE SET
			mapstyle_id = EXCLUDED.mapstyle_id, colors = EXCLUDED.colors, opacity = EXCLUDED.opacity,
			fill_opacity = EXCLUDED.fill_opacity, line_width = EXCLUDED.line_width
		RETURNING id`,
		d.SiteID, d.ShapefileID, nullInt64(d.MapStyleID), colors,
		nullInt(d.Opacity), nullInt(d.FillOpacity), nullInt(d.LineWidth)).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("error saving dataviz of shapefile %d: %w", d.ShapefileID, err)
	}
	return nil
}
