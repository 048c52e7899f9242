package store

import (
	"context"
	"database/sql"
	"fmt"

	"corridor-platform/internal/models"
)

const pageColumns = `id, name, content, content_html, position, slug, site_id, is_active, date, page_type, format,
	created_at, updated_at`

// PageFilter narrows ListPages. Zero values do not filter.
type PageFilter struct {
	SiteID *int64
	Type   models.PageType
	Active *bool
}

func scanPage(row interface{ Scan(...any) error }) (*models.Page, error) {
	var (
		p        models.Page
		siteID   sql.NullInt64
		date     sql.NullTime
		pageType int
		format   string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Content, &p.ContentHTML, &p.Position, &p.Slug, &siteID, &p.IsActive,
		&date, &pageType, &format, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.SiteID = int64Ptr(siteID)
	p.Date = timePtr(date)
	p.PageType = models.PageType(pageType)
	p.Format = models.PageFormat(format)
	return &p, nil
}

// GetPage returns a page by id
func (s *Store) GetPage(ctx context.Context, id int64) (*models.Page, error) {
	p, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("error loading page %d: %w", id, notFound(err))
	}
	return p, nil
}

// GetPageBySlug returns the page with the given slug, preferring one that
// belongs to the site over a shared one
func (s *Store) GetPageBySlug(ctx context.Context, slug string, siteID *int64) (*models.Page, error) {
	p, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages
		WHERE slug = $1 AND (site_id = $2 OR site_id IS NULL)
		ORDER BY site_id NULLS LAST, id LIMIT 1`, slug, nullInt64(siteID)))
	if err != nil {
		return nil, fmt.Errorf("error loading page %q: %w", slug, notFound(err))
	}
	return p, nil
}

// ListPages returns pages matching the filter by position, then newest first
func (s *Store) ListPages(ctx context.Context, f PageFilter) ([]models.Page, error) {
	var w where
	if f.SiteID != nil {
		w.add("(site_id = ? OR site_id IS NULL)", *f.SiteID)
	}
	if f.Type != 0 {
		w.add("page_type = ?", int(f.Type))
	}
	if f.Active != nil {
		w.add("is_active = ?", *f.Active)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages`+w.String()+` ORDER BY position, date DESC NULLS LAST, name`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error listing pages: %w", err)
	}
	defer rows.Close()

	pages := make([]models.Page, 0)
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning page: %w", err)
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

// SavePage inserts the page when it has no id yet, otherwise updates it
func (s *Store) SavePage(ctx context.Context, p *models.Page) error {
	if p.ID == 0 {
		err := s.db.QueryRowContext(ctx, `INSERT INTO pages
			(name, content, content_html, position, slug, site_id, is_active, date, page_type, format)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at, updated_at`,
			p.Name, p.Content, p.ContentHTML, p.Position, p.Slug, nullInt64(p.SiteID), p.IsActive,
			nullTime(p.Date), int(p.PageType), string(p.Format)).
			Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error creating page: %w", err)
		}
		return nil
	}

	err := s.db.QueryRowContext(ctx, `UPDATE pages SET
		name = $2, content = $3, content_html = $4, position = $5, slug = $6, site_id = $7, is_active = $8,
		date = $9, page_type = $10, format = $11, updated_at = NOW()
		WHERE id = $1 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Content, p.ContentHTML, p.Position, p.Slug, nullInt64(p.SiteID), p.IsActive,
		nullTime(p.Date), int(p.PageType), string(p.Format)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error updating page %d: %w", p.ID, notFound(err))
	}
	return nil
}
