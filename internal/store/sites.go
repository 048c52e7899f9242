package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"corridor-platform/internal/models"
)

const siteColumns = `id, name, url, email, corridor_id, vegetation_types_map`

func scanSite(row interface{ Scan(...any) error }) (*models.Site, error) {
	var (
		site     models.Site
		corridor sql.NullInt64
		vegMap   sql.NullInt64
	)
	if err := row.Scan(&site.ID, &site.Name, &site.URL, &site.Email, &corridor, &vegMap); err != nil {
		return nil, err
	}
	site.CorridorID = int64Ptr(corridor)
	site.VegetationTypesMap = int64Ptr(vegMap)
	return &site, nil
}

// GetSite returns the site with the given id
func (s *Store) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("error loading site %d: %w", id, notFound(err))
	}
	return site, nil
}

// GetSiteByURL returns the site served on the given host
func (s *Store) GetSiteByURL(ctx context.Context, host string) (*models.Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE url = $1`, strings.ToLower(host)))
	if err != nil {
		return nil, fmt.Errorf("error loading site for %s: %w", host, notFound(err))
	}
	return site, nil
}

// ListOrganizations returns the partner organisations of a site
func (s *Store) ListOrganizations(ctx context.Context, siteID int64) ([]models.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, url, site_id FROM organizations WHERE site_id = $1 ORDER BY name`, siteID)
	if err != nil {
		return nil, fmt.Errorf("error listing organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]models.Organization, 0)
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Description, &o.URL, &o.SiteID); err != nil {
			return nil, fmt.Errorf("error scanning organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// GetMapStyle returns a base map style
func (s *Store) GetMapStyle(ctx context.Context, id int64) (*models.MapStyle, error) {
	var m models.MapStyle
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tilelayer, attribution, style FROM map_styles WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.TileLayer, &m.Attribution, &m.Style)
	if err != nil {
		return nil, fmt.Errorf("error loading map style %d: %w", id, notFound(err))
	}
	return &m, nil
}

// ListMapStyles returns every map style
func (s *Store) ListMapStyles(ctx context.Context) ([]models.MapStyle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, tilelayer, attribution, style FROM map_styles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error listing map styles: %w", err)
	}
	defer rows.Close()

	styles := make([]models.MapStyle, 0)
	for rows.Next() {
		var m models.MapStyle
		if err := rows.Scan(&m.ID, &m.Name, &m.TileLayer, &m.Attribution, &m.Style); err != nil {
			return nil, fmt.Errorf("error scanning map style: %w", err)
		}
		styles = append(styles, m)
	}
	return styles, rows.Err()
}

// AddLog appends an audit log entry
func (s *Store) AddLog(ctx context.Context, entry *models.LogEntry) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO logs (action, name, url, details, username) VALUES ($1, $2, $3, $4, $5) RETURNING id, date`,
		int(entry.Action), entry.Name, entry.URL, entry.Details, entry.User).
		Scan(&entry.ID, &entry.Date)
	if err != nil {
		return fmt.Errorf("error writing log entry: %w", err)
	}
	return nil
}

// ListLogs returns the most recent log entries
func (s *Store) ListLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, name, url, details, username, date FROM logs ORDER BY date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0)
	for rows.Next() {
		var (
			e      models.LogEntry
			action int
		)
		if err := rows.Scan(&e.ID, &action, &e.Name, &e.URL, &e.Details, &e.User, &e.Date); err != nil {
			return nil, fmt.Errorf("error scanning log entry: %w", err)
		}
		e.Action = models.LogAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Subscribe records a newsletter subscription; subscribing twice is a no-op
func (s *Store) Subscribe(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO newsletter_subscriptions (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("error saving subscription: %w", err)
	}
	return nil
}
