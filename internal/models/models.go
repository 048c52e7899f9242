package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Site is one public website served by the platform
type Site struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	URL                string `json:"url"`
	Email              string `json:"email,omitempty"`
	CorridorID         *int64 `json:"corridor_id,omitempty"`
	VegetationTypesMap *int64 `json:"vegetation_types_map,omitempty"`
}

// PageFormat controls how page content is rendered to HTML
type PageFormat string

const (
	FormatHTML         PageFormat = "HTML"
	FormatMarkdown     PageFormat = "MARK"
	FormatMarkdownHTML PageFormat = "MARK_HTML"
)

// Valid reports whether f is a known format
func (f PageFormat) Valid() bool {
	return f == FormatHTML || f == FormatMarkdown || f == FormatMarkdownHTML
}

// PageType distinguishes regular pages from blog posts and other listings
type PageType int

const (
	PageRegular  PageType = 1
	PageBlog     PageType = 2
	PageEvent    PageType = 3
	PageTarget   PageType = 4
	PageFeatures PageType = 5
)

// Page is a CMS page
type Page struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Content     string     `json:"content,omitempty"`
	ContentHTML string     `json:"content_html,omitempty"`
	Position    int        `json:"position"`
	Slug        string     `json:"slug"`
	SiteID      *int64     `json:"site_id,omitempty"`
	IsActive    bool       `json:"is_active"`
	Date        *time.Time `json:"date,omitempty"`
	PageType    PageType   `json:"page_type"`
	Format      PageFormat `json:"format"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// URL returns the public path of the page
func (p *Page) URL() string {
	if p.PageType == PageBlog {
		return "/blog/" + p.Slug
	}
	return "/about/" + p.Slug
}

// Organization is a partner organisation
type Organization struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	SiteID      int64  `json:"site_id"`
}

// Attachment is a file uploaded to a document
type Attachment struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	File       string `json:"file"`
}

// Name returns the file's base name
func (a *Attachment) Name() string {
	return path.Base(a.File)
}

// Extension returns the part after the last dot of the file name
func (a *Attachment) Extension() string {
	parts := strings.Split(a.File, ".")
	return parts[len(parts)-1]
}

// Icon returns the icon name shown next to the attachment
func (a *Attachment) Icon() string {
	switch {
	case strings.HasSuffix(a.File, ".dbf"):
		return "file-excel"
	case strings.HasSuffix(a.File, ".shp"):
		return "layer-group"
	case strings.HasSuffix(a.File, ".prj"):
		return "globe"
	case strings.HasSuffix(a.File, "."):
		return "database"
	default:
		return "file"
	}
}

// MapStyle is a base tile layer configuration
type MapStyle struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TileLayer   string `json:"tilelayer"`
	Attribution string `json:"attribution"`
	Style       string `json:"style"`
}

// ResolvedTileLayer returns the tile layer URL with the Mapbox key filled in
func (m *MapStyle) ResolvedTileLayer(apiKey string) string {
	return strings.ReplaceAll(m.TileLayer, "__MAPBOX_API_KEY__", apiKey)
}

// LogAction is the kind of change recorded in the audit log
type LogAction int

const (
	LogCreate LogAction = 1
	LogUpdate LogAction = 2
	LogDelete LogAction = 3
)

// String returns the label of the action
func (a LogAction) String() string {
	switch a {
	case LogCreate:
		return "Create"
	case LogUpdate:
		return "Update"
	case LogDelete:
		return "Delete"
	default:
		return fmt.Sprintf("LogAction(%d)", int(a))
	}
}

// LogEntry is an append-only audit record
type LogEntry struct {
	ID      int64     `json:"id"`
	Action  LogAction `json:"action"`
	Name    string    `json:"name"`
	URL     string    `json:"url,omitempty"`
	Details string    `json:"details,omitempty"`
	User    string    `json:"user,omitempty"`
	Date    time.Time `json:"date"`
}

// NewsletterSubscription is a newsletter sign-up
type NewsletterSubscription struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}
