package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

var (
	markdown     = goldmark.New()
	markdownHTML = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	sanitizer    = bluemonday.UGCPolicy()
)

// RenderContent turns page content into HTML according to its format.
// HTML content and markdown with raw HTML are sanitised.
func RenderContent(format models.PageFormat, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	switch format {
	case models.FormatHTML:
		return sanitizer.Sanitize(content), nil
	case models.FormatMarkdownHTML:
		if err := markdownHTML.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("error rendering markdown: %w", err)
		}
		return sanitizer.Sanitize(buf.String()), nil
	case models.FormatMarkdown:
		if err := markdown.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("error rendering markdown: %w", err)
		}
		return buf.String(), nil
	default:
		return "", invalid("format", "unknown page format %q", format)
	}
}

// PageForm is the control panel page form
type PageForm struct {
	Name     string
	Content  string
	Slug     string
	Type     models.PageType
	Format   models.PageFormat
	IsActive bool
	Position int
	Date     *time.Time
}

// PageService manages CMS pages
type PageService struct {
	store  PageStore
	logger logging.Logger
}

// NewPageService creates a new PageService instance
func NewPageService(st PageStore, logger logging.Logger) *PageService {
	return &PageService{store: st, logger: logger}
}

// Get returns the page with the given slug. Unpublished pages are only
// returned to staff, together with a warning.
func (s *PageService) Get(ctx context.Context, site *models.Site, pageSlug string, staff bool) (*models.Page, string, error) {
	var siteID *int64
	if site != nil {
		siteID = &site.ID
	}
	p, err := s.store.GetPageBySlug(ctx, pageSlug, siteID)
	if err != nil {
		return nil, "", err
	}
	if p.IsActive {
		return p, "", nil
	}
	if !staff {
		return nil, "", fmt.Errorf("page %q: %w", pageSlug, store.ErrNotFound)
	}
	return p, ErrPageNotPublished.Error(), nil
}

// List returns the pages of a site, optionally of one type
func (s *PageService) List(ctx context.Context, site *models.Site, kind models.PageType, activeOnly bool) ([]models.Page, error) {
	f := store.PageFilter{SiteID: &site.ID, Type: kind}
	if activeOnly {
		yes := true
		f.Active = &yes
	}
	return s.store.ListPages(ctx, f)
}

// Save creates or updates a page. id 0 creates one. The HTML is rendered
// from the content and a missing slug is derived from the name.
func (s *PageService) Save(ctx context.Context, site *models.Site, id int64, form PageForm, user string) (*models.Page, error) {
	form.Name = strings.TrimSpace(form.Name)
	if form.Name == "" {
		return nil, invalid("name", "This field is required.")
	}
	if form.Format == "" {
		form.Format = models.FormatHTML
	}
	if !form.Format.Valid() {
		return nil, invalid("format", "unknown page format %q", form.Format)
	}

	p := &models.Page{}
	action := models.LogCreate
	if id != 0 {
		var err error
		if p, err = s.store.GetPage(ctx, id); err != nil {
			return nil, err
		}
		action = models.LogUpdate
	} else {
		if form.Type < models.PageRegular || form.Type > models.PageFeatures {
			return nil, invalid("type", "unknown page type %d", int(form.Type))
		}
		p.PageType = form.Type
	}

	p.Name = form.Name
	p.Content = form.Content
	p.Format = form.Format
	p.IsActive = form.IsActive
	p.Position = form.Position
	p.Slug = strings.TrimSpace(form.Slug)
	if p.Slug == "" {
		p.Slug = slug.Make(p.Name)
	}
	if form.Date != nil {
		p.Date = form.Date
	}
	if site != nil {
		p.SiteID = &site.ID
	}

	html, err := RenderContent(p.Format, p.Content)
	if err != nil {
		return nil, err
	}
	p.ContentHTML = html

	if err := s.store.SavePage(ctx, p); err != nil {
		return nil, err
	}
	if err := s.store.AddLog(ctx, &models.LogEntry{
		Action: action,
		Name:   "Page: " + p.Name,
		URL:    p.URL(),
		User:   user,
	}); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Warn("Failed to write log entry")
	}
	return p, nil
}
