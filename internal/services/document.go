package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// DocumentForm holds the editable fields of a plain document
type DocumentForm struct {
	Name        string
	Author      string
	URL         string
	DocType     models.DocType
	Description string
	IsActive    bool
}

// DocumentDetail is a document with its files
type DocumentDetail struct {
	Document    *models.Document    `json:"info"`
	Attachments []models.Attachment `json:"attachments"`
}

// DocumentService manages the non-shapefile documents of the control panel
type DocumentService struct {
	store     DocumentLogStore
	mediaRoot string
	logger    logging.Logger
}

// DocumentLogStore is what the document service needs
type DocumentLogStore interface {
	DocumentStore
	LogStore
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(st DocumentLogStore, mediaRoot string, logger logging.Logger) *DocumentService {
	return &DocumentService{store: st, mediaRoot: mediaRoot, logger: logger}
}

// List returns the site's documents that are not shapefiles, optionally of one type
func (s *DocumentService) List(ctx context.Context, site *models.Site, docType models.DocType) ([]models.Document, error) {
	no := false
	f := store.DocumentFilter{SiteID: &site.ID, Shapefile: &no}
	if docType != "" {
		f.Types = []models.DocType{docType}
	}
	return s.store.ListDocuments(ctx, f)
}

// Detail returns a document with its files
func (s *DocumentService) Detail(ctx context.Context, id int64) (*DocumentDetail, error) {
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{Document: d, Attachments: attachments}, nil
}

// Save creates or updates a document. id 0 creates one. Uploaded files
// replace the current attachments.
func (s *DocumentService) Save(ctx context.Context, site *models.Site, id int64, form DocumentForm, uploads []Upload, user string) (*models.Document, error) {
	if strings.TrimSpace(form.Name) == "" {
		return nil, invalid("name", "This field is required.")
	}
	if !form.DocType.Valid() {
		return nil, invalid("doc_type", "Select a valid choice. %s is not one of the available choices.", form.DocType)
	}

	d := &models.Document{}
	action := models.LogCreate
	if id != 0 {
		existing, err := s.store.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing.IsShapefile {
			return nil, invalid("id", "document %d is a shapefile", id)
		}
		d = existing
		action = models.LogUpdate
	}

	d.Name = strings.TrimSpace(form.Name)
	d.Author = form.Author
	d.URL = form.URL
	d.DocType = form.DocType
	d.Description = form.Description
	d.IsActive = form.IsActive
	d.IsShapefile = false
	d.SiteID = &site.ID

	if err := s.store.SaveDocument(ctx, d); err != nil {
		return nil, err
	}
	if err := s.store.AddLog(ctx, &models.LogEntry{
		Action: action,
		Name:   "Document: " + d.Name,
		URL:    fmt.Sprintf("/controlpanel/documents/%d", d.ID),
		User:   user,
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to write log entry")
	}

	if len(uploads) > 0 {
		rel := filepath.Join("documents", strconv.FormatInt(d.ID, 10))
		files, err := writeUploads(s.mediaRoot, rel, uploads, false)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.ReplaceAttachments(ctx, d.ID, files); err != nil {
			return nil, err
		}
	}
	s.logger.WithFields(logging.Fields{
		"document_id": d.ID,
		"files":       len(uploads),
	}).Info("Document saved")
	return d, nil
}
