package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"corridor-platform/internal/models"
)

const documentColumns = `id, name, content, doc_type, author, url, description, color, meta_data,
	is_active, is_shapefile, include_in_site_analysis, site_id, created_at`

// DocumentFilter narrows ListDocuments. Zero values do not filter.
type DocumentFilter struct {
	SiteID *int64
	// WithGlobal also matches documents that belong to no site
	WithGlobal            bool
	Types                 []models.DocType
	Shapefile             *bool
	Active                *bool
	IncludeInSiteAnalysis *bool
}

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d       models.Document
		docType string
		meta    []byte
		siteID  sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.Name, &d.Content, &docType, &d.Author, &d.URL, &d.Description, &d.Color, &meta,
		&d.IsActive, &d.IsShapefile, &d.IncludeInSiteAnalysis, &siteID, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.DocType = models.DocType(docType)
	d.SiteID = int64Ptr(siteID)
	if err := scanJSON(meta, &d.Meta); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocument returns the document with the given id
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("error loading document %d: %w", id, notFound(err))
	}
	return d, nil
}

// ListDocuments returns documents matching the filter, ordered by type then name
func (s *Store) ListDocuments(ctx context.Context, f DocumentFilter) ([]models.Document, error) {
	var w where
	if f.SiteID != nil {
		if f.WithGlobal {
			w.add("(site_id = ? OR site_id IS NULL)", *f.SiteID)
		} else {
			w.add("site_id = ?", *f.SiteID)
		}
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		w.add("doc_type = ANY(?)", pq.Array(types))
	}
	if f.Shapefile != nil {
		w.add("is_shapefile = ?", *f.Shapefile)
	}
	if f.Active != nil {
		w.add("is_active = ?", *f.Active)
	}
	if f.IncludeInSiteAnalysis != nil {
		w.add("include_in_site_analysis = ?", *f.IncludeInSiteAnalysis)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents`+w.String()+` ORDER BY doc_type, name`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// SaveDocument inserts the document when it has no id yet, otherwise updates it
func (s *Store) SaveDocument(ctx context.Context, d *models.Document) error {
	meta, err := json.Marshal(d.Meta)
	if err != nil {
		return fmt.Errorf("error encoding document meta data: %w", err)
	}

	if d.ID == 0 {
		err = s.db.QueryRowContext(ctx, `INSERT INTO documents
			(name, content, doc_type, author, url, description, color, meta_data,
			 is_active, is_shapefile, include_in_site_analysis, site_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at`,
			d.Name, d.Content, string(d.DocType), d.Author, d.URL, d.Description, d.Color, meta,
			d.IsActive, d.IsShapefile, d.IncludeInSiteAnalysis, nullInt64(d.SiteID)).
			Scan(&d.ID, &d.CreatedAt)
		if err != nil {
			return fmt.Errorf("error creating document: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `UPDATE documents SET
		name = $2, content = $3, doc_type = $4, author = $5, url = $6, description = $7, color = $8,
		meta_data = $9, is_active = $10, is_shapefile = $11, include_in_site_analysis = $12, site_id = $13
		WHERE id = $1`,
		d.ID, d.Name, d.Content, string(d.DocType), d.Author, d.URL, d.Description, d.Color, meta,
		d.IsActive, d.IsShapefile, d.IncludeInSiteAnalysis, nullInt64(d.SiteID))
	if err != nil {
		return fmt.Errorf("error updating document %d: %w", d.ID, err)
	}
	return requireRow(res, d.ID)
}

// UpdateDocumentMeta replaces the meta data of a document
func (s *Store) UpdateDocumentMeta(ctx context.Context, id int64, meta models.DocumentMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("error encoding document meta data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET meta_data = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("error updating meta data of document %d: %w", id, err)
	}
	return requireRow(res, id)
}

// GetOrCreateDocument returns the document called name, creating it from
// template when none exists. The bool reports whether it was created.
func (s *Store) GetOrCreateDocument(ctx context.Context, name string, template models.Document) (*models.Document, bool, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE name = $1 ORDER BY id LIMIT 1`, name))
	if err == nil {
		return d, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("error looking up document %q: %w", name, err)
	}

	template.ID = 0
	template.Name = name
	if err := s.SaveDocument(ctx, &template); err != nil {
		return nil, false, err
	}
	return &template, true, nil
}

// DeleteDocument removes a document with its attachments and spaces
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting document %d: %w", id, err)
	}
	return requireRow(res, id)
}

// ListAttachments returns the files of a document in upload order
func (s *Store) ListAttachments(ctx context.Context, documentID int64) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, file FROM attachments WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("error listing attachments: %w", err)
	}
	defer rows.Close()

	files := make([]models.Attachment, 0)
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.File); err != nil {
			return nil, fmt.Errorf("error scanning attachment: %w", err)
		}
		files = append(files, a)
	}
	return files, rows.Err()
}

// GetAttachment returns a single attachment
func (s *Store) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	var a models.Attachment
	err := s.db.QueryRowContext(ctx, `SELECT id, document_id, file FROM attachments WHERE id = $1`, id).
		Scan(&a.ID, &a.DocumentID, &a.File)
	if err != nil {
		return nil, fmt.Errorf("error loading attachment %d: %w", id, notFound(err))
	}
	return &a, nil
}

// ReplaceAttachments swaps the files of a document for the given paths
func (s *Store) ReplaceAttachments(ctx context.Context, documentID int64, files []string) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0, len(files))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("error removing attachments: %w", err)
		}
		for _, f := range files {
			a := models.Attachment{DocumentID: documentID, File: f}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO attachments (document_id, file) VALUES ($1, $2) RETURNING id`, documentID, f).Scan(&a.ID)
			if err != nil {
				return fmt.Errorf("error adding attachment %s: %w", f, err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("row %d: %w", id, ErrNotFound)
	}
	return nil
}
