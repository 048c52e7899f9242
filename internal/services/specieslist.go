package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// nameColumn is the spreadsheet column holding scientific names
const nameColumn = "Name"

// InvalidSpeciesName is the alert shown next to names without genus and species
const InvalidSpeciesName = "Species names must contain genus + species. This row is invalid and will NOT be added."

// SpeciesListRow is one row of an uploaded species list
type SpeciesListRow struct {
	Cells  []string `json:"cells"`
	Name   string   `json:"name"`
	Exists bool     `json:"exists"`
	Alert  string   `json:"alert,omitempty"`
}

// SpeciesListPreview shows which names of a list are already known
type SpeciesListPreview struct {
	Columns []string         `json:"columns"`
	Rows    []SpeciesListRow `json:"rows"`
}

// ImportResult reports what a species list import did
type ImportResult struct {
	Linked  int `json:"linked"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// readTable returns the header and rows of the first sheet of an XLSX file,
// or of a CSV file
func readTable(path string) ([]string, [][]string, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening species list: %w", err)
		}
		defer f.Close()
		r := csv.NewReader(f)
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, nil, fmt.Errorf("error reading species list: %w", err)
			}
			rows = append(rows, rec)
		}
	default:
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening species list: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, ErrMissingNameColumn
		}
		if rows, err = f.GetRows(sheets[0]); err != nil {
			return nil, nil, fmt.Errorf("error reading species list: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, nil, ErrMissingNameColumn
	}
	return rows[0], rows[1:], nil
}

// speciesList is a parsed list with the position of its Name column
type speciesList struct {
	columns []string
	rows    [][]string
	name    int
}

func (l *speciesList) nameOf(row []string) string {
	if l.name >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[l.name])
}

// openSpeciesList reads an attachment of document docID as a species list
func (s *SpeciesService) openSpeciesList(ctx context.Context, docID, fileID int64) (*models.Attachment, *speciesList, error) {
	att, err := s.store.GetAttachment(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if att.DocumentID != docID {
		return nil, nil, fmt.Errorf("file %d of document %d: %w", fileID, docID, store.ErrNotFound)
	}
	columns, rows, err := readTable(filepath.Join(s.mediaRoot, filepath.FromSlash(att.File)))
	if err != nil {
		return nil, nil, err
	}
	list := &speciesList{columns: columns, rows: rows, name: -1}
	for i, c := range columns {
		if strings.TrimSpace(c) == nameColumn {
			list.name = i
			break
		}
	}
	if list.name < 0 {
		return nil, nil, ErrMissingNameColumn
	}
	return att, list, nil
}

// splitName returns the genus of a scientific name, or false when the name
// has fewer than two words
func splitName(name string) (string, bool) {
	words := strings.Fields(name)
	if len(words) < 2 {
		return "", false
	}
	return words[0], true
}

// PreviewSpeciesList marks every name of an uploaded list as known or not and
// flags names that cannot be imported. Rows without a name are skipped.
func (s *SpeciesService) PreviewSpeciesList(ctx context.Context, docID, fileID int64) (*SpeciesListPreview, error) {
	_, list, err := s.openSpeciesList(ctx, docID, fileID)
	if err != nil {
		return nil, err
	}
	known, err := s.store.ListSpecies(ctx, store.SpeciesFilter{})
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(known))
	for _, sp := range known {
		names[sp.Name] = true
	}

	preview := &SpeciesListPreview{Columns: list.columns, Rows: make([]SpeciesListRow, 0, len(list.rows))}
	for _, row := range list.rows {
		name := list.nameOf(row)
		if name == "" {
			continue
		}
		r := SpeciesListRow{Cells: row, Name: name}
		if _, ok := splitName(name); ok {
			r.Exists = names[name]
		} else {
			r.Alert = InvalidSpeciesName
		}
		preview.Rows = append(preview.Rows, r)
	}
	return preview, nil
}

// ImportSpeciesList links every valid name of an uploaded list to a
// vegetation type and a site, creating missing genera and species. Links
// from an earlier import of the same file are removed first.
func (s *SpeciesService) ImportSpeciesList(ctx context.Context, site *models.Site, docID, fileID, vegetationTypeID int64) (*ImportResult, error) {
	att, list, err := s.openSpeciesList(ctx, docID, fileID)
	if err != nil {
		return nil, err
	}
	vt, err := s.store.GetVegetationType(ctx, vegetationTypeID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClearSpeciesListLinks(ctx, att.ID); err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for _, row := range list.rows {
		name := list.nameOf(row)
		genusName, ok := splitName(name)
		if !ok {
			res.Skipped++
			continue
		}
		genus, err := s.store.GetOrCreateGenus(ctx, genusName)
		if err != nil {
			return nil, importError(err)
		}
		sp, created, err := s.store.GetOrCreateSpecies(ctx, name, genus.ID)
		if err != nil {
			return nil, importError(err)
		}
		if created {
			res.Created++
		}
		if err := s.store.LinkSpeciesToVegetationType(ctx, sp.ID, vt.ID, &att.ID); err != nil {
			return nil, importError(err)
		}
		if err := s.store.LinkSpeciesToSite(ctx, sp.ID, site.ID); err != nil {
			return nil, importError(err)
		}
		res.Linked++
	}
	s.logger.WithField("file", att.ID).WithField("linked", res.Linked).Info("Imported species list")
	return res, nil
}

func importError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("There was a problem with this file. Are you sure it is formatted correctly? See below the error: %w", err)
}
