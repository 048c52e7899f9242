package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"corridor-platform/internal/clients"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

func proteaTaxon() clients.Taxon {
	return clients.Taxon{
		"id":                    float64(135283),
		"name":                  "Protea repens",
		"preferred_common_name": "Common Sugarbush",
		"wikipedia_url":         "https://en.wikipedia.org/wiki/Protea_repens",
		"ancestors": []any{
			map[string]any{"rank": "order", "name": "Proteales"},
			map[string]any{"rank": "family", "name": "Proteaceae"},
		},
		"taxon_photos": []any{
			map[string]any{"photo": map[string]any{"id": float64(1), "license_code": "cc-by", "attribution": "(c) Kim"}},
			map[string]any{"photo": map[string]any{"id": float64(2), "license_code": ""}},
			map[string]any{"photo": map[string]any{"id": float64(3), "license_code": "cc0", "attribution": "Lee"}},
		},
	}
}

func newSpeciesFixture(t *testing.T) (*SpeciesService, *fakeStore, *fakeINat, *fakeWiki) {
	t.Helper()
	st := newFakeStore()
	taxon := proteaTaxon()
	inat := &fakeINat{
		byName: map[string]clients.Taxon{"Protea repens": {"id": float64(135283), "wikipedia_url": taxon.WikipediaURL()}},
		byID:   map[int64]clients.Taxon{135283: taxon},
	}
	wiki := &fakeWiki{summaries: map[string]*clients.Summary{
		"Protea_repens": {Title: "Protea repens", Extract: "Protea repens is a shrub."},
	}}
	svc := NewSpeciesService(st, inat, wiki, t.TempDir(), logging.NewDiscardLogger())
	return svc, st, inat, wiki
}

func addSpecies(t *testing.T, st *fakeStore, name string) *models.Species {
	t.Helper()
	genus, err := st.GetOrCreateGenus(context.Background(), "Protea")
	require.NoError(t, err)
	sp, _, err := st.GetOrCreateSpecies(context.Background(), name, genus.ID)
	require.NoError(t, err)
	return sp
}

func TestFetchTaxaSearchesAndLoadsPhotos(t *testing.T) {
	svc, st, inat, _ := newSpeciesFixture(t)
	ctx := context.Background()
	sp := addSpecies(t, st, "Protea repens")

	own := &models.Photo{SpeciesID: &sp.ID, Position: 2, Source: models.PhotoUpload}
	require.NoError(t, st.CreatePhoto(ctx, own))
	stale := &models.Photo{SpeciesID: &sp.ID, Position: 5, Source: models.PhotoINat}
	require.NoError(t, st.CreatePhoto(ctx, stale))
	sp.PhotoID = &stale.ID
	require.NoError(t, st.UpdateSpecies(ctx, sp))

	got, err := svc.FetchTaxa(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, inat.searches)

	assert.Equal(t, int64(135283), got.INatID())
	assert.Equal(t, "Common Sugarbush", got.CommonName)
	assert.ElementsMatch(t, []string{
		"https://www.inaturalist.org/taxa/135283",
		"https://en.wikipedia.org/wiki/Protea_repens",
	}, got.Links)
	require.NotNil(t, got.FamilyID)
	assert.Equal(t, st.families["Proteaceae"].ID, *got.FamilyID)
	assert.Equal(t, true, got.Meta["pics_imported"])

	photos, err := st.ListPhotos(ctx, store.PhotoFilter{SpeciesID: &sp.ID})
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, own.ID, photos[0].ID)
	assert.Equal(t, 3, photos[1].Position)
	assert.Equal(t, "(c) Kim", photos[1].Author)
	assert.Equal(t, "cc-by", photos[1].LicenseCode)
	assert.Equal(t, 4, photos[2].Position)
	require.NotNil(t, got.PhotoID)
	assert.Equal(t, photos[1].ID, *got.PhotoID)

	// a known taxon is not searched again
	_, err = svc.FetchTaxa(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, inat.searches)
}

func TestFetchTaxaRecordsFailure(t *testing.T) {
	svc, st, inat, _ := newSpeciesFixture(t)
	ctx := context.Background()
	sp := addSpecies(t, st, "Protea unknownii")

	_, err := svc.FetchTaxa(ctx, sp.ID)
	var inatErr *INatError
	require.True(t, errors.As(err, &inatErr))
	assert.Equal(t, clients.ErrNoResults.Error(), inatErr.Message)

	stored, err := st.GetSpecies(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, clients.ErrNoResults.Error(), stored.Meta["inat_error"])

	inat.err = &clients.StatusError{Code: 503}
	_, err = svc.FetchTaxa(ctx, sp.ID)
	require.True(t, errors.As(err, &inatErr))
	assert.Equal(t, "Error: 503", inatErr.Message)
}

func TestFetchWikipedia(t *testing.T) {
	svc, st, _, wiki := newSpeciesFixture(t)
	ctx := context.Background()
	sp := addSpecies(t, st, "Protea repens")

	_, err := svc.FetchWikipedia(ctx, sp.ID)
	assert.ErrorIs(t, err, ErrNoWikipedia)

	_, err = svc.FetchTaxa(ctx, sp.ID)
	require.NoError(t, err)

	summary, err := svc.FetchWikipedia(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Protea repens", summary.Title)
	assert.Equal(t, []string{"Protea_repens"}, wiki.titles)

	stored, err := st.GetSpecies(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Protea repens is a shrub.", stored.Summary)
}

func writeSpeciesCSV(t *testing.T, root, name, content string) string {
	t.Helper()
	rel := "documents/" + name
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return rel
}

func TestPreviewAndImportSpeciesList(t *testing.T) {
	st := newFakeStore()
	root := t.TempDir()
	svc := NewSpeciesService(st, &fakeINat{}, &fakeWiki{}, root, logging.NewDiscardLogger())
	ctx := context.Background()
	site := &models.Site{ID: 3}

	addSpecies(t, st, "Protea repens")
	vt := st.addVegetationType(models.VegetationType{Name: "Peninsula Granite Fynbos", Slug: "peninsula-granite-fynbos", SiteID: 3})
	doc := st.addDocument(models.Document{Name: "Fynbos species", DocType: models.DocSpeciesList})
	rel := writeSpeciesCSV(t, root, "fynbos.csv", "Family,Name,Notes\nProteaceae,Protea repens,common\nEricaceae,Erica,genus only\n,,\nEricaceae,Erica cerinthoides,\"fire heath, red\"\n")
	atts, err := st.ReplaceAttachments(ctx, doc.ID, []string{rel})
	require.NoError(t, err)
	fileID := atts[0].ID

	preview, err := svc.PreviewSpeciesList(ctx, doc.ID, fileID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Family", "Name", "Notes"}, preview.Columns)
	require.Len(t, preview.Rows, 3)
	assert.True(t, preview.Rows[0].Exists)
	assert.Equal(t, InvalidSpeciesName, preview.Rows[1].Alert)
	assert.False(t, preview.Rows[2].Exists)
	assert.Equal(t, "fire heath, red", preview.Rows[2].Cells[2])

	res, err := svc.ImportSpeciesList(ctx, site, doc.ID, fileID, vt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Linked)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Skipped)

	linked, err := st.ListSpecies(ctx, store.SpeciesFilter{VegetationTypeID: &vt.ID})
	require.NoError(t, err)
	assert.Len(t, linked, 2)
	onSite, err := svc.List(ctx, site)
	require.NoError(t, err)
	assert.Len(t, onSite, 2)

	// importing again replaces the links of the file
	_, err = svc.ImportSpeciesList(ctx, site, doc.ID, fileID, vt.ID)
	require.NoError(t, err)
	assert.Len(t, st.vegLinks, 2)

	_, err = svc.PreviewSpeciesList(ctx, doc.ID+1, fileID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPreviewSpeciesListXLSX(t *testing.T) {
	st := newFakeStore()
	root := t.TempDir()
	svc := NewSpeciesService(st, &fakeINat{}, &fakeWiki{}, root, logging.NewDiscardLogger())
	ctx := context.Background()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Name", "Habit"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Leucadendron salignum", "shrub"}))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "documents"), 0o755))
	require.NoError(t, f.SaveAs(filepath.Join(root, "documents", "list.xlsx")))
	require.NoError(t, f.Close())

	doc := st.addDocument(models.Document{Name: "Shrubs", DocType: models.DocSpeciesList})
	atts, err := st.ReplaceAttachments(ctx, doc.ID, []string{"documents/list.xlsx"})
	require.NoError(t, err)

	preview, err := svc.PreviewSpeciesList(ctx, doc.ID, atts[0].ID)
	require.NoError(t, err)
	require.Len(t, preview.Rows, 1)
	assert.Equal(t, "Leucadendron salignum", preview.Rows[0].Name)
	assert.Empty(t, preview.Rows[0].Alert)
}

func TestSpeciesListWithoutNameColumn(t *testing.T) {
	st := newFakeStore()
	root := t.TempDir()
	svc := NewSpeciesService(st, &fakeINat{}, &fakeWiki{}, root, logging.NewDiscardLogger())
	ctx := context.Background()

	doc := st.addDocument(models.Document{Name: "Bad list", DocType: models.DocSpeciesList})
	rel := writeSpeciesCSV(t, root, "bad.csv", "Species,Notes\nProtea repens,x\n")
	atts, err := st.ReplaceAttachments(ctx, doc.ID, []string{rel})
	require.NoError(t, err)

	_, err = svc.PreviewSpeciesList(ctx, doc.ID, atts[0].ID)
	assert.ErrorIs(t, err, ErrMissingNameColumn)
}
