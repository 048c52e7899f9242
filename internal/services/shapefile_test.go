package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"corridor-platform/internal/geo"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/shapefile"
	"corridor-platform/internal/store"
)

const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

type parkRow struct {
	name, zone string
	x, y, size float64
}

var parkRows = []parkRow{
	{"Park", "A", 18.40, -33.95, 0.01},
	{"Park", "B", 18.42, -33.95, 0.01},
	{"Reserve", "C", 18.60, -33.95, 0.01},
}

const utm34sPRJ = `PROJCS["WGS_1984_UTM_Zone_34S",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",10000000.0],PARAMETER["Central_Meridian",21.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

const lo19PRJ = `PROJCS["Hartebeesthoek94_Lo19",GEOGCS["GCS_Hartebeesthoek_1994",DATUM["D_Hartebeesthoek_1994",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",19.0],PARAMETER["Scale_Factor",1.0],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

// box is a clockwise square ring as shapefiles store outer rings
func box(x, y, size float64) shp.Shape {
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring(x, y, size)}))
	return &p
}

func ring(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y}}
}

// boxZ is a square at a constant elevation
func boxZ(x, y, size, z float64) shp.Shape {
	pts := ring(x, y, size)
	zs := make([]float64, len(pts))
	for i := range zs {
		zs[i] = z
	}
	return &shp.PolygonZ{
		Box:       shp.BBoxFromPoints(pts),
		NumParts:  1,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0},
		Points:    pts,
		ZRange:    [2]float64{z, z},
		ZArray:    zs,
		MArray:    make([]float64, len(pts)),
	}
}

// boxM is a square with a measure on each vertex
func boxM(x, y, size float64) shp.Shape {
	pts := ring(x, y, size)
	ms := []float64{0, 1, 2, 3, 4}
	return &shp.PolygonM{
		Box:       shp.BBoxFromPoints(pts),
		NumParts:  1,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0},
		Points:    pts,
		MRange:    [2]float64{0, 4},
		MArray:    ms,
	}
}

type layerRow struct {
	name  string
	shape shp.Shape
}

// writeLayer writes a shapefile with a NAME column and the given projection
func writeLayer(t *testing.T, dir string, shapeType shp.ShapeType, prj string, rows []layerRow) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stem := filepath.Join(dir, "layer")
	w, err := shp.Create(stem+".shp", shapeType)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 40)}))
	for _, r := range rows {
		row := int(w.Write(r.shape))
		require.NoError(t, w.WriteAttribute(row, 0, r.name))
	}
	w.Close()
	require.NoError(t, os.Rename(stem+"dbf", stem+".dbf"))
	require.NoError(t, os.WriteFile(stem+".prj", []byte(prj), 0o644))
	return []string{stem + ".shp", stem + ".shx", stem + ".dbf", stem + ".prj"}
}

// writeParks writes the park shapefile into dir and returns its four files
func writeParks(t *testing.T, dir string) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stem := filepath.Join(dir, "parks")
	w, err := shp.Create(stem+".shp", shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 40), shp.StringField("ZONE", 10)}))
	for _, r := range parkRows {
		row := int(w.Write(box(r.x, r.y, r.size)))
		require.NoError(t, w.WriteAttribute(row, 0, r.name))
		require.NoError(t, w.WriteAttribute(row, 1, r.zone))
	}
	w.Close()
	require.NoError(t, os.Rename(stem+"dbf", stem+".dbf"))
	require.NoError(t, os.WriteFile(stem+".prj", []byte(wgs84PRJ), 0o644))
	return []string{stem + ".shp", stem + ".shx", stem + ".dbf", stem + ".prj"}
}

type observation struct {
	op  string
	err error
}

func newShapefileFixture(t *testing.T) (*ShapefileService, *fakeStore, *recordingCache, string) {
	t.Helper()
	st := newFakeStore()
	c := &recordingCache{}
	root := t.TempDir()
	return NewShapefileService(st, c, root, logging.NewDiscardLogger()), st, c, root
}

// addShapefile creates a shapefile document of site with the files written by write attached
func addShapefile(t *testing.T, st *fakeStore, root string, site *models.Site, name string, write func(dir string) []string) *models.Document {
	t.Helper()
	doc := st.addDocument(models.Document{Name: name, DocType: models.DocSteppingStones, IsShapefile: true, SiteID: &site.ID})
	rel := filepath.Join("files", strconv.FormatInt(doc.ID, 10))
	files := write(filepath.Join(root, rel))
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.ToSlash(filepath.Join(rel, filepath.Base(f)))
	}
	_, err := st.ReplaceAttachments(context.Background(), doc.ID, names)
	require.NoError(t, err)
	return doc
}

// addParks creates a shapefile document of site with the park files attached
func addParks(t *testing.T, st *fakeStore, root string, site *models.Site) *models.Document {
	t.Helper()
	return addShapefile(t, st, root, site, "City parks", func(dir string) []string {
		return writeParks(t, dir)
	})
}

func TestShapefileLoadInfo(t *testing.T) {
	svc, st, _, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addParks(t, st, root, site)

	err := svc.AcceptLargeFile(ctx, site, doc.ID)
	assert.ErrorIs(t, err, ErrNoShapefileInfo)

	info, err := svc.LoadInfo(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, "Polygon", info.Type)
	assert.Equal(t, []string{"NAME", "ZONE"}, info.Fields)

	stored, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Meta.ShapefileInfo)
	assert.Equal(t, 3, stored.Meta.ShapefileInfo.Count)

	require.NoError(t, svc.AcceptLargeFile(ctx, site, doc.ID))
	stored, err = st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, stored.Meta.SkipSizeCheck)

	fields, err := svc.Fields(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"NAME", "ZONE"}, fields)
}

func TestShapefileDocumentAccess(t *testing.T) {
	svc, st, _, root := newShapefileFixture(t)
	ctx := context.Background()
	doc := addParks(t, st, root, &models.Site{ID: 3})
	plain := st.addDocument(models.Document{Name: "Report"})

	_, err := svc.Document(ctx, &models.Site{ID: 4}, doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Document(ctx, nil, plain.ID)
	assert.ErrorIs(t, err, ErrNotShapefile)

	list, err := svc.List(ctx, &models.Site{ID: 3})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, doc.ID, list[0].ID)
}

func TestShapefileClassifyModes(t *testing.T) {
	svc, st, c, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addParks(t, st, root, site)

	var seen []observation
	svc.Observe = func(op string, _ time.Time, err error) {
		seen = append(seen, observation{op: op, err: err})
	}

	res, err := svc.Classify(ctx, site, doc.ID, ClassifyRequest{
		Actions:    map[string]string{"NAME": ColumnPrimary, "ZONE": ColumnImport},
		Processing: ProcessIndividual,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Spaces)
	assert.Empty(t, res.Error)

	spaces := st.spacesOf(doc.ID)
	require.Len(t, spaces, 3)
	assert.Equal(t, "Park", spaces[0].Name)
	assert.Equal(t, map[string]any{"ZONE": "A"}, spaces[0].Meta["features"])
	assert.Equal(t, "Reserve", spaces[2].Name)

	stored, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Meta.Processed)
	assert.Equal(t, "NAME", stored.Meta.Columns.Name)
	assert.Equal(t, []string{"ZONE"}, stored.Meta.Columns.Import)
	assert.NotEmpty(t, stored.Meta.ProcessingDate)

	res, err = svc.Classify(ctx, site, doc.ID, ClassifyRequest{Actions: map[string]string{"NAME": ColumnPrimary}, Processing: ProcessGroup})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Spaces)
	spaces = st.spacesOf(doc.ID)
	require.Len(t, spaces, 2)
	assert.Equal(t, "Park", spaces[0].Name)
	assert.Equal(t, "Reserve", spaces[1].Name)

	res, err = svc.Classify(ctx, site, doc.ID, ClassifyRequest{Processing: ProcessSingle})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Spaces)
	spaces = st.spacesOf(doc.ID)
	require.Len(t, spaces, 1)
	assert.Equal(t, "City parks", spaces[0].Name)

	require.Len(t, seen, 3)
	for _, o := range seen {
		assert.Equal(t, "convert", o.op)
		assert.NoError(t, o.err)
	}
	assert.Len(t, c.invalidated, 3)
}

func TestShapefileConvertStoresPlainWGS84(t *testing.T) {
	utmCorner, err := geo.Transform(geo.Point(18.42, -33.92), geo.SRIDWGS84, 32734)
	require.NoError(t, err)

	cases := []struct {
		name      string
		shapeType shp.ShapeType
		prj       string
		shape     shp.Shape
		lon, lat  float64
		delta     float64
	}{
		{name: "elevation", shapeType: shp.POLYGONZ, prj: wgs84PRJ, shape: boxZ(18.42, -33.92, 0.01, 120), lon: 18.42, lat: -33.92, delta: 1e-9},
		{name: "measures", shapeType: shp.POLYGONM, prj: wgs84PRJ, shape: boxM(18.42, -33.92, 0.01), lon: 18.42, lat: -33.92, delta: 1e-9},
		{name: "utm 34S", shapeType: shp.POLYGON, prj: utm34sPRJ, shape: box(utmCorner.FlatCoords()[0], utmCorner.FlatCoords()[1], 100), lon: 18.42, lat: -33.92, delta: 1e-4},
		// Cape Town city hall on the Lo19 grid
		{name: "lo19", shapeType: shp.POLYGON, prj: lo19PRJ, shape: box(-53633, -3754952, 100), lon: 18.42, lat: -33.92, delta: 1e-3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, st, _, root := newShapefileFixture(t)
			ctx := context.Background()
			site := &models.Site{ID: 3}
			doc := addShapefile(t, st, root, site, "Layer", func(dir string) []string {
				return writeLayer(t, dir, tc.shapeType, tc.prj, []layerRow{{name: "Patch", shape: tc.shape}})
			})

			res, err := svc.Convert(ctx, site, doc.ID)
			require.NoError(t, err)
			require.Empty(t, res.Error)
			assert.Equal(t, 1, res.Spaces)

			spaces := st.spacesOf(doc.ID)
			require.Len(t, spaces, 1)
			g := spaces[0].Geometry
			assert.Equal(t, geom.XY, g.Layout())
			assert.False(t, geo.HasZ(g))
			b := g.Bounds()
			assert.InDelta(t, tc.lon, b.Min(0), tc.delta)
			assert.InDelta(t, tc.lat, b.Min(1), tc.delta)
		})
	}
}

func TestShapefileConvertReportsUnknownProjection(t *testing.T) {
	svc, st, _, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addShapefile(t, st, root, site, "Site grid", func(dir string) []string {
		return writeLayer(t, dir, shp.POLYGON, `LOCAL_CS["site grid"]`, []layerRow{{name: "Patch", shape: box(100, 100, 10)}})
	})

	info, err := svc.LoadInfo(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)

	res, err := svc.Convert(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Error, "The following error occurred when trying to convert the coordinate reference system to WGS84: "), res.Error)
	assert.Empty(t, st.spacesOf(doc.ID))

	stored, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Error, stored.Meta.ProcessingError)
	assert.False(t, stored.Meta.Processed)
}

func TestShapefileGroupNamesUnnamedFeatures(t *testing.T) {
	svc, st, _, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addShapefile(t, st, root, site, "Verges", func(dir string) []string {
		return writeLayer(t, dir, shp.POLYGON, wgs84PRJ, []layerRow{
			{name: "", shape: box(18.40, -33.95, 0.01)},
			{name: "Park", shape: box(18.42, -33.95, 0.01)},
			{name: "", shape: box(18.44, -33.95, 0.01)},
		})
	})

	res, err := svc.Classify(ctx, site, doc.ID, ClassifyRequest{
		Actions:    map[string]string{"NAME": ColumnPrimary},
		Processing: ProcessGroup,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Spaces)

	spaces := st.spacesOf(doc.ID)
	require.Len(t, spaces, 2)
	assert.Equal(t, "Unnamed", spaces[0].Name)
	assert.Equal(t, "Park", spaces[1].Name)
	_, ok := spaces[0].Geometry.(*geom.MultiPolygon)
	assert.True(t, ok, "got %T", spaces[0].Geometry)
}

func TestShapefileClassifyClipsToBoundary(t *testing.T) {
	svc, st, _, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addParks(t, st, root, site)
	boundary := st.addSpace(999, "Ward 58", square(18.395, -33.96, 0.03), nil)

	res, err := svc.Classify(ctx, site, doc.ID, ClassifyRequest{
		Actions:    map[string]string{"ZONE": ColumnPrimary},
		Processing: ProcessIndividual,
		Clip:       &boundary.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Spaces)
	names := []string{}
	for _, sp := range st.spacesOf(doc.ID) {
		names = append(names, sp.Name)
	}
	assert.Equal(t, []string{"A", "B"}, names)

	detail, err := svc.Detail(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.SpaceCount)
	assert.Greater(t, detail.SizeBytes, int64(0))
	require.NotNil(t, detail.ClipBoundary)
	assert.Equal(t, "Ward 58", detail.ClipBoundary.Name)
	assert.Nil(t, detail.ClipBoundary.Geometry)
	assert.Len(t, detail.Attachments, 4)
}

func TestShapefileClipExistingSpaces(t *testing.T) {
	svc, st, c, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addParks(t, st, root, site)

	_, err := svc.Classify(ctx, site, doc.ID, ClassifyRequest{Processing: ProcessIndividual})
	require.NoError(t, err)
	boundary := st.addSpace(999, "Ward 58", square(18.395, -33.96, 0.03), nil)

	res, err := svc.Clip(ctx, site, doc.ID, boundary.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Removed)
	assert.Equal(t, 1, res.Clipped)
	assert.Equal(t, "Borders were clipped to Ward 58; 1 spaces were removed and 1 spaces were clipped.", res.Message)

	spaces := st.spacesOf(doc.ID)
	require.Len(t, spaces, 2)
	bounds := spaces[1].Geometry.Bounds()
	assert.InDelta(t, 18.425, bounds.Max(0), 1e-9)

	stored, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Meta.Clip)
	assert.Equal(t, boundary.ID, *stored.Meta.Clip)
	assert.Contains(t, c.invalidated, doc.ID)
}

func TestShapefileConvertRejectsLargeFiles(t *testing.T) {
	svc, st, _, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addParks(t, st, root, site)
	st.addSpace(doc.ID, "Old", square(0, 0, 1), nil)

	spaces, msg := buildSpaces(&models.Document{}, &shapefile.Layer{Count: MaxFeatures + 1})
	assert.Nil(t, spaces)
	assert.Equal(t, errTooManyObjects, msg)

	var seen []observation
	svc.Observe = func(op string, _ time.Time, err error) {
		seen = append(seen, observation{op: op, err: err})
	}
	boundary := int64(424242)
	stored, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	stored.Meta.Clip = &boundary
	require.NoError(t, st.UpdateDocumentMeta(ctx, doc.ID, stored.Meta))

	res, err := svc.Convert(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "We could not clip the shapefile")
	// rejected conversions keep the current spaces
	assert.Len(t, st.spacesOf(doc.ID), 1)
	require.Len(t, seen, 1)
	assert.Error(t, seen[0].err)

	stored, err = st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Error, stored.Meta.ProcessingError)
	assert.False(t, stored.Meta.Processed)
}

func TestShapefileSaveUnpacksZip(t *testing.T) {
	svc, st, c, _ := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}

	files := writeParks(t, t.TempDir())
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		w, err := zw.Create("export/" + filepath.Base(f))
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	_, err := svc.SaveShapefileDocument(ctx, site, 0, ShapefileForm{Name: "Parks", DocType: "NOPE"}, nil, "")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "doc_type", verr.Field)

	doc, err := svc.SaveShapefileDocument(ctx, site, 0, ShapefileForm{
		Name:     " Parks ",
		DocType:  models.DocSteppingStones,
		IsActive: true,
	}, []Upload{{Name: "parks.zip", Size: int64(buf.Len()), File: bytes.NewReader(buf.Bytes())}}, "staff@example.org")
	require.NoError(t, err)
	assert.Equal(t, "Parks", doc.Name)
	assert.True(t, doc.IsShapefile)
	require.NotNil(t, doc.SiteID)

	atts, err := st.ListAttachments(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, atts, 4)
	assert.Equal(t, "files/"+strconv.FormatInt(doc.ID, 10)+"/parks.shp", atts[0].File)
	assert.Contains(t, c.invalidated, doc.ID)
	require.Len(t, st.logs, 1)
	assert.Equal(t, "Shapefile: Parks", st.logs[0].Name)

	info, err := svc.LoadInfo(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Count)

	name, archive, err := svc.Zip(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Parks", name)
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 4)
}

func TestShapefileCreatePlot(t *testing.T) {
	svc, st, _, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addParks(t, st, root, site)

	var seen []observation
	svc.Observe = func(op string, _ time.Time, err error) {
		seen = append(seen, observation{op: op, err: err})
	}

	res, err := svc.CreatePlot(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	png, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(res.Path)))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
	require.Len(t, seen, 1)
	assert.Equal(t, "plot", seen[0].op)

	// a shapefile with a missing component cannot be plotted
	atts, err := st.ListAttachments(ctx, doc.ID)
	require.NoError(t, err)
	_, err = st.ReplaceAttachments(ctx, doc.ID, []string{atts[0].File, atts[1].File})
	require.NoError(t, err)
	res, err = svc.CreatePlot(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)
	stored, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Error, stored.Meta.ShapefilePlotError)
}

func TestShapefileDataviz(t *testing.T) {
	svc, st, c, root := newShapefileFixture(t)
	ctx := context.Background()
	site := &models.Site{ID: 3}
	doc := addParks(t, st, root, site)
	st.styles[1] = &models.MapStyle{ID: 1, Name: "Satellite"}

	d, styles, err := svc.Dataviz(ctx, site, doc.ID)
	require.NoError(t, err)
	assert.NotZero(t, d.ID)
	assert.Len(t, styles, 1)

	bad := "{not json"
	feature := "ZONE"
	d, warning, err := svc.SaveDataviz(ctx, site, doc.ID, DatavizForm{Option: models.ColorAssigned, SetFeature: &feature, Features: &bad})
	require.NoError(t, err)
	assert.Equal(t, "JSON object is not valid and was not saved", warning)
	assert.Nil(t, d.Colors.Features)

	good := `{"A": "red", "B": "blue"}`
	d, warning, err = svc.SaveDataviz(ctx, site, doc.ID, DatavizForm{Option: models.ColorAssigned, SetFeature: &feature, Features: &good})
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, map[string]string{"A": "red", "B": "blue"}, d.Colors.Features)
	assert.Equal(t, "ZONE", d.Colors.SetFeature)
	assert.Contains(t, c.invalidated, doc.ID)

	stored, err := st.GetDataviz(ctx, site.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, stored.ID)
}
