package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

type areaer interface {
	Area() float64
}

func square(x, y, size float64) *geom.Polygon {
	flat := []float64{x, y, x + size, y, x + size, y + size, x, y + size, x, y}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

func areaOf(t *testing.T, g geom.T) float64 {
	t.Helper()
	a, ok := g.(areaer)
	require.True(t, ok, "geometry %T has no area", g)
	return a.Area()
}

const lo19PRJ = `PROJCS["Hartebeesthoek94_Lo19",GEOGCS["GCS_Hartebeesthoek_1994",DATUM["D_Hartebeesthoek_1994",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",19.0],PARAMETER["Scale_Factor",1.0],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

const lo19SouthPRJ = `PROJCS["Hartebeesthoek94 / Lo19",
    GEOGCS["Hartebeesthoek94",
        DATUM["Hartebeesthoek94",
            SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],
            TOWGS84[0,0,0,0,0,0,0],
            AUTHORITY["EPSG","6148"]],
        PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],
        UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],
        AUTHORITY["EPSG","4148"]],
    PROJECTION["Transverse_Mercator_South_Orientated"],
    PARAMETER["latitude_of_origin",0],
    PARAMETER["central_meridian",19],
    PARAMETER["scale_factor",1],
    PARAMETER["false_easting",0],
    PARAMETER["false_northing",0],
    UNIT["metre",1,AUTHORITY["EPSG","9001"]],
    AXIS["Westing",WEST],
    AXIS["Southing",SOUTH],
    AUTHORITY["EPSG","2048"]]`

// Cape Town city hall on the Lo19 grid, east/north orientation
const (
	cityHallLon   = 18.42
	cityHallLat   = -33.92
	cityHallEast  = -53633.0
	cityHallNorth = -3754952.0
)

func TestParsePRJ(t *testing.T) {
	cases := []struct {
		name  string
		wkt   string
		srid  int
		wgs84 bool
	}{
		{
			name:  "esri geographic",
			wkt:   `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
			srid:  4326,
			wgs84: true,
		},
		{
			name:  "hartebeesthoek geographic",
			wkt:   `GEOGCS["Hartebeesthoek94",DATUM["Hartebeesthoek94",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4148"]]`,
			srid:  4148,
			wgs84: true,
		},
		{
			name: "cape geographic",
			wkt:  `GEOGCS["Cape",DATUM["Cape",SPHEROID["Clarke 1880 (Arc)",6378249.145,293.4663077],TOWGS84[-136,-108,-292,0,0,0,0]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4222"]]`,
			srid: 4222,
		},
		{name: "esri lo19", wkt: lo19PRJ},
		{name: "gdal lo19", wkt: lo19SouthPRJ, srid: 2048},
		{
			name: "utm south",
			wkt:  `PROJCS["WGS_1984_UTM_Zone_34S",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",10000000.0],PARAMETER["Central_Meridian",21.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`,
		},
		{
			name: "web mercator",
			wkt:  `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",0.0],PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],UNIT["Meter",1.0],AUTHORITY["EPSG","3857"]]`,
			srid: 3857,
		},
		{
			name: "unknown method with known authority",
			wkt:  `PROJCS["NAD83 / UTM zone 10N",GEOGCS["NAD83"],PROJECTION["Something_Else"],AUTHORITY["EPSG","26910"]]`,
			srid: 26910,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			crs, err := ParsePRJ(tc.wkt)
			require.NoError(t, err)
			assert.Equal(t, tc.srid, crs.SRID)
			assert.Equal(t, tc.wgs84, crs.IsWGS84())
		})
	}

	for _, wkt := range []string{
		"  ",
		`LOCAL_CS["nowhere"]`,
		`PROJCS["Polyconic",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]],PROJECTION["Polyconic"]]`,
		`PROJCS["Lo19",GEOGCS["GCS_Hartebeesthoek_1994"]]`,
		`PROJCS["broken",GEOGCS[`,
	} {
		_, err := ParsePRJ(wkt)
		assert.Error(t, err, wkt)
	}
}

func TestLoSystemToWGS84(t *testing.T) {
	esri, err := ParsePRJ(lo19PRJ)
	require.NoError(t, err)
	g, err := esri.ToWGS84(Point(cityHallEast, cityHallNorth))
	require.NoError(t, err)
	assert.InDelta(t, cityHallLon, g.FlatCoords()[0], 1e-3)
	assert.InDelta(t, cityHallLat, g.FlatCoords()[1], 1e-3)

	// westing/southing grids hold the same point with both signs flipped
	south, err := ParsePRJ(lo19SouthPRJ)
	require.NoError(t, err)
	g, err = south.ToWGS84(Point(-cityHallEast, -cityHallNorth))
	require.NoError(t, err)
	assert.InDelta(t, cityHallLon, g.FlatCoords()[0], 1e-3)
	assert.InDelta(t, cityHallLat, g.FlatCoords()[1], 1e-3)

	byCode, err := ToWGS84(Point(-cityHallEast, -cityHallNorth), 2048)
	require.NoError(t, err)
	assert.InDelta(t, g.FlatCoords()[0], byCode.FlatCoords()[0], 1e-9)
	assert.InDelta(t, g.FlatCoords()[1], byCode.FlatCoords()[1], 1e-9)

	back, err := esri.FromWGS84(Point(cityHallLon, cityHallLat))
	require.NoError(t, err)
	again, err := esri.ToWGS84(back)
	require.NoError(t, err)
	assert.InDelta(t, cityHallLon, again.FlatCoords()[0], 1e-6)
	assert.InDelta(t, cityHallLat, again.FlatCoords()[1], 1e-6)
}

func TestRegisteredCodes(t *testing.T) {
	for _, srid := range []int{4148, 4222, 2046, 2048, 2055, 22279, 26910, 32734, 25832, 4258, 4269, 3857} {
		_, err := CRSFromSRID(srid)
		assert.NoError(t, err, "EPSG:%d", srid)
	}
	_, err := CRSFromSRID(999999)
	assert.ErrorIs(t, err, ErrUnsupportedCRS)
}

func TestFeetGrid(t *testing.T) {
	metres, err := ParsePRJ(`PROJCS["tm",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]],PROJECTION["Transverse_Mercator"],PARAMETER["Central_Meridian",19.0],PARAMETER["False_Easting",100000.0],UNIT["Meter",1.0]]`)
	require.NoError(t, err)
	feet, err := ParsePRJ(`PROJCS["tm",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]],PROJECTION["Transverse_Mercator"],PARAMETER["Central_Meridian",19.0],PARAMETER["False_Easting",328083.3333333333],UNIT["Foot_US",0.3048006096012192]]`)
	require.NoError(t, err)

	a, err := metres.ToWGS84(Point(100000+cityHallEast, cityHallNorth))
	require.NoError(t, err)
	b, err := feet.ToWGS84(Point((100000+cityHallEast)/0.3048006096012192, cityHallNorth/0.3048006096012192))
	require.NoError(t, err)
	assert.InDelta(t, a.FlatCoords()[0], b.FlatCoords()[0], 1e-7)
	assert.InDelta(t, a.FlatCoords()[1], b.FlatCoords()[1], 1e-7)
}

func TestForce2DDropsZ(t *testing.T) {
	flat := []float64{0, 0, 5, 1, 0, 5, 1, 1, 5, 0, 0, 5}
	poly := geom.NewPolygonFlat(geom.XYZ, flat, []int{len(flat)})
	require.True(t, HasZ(poly))

	out, err := Force2D(poly)
	require.NoError(t, err)
	assert.False(t, HasZ(out))
	assert.Equal(t, []float64{0, 0, 1, 0, 1, 1, 0, 0}, out.FlatCoords())
	assert.Equal(t, []int{8}, out.Ends())
}

func TestSimplifyRemovesCollinearPoints(t *testing.T) {
	line := geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 0, 2, 0, 3, 0, 4, 0})
	out, err := Simplify(line, 0.01)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 4, 0}, out.FlatCoords())

	ring := []float64{0, 0, 1, 0, 2, 0, 2, 1, 2, 2, 1, 2, 0, 2, 0, 1, 0, 0}
	poly := geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)})
	simplified, err := Simplify(poly, 0.01)
	require.NoError(t, err)
	assert.Len(t, simplified.FlatCoords(), 10)
	assert.InDelta(t, 4.0, areaOf(t, simplified), 1e-9)
}

func TestSimplifyKeepsDegenerateRings(t *testing.T) {
	ring := []float64{0, 0, 1, 0, 1, 0.001, 0, 0.001, 0, 0}
	poly := geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)})
	out, err := Simplify(poly, 1)
	require.NoError(t, err)
	assert.Equal(t, ring, out.FlatCoords())
}

func denseCircle(n int, radius float64) *geom.Polygon {
	flat := make([]float64, 0, (n+1)*2)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		flat = append(flat, radius*math.Cos(a), radius*math.Sin(a))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

func TestSimplifyAdaptive(t *testing.T) {
	small := denseCircle(100, 1)
	out, err := SimplifyAdaptive(small)
	require.NoError(t, err)
	assert.Equal(t, small.FlatCoords(), out.FlatCoords())

	dense := denseCircle(2000, 1)
	out, err = SimplifyAdaptive(dense)
	require.NoError(t, err)
	assert.Less(t, len(out.FlatCoords()), len(dense.FlatCoords()))
	assert.InDelta(t, math.Pi, areaOf(t, out), 0.05)
}

func TestCalculatePolygonComplexityCapsEpsilon(t *testing.T) {
	points := make([]vertex, 0, 5000)
	for i := 0; i < 5000; i++ {
		a := 2 * math.Pi * float64(i) / 5000
		points = append(points, vertex{X: math.Cos(a), Y: math.Sin(a)})
	}
	needs, epsilon := calculatePolygonComplexity(points)
	require.True(t, needs)
	diagonal := calculateBoundingBoxDiagonal(points)
	assert.LessOrEqual(t, epsilon, diagonal*0.01)
	assert.Greater(t, epsilon, 0.0)
}

func TestUnionAll(t *testing.T) {
	u, err := UnionAll([]geom.T{square(0, 0, 2), square(1, 1, 2), square(10, 10, 1)})
	require.NoError(t, err)
	assert.InDelta(t, 8.0, areaOf(t, u), 1e-9)

	_, err = UnionAll(nil)
	assert.ErrorIs(t, err, ErrEmptyGeometry)
}

func TestClip(t *testing.T) {
	boundary := square(0, 0, 10)

	out, outcome, err := Clip(square(1, 1, 2), boundary)
	require.NoError(t, err)
	assert.Equal(t, ClipKeep, outcome)
	assert.InDelta(t, 4.0, areaOf(t, out), 1e-9)

	_, outcome, err = Clip(square(20, 20, 2), boundary)
	require.NoError(t, err)
	assert.Equal(t, ClipDrop, outcome)

	out, outcome, err = Clip(square(9, 9, 2), boundary)
	require.NoError(t, err)
	assert.Equal(t, ClipTrim, outcome)
	assert.InDelta(t, 1.0, areaOf(t, out), 1e-9)
}

func TestDifferenceAndPercentage(t *testing.T) {
	d, err := Difference(square(0, 0, 2), square(1, 0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, areaOf(t, d), 1e-9)

	pct, err := IntersectionPercentage(square(0, 0, 2), square(1, 0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pct, 1e-9)

	pct, err = IntersectionPercentage(square(0, 0, 10), square(9.9, 9.9, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)
}

func TestCircleAround(t *testing.T) {
	circle, err := CircleAround(18.5, -33.9, 1000)
	require.NoError(t, err)

	b := circle.Bounds()
	width := b.Max(0) - b.Min(0)
	// 2000 Web Mercator units expressed in degrees of longitude
	assert.InDelta(t, 2000/6378137.0*180/math.Pi, width, 1e-4)

	hit, err := Intersects(circle, Point(18.5, -33.9))
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestBufferLine(t *testing.T) {
	line := geom.NewLineStringFlat(geom.XY, []float64{18.40, -33.90, 18.41, -33.90})
	buf, err := Buffer(line, 400)
	require.NoError(t, err)

	inside, err := Intersects(buf, Point(18.405, -33.90+0.00224))
	require.NoError(t, err)
	assert.True(t, inside)

	outside, err := Intersects(buf, Point(18.405, -33.90+0.0038))
	require.NoError(t, err)
	assert.False(t, outside)
}

func TestTransformRoundTrip(t *testing.T) {
	p := Point(18.42, -33.92)
	utm, err := Transform(p, SRIDWGS84, 32734)
	require.NoError(t, err)
	assert.NotEqual(t, p.FlatCoords(), utm.FlatCoords())

	back, err := ToWGS84(utm, 32734)
	require.NoError(t, err)
	assert.InDelta(t, 18.42, back.FlatCoords()[0], 1e-6)
	assert.InDelta(t, -33.92, back.FlatCoords()[1], 1e-6)

	_, err = ToWGS84(p, 999999)
	assert.Error(t, err)
}

func TestParseGeoJSON(t *testing.T) {
	feature := []byte(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}`)
	g, err := ParseGeoJSON(feature)
	require.NoError(t, err)
	assert.Equal(t, "Polygon", TypeName(g))

	fc := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[5,5],[6,5],[6,6],[5,6],[5,5]]]}}
	]}`)
	g, err = ParseGeoJSON(fc)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, areaOf(t, g), 1e-9)

	_, err = ParseGeoJSON([]byte(`{"type":"FeatureCollection","features":[]}`))
	assert.ErrorIs(t, err, ErrEmptyGeometry)
}

type indexed struct {
	id int
	g  geom.T
}

func (i indexed) Geom() geom.T { return i.g }

func TestIndexQuery(t *testing.T) {
	idx := NewIndex([]indexed{
		{id: 1, g: square(0, 0, 1)},
		{id: 2, g: square(5, 5, 1)},
		{id: 3, g: nil},
	})
	assert.Equal(t, 2, idx.Len())

	hits, err := idx.Query(square(0.5, 0.5, 1))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].id)

	hits, err = idx.Query(square(100, 100, 1))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCentroidAndLength(t *testing.T) {
	c, err := Centroid(square(0, 0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.X(), 1e-9)
	assert.InDelta(t, 1.0, c.Y(), 1e-9)

	line := geom.NewLineStringFlat(geom.XY, []float64{0, 0, 3, 4})
	assert.Equal(t, 5.0, Length(line))
}
