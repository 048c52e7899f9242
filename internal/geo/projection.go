package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/wroge/wgs84"
)

// Well known spatial reference ids
const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
)

// ErrUnsupportedCRS is returned for coordinate systems that cannot be
// transformed to WGS84
var ErrUnsupportedCRS = errors.New("unsupported coordinate system")

// CRS is a coordinate reference system geometries can be reprojected from
type CRS struct {
	// SRID is the EPSG code, or 0 for systems only known by their parameters
	SRID int
	Name string

	// nil for WGS84 longitude/latitude
	system wgs84.CoordinateReferenceSystem
}

// WGS84 is the longitude/latitude system geometries are stored in
var WGS84 = CRS{SRID: SRIDWGS84, Name: "WGS 84"}

// IsWGS84 reports whether coordinates need no transformation
func (c CRS) IsWGS84() bool {
	return c.system == nil
}

func (c CRS) String() string {
	switch {
	case c.SRID != 0 && c.Name != "":
		return fmt.Sprintf("%s (EPSG:%d)", c.Name, c.SRID)
	case c.SRID != 0:
		return fmt.Sprintf("EPSG:%d", c.SRID)
	}
	return c.Name
}

// ToWGS84 reprojects g from c to WGS84 longitude/latitude
func (c CRS) ToWGS84(g geom.T) (geom.T, error) {
	if c.IsWGS84() {
		return g, nil
	}
	f := wgs84.LonLat().From(c.system)
	return mapCoords(g, g.Layout(), func(x, y float64) (float64, float64) {
		lon, lat, _ := f(x, y, 0)
		return lon, lat
	})
}

// FromWGS84 reprojects a WGS84 geometry to c
func (c CRS) FromWGS84(g geom.T) (geom.T, error) {
	if c.IsWGS84() {
		return g, nil
	}
	f := wgs84.LonLat().To(c.system)
	return mapCoords(g, g.Layout(), func(lon, lat float64) (float64, float64) {
		x, y, _ := f(lon, lat, 0)
		return x, y
	})
}

var systems = registry()

// registry extends the EPSG codes known to wgs84 with the systems South
// African municipal data is published in
func registry() *wgs84.Repository {
	r := wgs84.EPSG()

	hartebeesthoek := wgs84.Helmert(wgs84.A, wgs84.Fi, 0, 0, 0, 0, 0, 0, 0)
	cape := wgs84.Helmert(6378249.145, 293.4663077, -136, -108, -292, 0, 0, 0, 0)
	r.Add(4148, hartebeesthoek.LonLat())
	r.Add(4222, cape.LonLat())
	for lo := 15; lo <= 33; lo += 2 {
		r.Add(2046+(lo-15)/2, transverseMercator(hartebeesthoek, float64(lo), 0, 1, 0, 0, 1, true))
		r.Add(22260+lo, transverseMercator(cape, float64(lo), 0, 1, 0, 0, 1, true))
	}

	nad83 := wgs84.NAD83()
	for zone := 1; zone <= 23; zone++ {
		r.Add(26900+zone, transverseMercator(nad83, float64(zone*6-183), 0, 0.9996, 500000, 0, 1, false))
	}
	return r
}

// CRSFromSRID returns the coordinate system of an EPSG code
func CRSFromSRID(srid int) (CRS, error) {
	if srid == SRIDWGS84 {
		return WGS84, nil
	}
	system := systems.Code(srid)
	if system == nil {
		return CRS{}, fmt.Errorf("%w EPSG:%d", ErrUnsupportedCRS, srid)
	}
	return CRS{SRID: srid, system: system}, nil
}

// Transform reprojects g from one EPSG code to another
func Transform(g geom.T, from, to int) (geom.T, error) {
	if from == to || from == 0 {
		return g, nil
	}
	src, err := CRSFromSRID(from)
	if err != nil {
		return nil, err
	}
	dst, err := CRSFromSRID(to)
	if err != nil {
		return nil, err
	}
	if g, err = src.ToWGS84(g); err != nil {
		return nil, err
	}
	return dst.FromWGS84(g)
}

// ToWGS84 reprojects g from srid to EPSG:4326
func ToWGS84(g geom.T, srid int) (geom.T, error) {
	return Transform(g, srid, SRIDWGS84)
}

// ToWebMercator reprojects a WGS84 geometry to EPSG:3857
func ToWebMercator(g geom.T) (geom.T, error) {
	return Transform(g, SRIDWGS84, SRIDWebMercator)
}

// FromWebMercator reprojects an EPSG:3857 geometry to WGS84
func FromWebMercator(g geom.T) (geom.T, error) {
	return Transform(g, SRIDWebMercator, SRIDWGS84)
}

// ParsePRJ reads the coordinate system described by the WKT of a .prj file.
// The system is built from the datum and projection parameters in the file;
// the EPSG authority is only used for projection methods that cannot be
// built that way.
func ParsePRJ(wkt string) (CRS, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return CRS{}, fmt.Errorf("empty projection definition")
	}
	root, err := parseWKT(wkt)
	if err != nil {
		return CRS{}, fmt.Errorf("invalid projection definition: %w", err)
	}

	crs := CRS{SRID: root.authority(), Name: root.name()}
	switch strings.ToUpper(root.keyword) {
	case "GEOGCS":
		d, plain, err := datumOf(root)
		if err != nil {
			return fallback(crs, err)
		}
		if plain {
			if crs.SRID == 0 {
				crs.SRID = SRIDWGS84
			}
			return crs, nil
		}
		crs.system = d.LonLat()
		return crs, nil
	case "PROJCS":
		system, err := projectedSystem(root)
		if err != nil {
			return fallback(crs, err)
		}
		crs.system = system
		return crs, nil
	}
	return fallback(crs, fmt.Errorf("%w %s", ErrUnsupportedCRS, root.keyword))
}

// fallback resolves crs by its EPSG code when its definition could not be used
func fallback(crs CRS, cause error) (CRS, error) {
	if crs.SRID == 0 {
		return CRS{}, cause
	}
	known, err := CRSFromSRID(crs.SRID)
	if err != nil {
		return CRS{}, fmt.Errorf("%w: %v", err, cause)
	}
	known.Name = crs.Name
	return known, nil
}

// datumOf builds the datum of a GEOGCS or of the GEOGCS of a PROJCS. plain
// is set when the datum matches WGS84 closely enough to skip transformation.
func datumOf(n *wktNode) (d wgs84.Datum, plain bool, err error) {
	geog := n
	if !strings.EqualFold(n.keyword, "GEOGCS") {
		geog = n.child("GEOGCS")
	}
	datum := geog.child("DATUM")
	spheroid := datum.child("SPHEROID")
	if spheroid == nil {
		return d, false, fmt.Errorf("%w: no spheroid in %q", ErrUnsupportedCRS, geog.name())
	}
	a, ok := spheroid.number(1)
	fi, ok2 := spheroid.number(2)
	if !ok || !ok2 || a <= 0 || fi <= 0 {
		return d, false, fmt.Errorf("%w: invalid spheroid %q", ErrUnsupportedCRS, spheroid.name())
	}
	if pm, ok := geog.child("PRIMEM").number(1); ok && pm != 0 {
		return d, false, fmt.Errorf("%w: prime meridian %v", ErrUnsupportedCRS, pm)
	}

	// TOWGS84 carries 3 or 7 position vector parameters
	shift := make([]float64, 7)
	if t := datum.child("TOWGS84"); t != nil {
		copy(shift, t.numbers())
	}
	noShift := true
	for _, v := range shift {
		if v != 0 {
			noShift = false
		}
	}
	plain = noShift && math.Abs(a-wgs84.A) < 1e-3 && math.Abs(1/fi-1/wgs84.Fi) < 1e-9
	return wgs84.Helmert(a, fi, shift[0], shift[1], shift[2], shift[3], shift[4], shift[5], shift[6]), plain, nil
}

// projectedSystem builds a projected system from the PROJECTION and PARAMETER
// elements of a PROJCS
func projectedSystem(n *wktNode) (wgs84.CoordinateReferenceSystem, error) {
	method := strings.ToLower(n.child("PROJECTION").name())
	p := n.params()
	unit := 1.0
	if u, ok := n.child("UNIT").number(1); ok && u > 0 {
		unit = u
	}

	switch method {
	case "mercator_auxiliary_sphere", "popular_visualisation_pseudo_mercator":
		return wgs84.WebMercator(), nil
	}

	d, _, err := datumOf(n)
	if err != nil {
		return nil, err
	}
	lon0 := first(p, "central_meridian", "longitude_of_center", "longitude_of_origin")
	lat0 := first(p, "latitude_of_origin", "latitude_of_center")
	fe, fn := p["false_easting"]*unit, p["false_northing"]*unit

	switch method {
	case "transverse_mercator", "gauss_kruger":
		return transverseMercator(d, lon0, lat0, scaleOf(p), fe, fn, unit, false), nil
	case "transverse_mercator_south_orientated":
		return transverseMercator(d, lon0, lat0, scaleOf(p), fe, fn, unit, true), nil
	case "lambert_conformal_conic_2sp", "lambert_conformal_conic":
		sp2, ok := p["standard_parallel_2"]
		if !ok {
			break
		}
		base := d.LambertConformalConic2SP(lon0, lat0, p["standard_parallel_1"], sp2, 0, 0)
		return gridded(d, base.Projection, fe, fn, unit, false), nil
	case "albers", "albers_conic_equal_area":
		base := d.AlbersEqualAreaConic(lon0, lat0, p["standard_parallel_1"], p["standard_parallel_2"], 0, 0)
		return gridded(d, base.Projection, fe, fn, unit, false), nil
	case "lambert_azimuthal_equal_area":
		base := d.LambertAzimuthalEqualArea(lon0, lat0, 0, 0)
		return gridded(d, base.Projection, fe, fn, unit, false), nil
	}
	return nil, fmt.Errorf("%w: projection %q", ErrUnsupportedCRS, n.child("PROJECTION").name())
}

func first(p map[string]float64, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			return v
		}
	}
	return 0
}

func scaleOf(p map[string]float64) float64 {
	if k, ok := p["scale_factor"]; ok && k != 0 {
		return k
	}
	return 1
}

func transverseMercator(d wgs84.Datum, lon0, lat0, scale, fe, fn, unit float64, south bool) wgs84.ProjectedReferenceSystem {
	return gridded(d, d.TransverseMercator(lon0, lat0, scale, 0, 0).Projection, fe, fn, unit, south)
}

func gridded(d wgs84.Datum, base wgs84.Projection, fe, fn, unit float64, south bool) wgs84.ProjectedReferenceSystem {
	return wgs84.ProjectedReferenceSystem{
		Datum:      d,
		Projection: grid{base: base, eastf: fe, northf: fn, unit: unit, south: south},
	}
}

// grid places projected metres on a file's grid: false origin in metres,
// linear unit and, for south orientated systems, westing/southing axes
type grid struct {
	base          wgs84.Projection
	eastf, northf float64
	unit          float64
	south         bool
}

func (g grid) ToLonLat(x, y float64, s wgs84.Spheroid) (float64, float64) {
	e, n := x*g.unit-g.eastf, y*g.unit-g.northf
	if g.south {
		e, n = -e, -n
	}
	return g.base.ToLonLat(e, n, s)
}

func (g grid) FromLonLat(lon, lat float64, s wgs84.Spheroid) (float64, float64) {
	e, n := g.base.FromLonLat(lon, lat, s)
	if g.south {
		e, n = -e, -n
	}
	return (e + g.eastf) / g.unit, (n + g.northf) / g.unit
}
