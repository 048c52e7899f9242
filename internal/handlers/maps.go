package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/middleware"
	"corridor-platform/internal/models"
	"corridor-platform/internal/services"
)

// MapAPI is the map and site report side of the platform
type MapAPI interface {
	Maps(ctx context.Context, site *models.Site) (*services.MapsIndex, error)
	Layer(ctx context.Context, site *models.Site, docID int64, opts services.LayerOptions) (*services.LayerView, error)
	GeoJSON(ctx context.Context, docID int64, q services.GeoJSONQuery) ([]byte, error)
	Space(ctx context.Context, id int64) (*services.SpaceView, error)
	SpaceGeoJSON(ctx context.Context, id int64) (string, []byte, error)
	VegetationTypes(ctx context.Context, site *models.Site) (*services.VegetationTypesView, error)
	VegetationTypeRedirect(ctx context.Context, spaceID int64) (string, error)
	VegetationType(ctx context.Context, slug string) (*services.VegetationTypeView, error)
	VegetationTypeGeoJSON(ctx context.Context, slug string) (string, []byte, error)
	Report(ctx context.Context, lat, lng float64) (*services.SiteReport, error)
	Nearby(ctx context.Context, lat, lng float64, layer string) (*services.NearbyResult, error)
	Profile(ctx context.Context, lat, lng float64) (*services.Profile, error)
}

// MapHandler serves the public maps
type MapHandler struct {
	maps MapAPI
}

// NewMapHandler creates a new MapHandler instance
func NewMapHandler(maps MapAPI) *MapHandler {
	return &MapHandler{maps: maps}
}

// Register adds the map routes
func (h *MapHandler) Register(r gin.IRouter) {
	r.GET("/maps", h.HandleMaps)
	r.GET("/maps/:id", h.HandleLayer)
	r.GET("/geojson/:id", h.HandleGeoJSON)
	r.GET("/space/:id", h.HandleSpace)
	r.POST("/space/:id/download", h.HandleSpaceDownload)
	r.GET("/space/:id/vegetation-type", h.HandleVegetationTypeRedirect)
	r.GET("/vegetation-types", middleware.RequireSite(), h.HandleVegetationTypes)
	r.GET("/vegetation-types/:slug", h.HandleVegetationType)
	r.POST("/vegetation-types/:slug/download", h.HandleVegetationTypeDownload)
	r.GET("/report", h.HandleReport)
	r.GET("/report/nearby/:layer", h.HandleNearby)
	r.GET("/profile", h.HandleProfile)
}

// HandleMaps lists the site's map layers
func (h *MapHandler) HandleMaps(c *gin.Context) {
	index, err := h.maps.Maps(c.Request.Context(), middleware.Site(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, index)
}

// HandleLayer renders one layer; show_all lifts the feature limit and
// show_full skips simplification
func (h *MapHandler) HandleLayer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	opts := services.LayerOptions{
		ShowAll:  c.Query("show_all") != "",
		ShowFull: c.Query("show_full") != "",
	}
	view, err := h.maps.Layer(c.Request.Context(), middleware.Site(c), id, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleGeoJSON returns the features of a document
func (h *MapHandler) HandleGeoJSON(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var q services.GeoJSONQuery
	if raw := c.Query("space"); raw != "" {
		spaceID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid space"})
			return
		}
		q.SpaceID = &spaceID
	}
	if q.Lat, ok = optionalFloat(c, "lat"); !ok {
		return
	}
	if q.Lng, ok = optionalFloat(c, "lng"); !ok {
		return
	}
	data, err := h.maps.GeoJSON(c.Request.Context(), id, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// HandleSpace shows one reference space
func (h *MapHandler) HandleSpace(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.maps.Space(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleSpaceDownload sends the geometry of a space as a GeoJSON file
func (h *MapHandler) HandleSpaceDownload(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	name, data, err := h.maps.SpaceGeoJSON(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	download(c, name+".geojson", "application/geo+json", data)
}

// HandleVegetationTypeRedirect sends the visitor to the vegetation type of a space
func (h *MapHandler) HandleVegetationTypeRedirect(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	target, err := h.maps.VegetationTypeRedirect(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// HandleVegetationTypes shows the site's vegetation map
func (h *MapHandler) HandleVegetationTypes(c *gin.Context) {
	view, err := h.maps.VegetationTypes(c.Request.Context(), middleware.Site(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleVegetationType shows one vegetation type
func (h *MapHandler) HandleVegetationType(c *gin.Context) {
	view, err := h.maps.VegetationType(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleVegetationTypeDownload sends the area of a vegetation type as a GeoJSON file
func (h *MapHandler) HandleVegetationTypeDownload(c *gin.Context) {
	name, data, err := h.maps.VegetationTypeGeoJSON(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	download(c, name+".geojson", "application/geo+json", data)
}

// HandleReport assesses a location
func (h *MapHandler) HandleReport(c *gin.Context) {
	lat, lng, ok := location(c)
	if !ok {
		return
	}
	report, err := h.maps.Report(c.Request.Context(), lat, lng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleNearby lists the spaces of one layer around a location
func (h *MapHandler) HandleNearby(c *gin.Context) {
	lat, lng, ok := location(c)
	if !ok {
		return
	}
	res, err := h.maps.Nearby(c.Request.Context(), lat, lng, c.Param("layer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleProfile returns the planting profile of a location
func (h *MapHandler) HandleProfile(c *gin.Context) {
	lat, lng, ok := location(c)
	if !ok {
		return
	}
	p, err := h.maps.Profile(c.Request.Context(), lat, lng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
