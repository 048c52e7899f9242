package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/auth"
	"corridor-platform/internal/middleware"
	"corridor-platform/internal/models"
	"corridor-platform/internal/services"
)

// ShapefileAPI imports and configures shapefile documents
type ShapefileAPI interface {
	List(ctx context.Context, site *models.Site) ([]models.Document, error)
	Detail(ctx context.Context, site *models.Site, id int64) (*services.ShapefileDetail, error)
	Fields(ctx context.Context, site *models.Site, id int64) ([]string, error)
	LoadInfo(ctx context.Context, site *models.Site, id int64) (*models.ShapefileInfo, error)
	AcceptLargeFile(ctx context.Context, site *models.Site, id int64) error
	Classify(ctx context.Context, site *models.Site, id int64, req services.ClassifyRequest) (*services.ConvertResult, error)
	Convert(ctx context.Context, site *models.Site, id int64) (*services.ConvertResult, error)
	Clip(ctx context.Context, site *models.Site, id, boundaryID int64) (*services.ClipResult, error)
	CreatePlot(ctx context.Context, site *models.Site, id int64) (*services.PlotResult, error)
	SaveShapefileDocument(ctx context.Context, site *models.Site, id int64, form services.ShapefileForm, uploads []services.Upload, user string) (*models.Document, error)
	Zip(ctx context.Context, id int64) (string, []byte, error)
	Dataviz(ctx context.Context, site *models.Site, id int64) (*models.Dataviz, []models.MapStyle, error)
	SaveDataviz(ctx context.Context, site *models.Site, id int64, form services.DatavizForm) (*models.Dataviz, string, error)
}

// ShapefileRequest is the shapefile document form
type ShapefileRequest struct {
	Name                  string         `form:"name" json:"name"`
	Author                string         `form:"author" json:"author"`
	URL                   string         `form:"url" json:"url"`
	Color                 string         `form:"color" json:"color"`
	DocType               models.DocType `form:"doc_type" json:"doc_type"`
	Description           string         `form:"description" json:"description"`
	IncludeInSiteAnalysis bool           `form:"include_in_site_analysis" json:"include_in_site_analysis"`
	IsActive              bool           `form:"is_active" json:"is_active"`
}

// ClassifyBody is the JSON form of a classification. Form posts send
// actions[FIELD]=primary|import instead.
type ClassifyBody struct {
	Actions    map[string]string `json:"actions" form:"-"`
	Processing string            `json:"processing" form:"processing"`
	Clip       *int64            `json:"clip" form:"clip"`
}

type clipRequest struct {
	Boundary int64 `form:"boundary" json:"boundary" binding:"required"`
}

// DatavizRequest is the posted visual configuration of a layer
type DatavizRequest struct {
	Option      string  `form:"option" json:"option"`
	Color       string  `form:"color" json:"color"`
	SetFeature  *string `form:"set_feature" json:"set_feature"`
	Features    *string `form:"features" json:"features"`
	Scheme      string  `form:"scheme" json:"scheme"`
	MapStyleID  *int64  `form:"mapstyle" json:"mapstyle"`
	Opacity     *int    `form:"opacity" json:"opacity"`
	FillOpacity *int    `form:"fill_opacity" json:"fill_opacity"`
	LineWidth   *int    `form:"line_width" json:"line_width"`
}

// ShapefileHandler serves the shapefile workflow of the control panel
type ShapefileHandler struct {
	shapefiles ShapefileAPI
}

// NewShapefileHandler creates a new ShapefileHandler instance
func NewShapefileHandler(shapefiles ShapefileAPI) *ShapefileHandler {
	return &ShapefileHandler{shapefiles: shapefiles}
}

// Register adds the public shapefile routes
func (h *ShapefileHandler) Register(r gin.IRouter) {
	r.GET("/shapefiles/:id/zip", h.HandleZip)
}

// RegisterControlPanel adds the staff shapefile routes
func (h *ShapefileHandler) RegisterControlPanel(r gin.IRouter) {
	r.GET("/shapefiles", h.HandleList)
	r.POST("/shapefiles", h.HandleSave)
	r.GET("/shapefiles/:id", h.HandleDetail)
	r.POST("/shapefiles/:id", h.HandleSave)
	r.POST("/shapefiles/:id/info", h.HandleLoadInfo)
	r.POST("/shapefiles/:id/plot", h.HandlePlot)
	r.POST("/shapefiles/:id/accept-size", h.HandleAcceptSize)
	r.GET("/shapefiles/:id/classify", h.HandleFields)
	r.POST("/shapefiles/:id/classify", h.HandleClassify)
	r.POST("/shapefiles/:id/convert", h.HandleConvert)
	r.POST("/shapefiles/:id/clip", h.HandleClip)
	r.GET("/shapefiles/:id/dataviz", h.HandleDataviz)
	r.POST("/shapefiles/:id/dataviz", h.HandleSaveDataviz)
}

// HandleZip sends the files of a shapefile as one zip archive
func (h *ShapefileHandler) HandleZip(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	name, data, err := h.shapefiles.Zip(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	download(c, name+".zip", "application/zip", data)
}

// HandleList lists the site's shapefiles
func (h *ShapefileHandler) HandleList(c *gin.Context) {
	docs, err := h.shapefiles.List(c.Request.Context(), middleware.Site(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shapefiles": docs})
}

// HandleDetail shows one shapefile with its files and clip boundary
func (h *ShapefileHandler) HandleDetail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.shapefiles.Detail(c.Request.Context(), middleware.Site(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// HandleSave creates a shapefile document, or updates the one in the path.
// Files posted under "file" replace the current ones.
func (h *ShapefileHandler) HandleSave(c *gin.Context) {
	var id int64
	if c.Param("id") != "" {
		var ok bool
		if id, ok = idParam(c, "id"); !ok {
			return
		}
	}
	var req ShapefileRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	uploads, closeUploads, err := formUploads(c, "file")
	if err != nil {
		badRequest(c, err)
		return
	}
	defer closeUploads()

	d, err := h.shapefiles.SaveShapefileDocument(c.Request.Context(), middleware.Site(c), id, services.ShapefileForm{
		Name:                  req.Name,
		Author:                req.Author,
		URL:                   req.URL,
		Color:                 req.Color,
		DocType:               req.DocType,
		Description:           req.Description,
		IncludeInSiteAnalysis: req.IncludeInSiteAnalysis,
		IsActive:              req.IsActive,
	}, uploads, auth.StaffUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"document": d, "message": "Information was saved."})
}

// HandleLoadInfo reads the shapefile and stores its fields, count and type
func (h *ShapefileHandler) HandleLoadInfo(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	info, err := h.shapefiles.LoadInfo(c.Request.Context(), middleware.Site(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandlePlot renders a preview image of the shapefile
func (h *ShapefileHandler) HandlePlot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.shapefiles.CreatePlot(c.Request.Context(), middleware.Site(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleAcceptSize lets a large shapefile be converted
func (h *ShapefileHandler) HandleAcceptSize(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.shapefiles.AcceptLargeFile(c.Request.Context(), middleware.Site(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "The file size was accepted. You can now convert the shapefile."})
}

// HandleFields returns the attribute fields to classify
func (h *ShapefileHandler) HandleFields(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	fields, err := h.shapefiles.Fields(c.Request.Context(), middleware.Site(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fields":     fields,
		"roles":      []string{services.ColumnPrimary, services.ColumnImport},
		"processing": []string{services.ProcessIndividual, services.ProcessGroup, services.ProcessSingle},
	})
}

func classifyRequest(c *gin.Context) (services.ClassifyRequest, error) {
	var body ClassifyBody
	if err := c.ShouldBind(&body); err != nil {
		return services.ClassifyRequest{}, err
	}
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		body.Actions = c.PostFormMap("actions")
	}
	return services.ClassifyRequest{
		Actions:    body.Actions,
		Processing: body.Processing,
		Clip:       body.Clip,
	}, nil
}

// HandleClassify stores the column roles and converts the shapefile again
func (h *ShapefileHandler) HandleClassify(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	req, err := classifyRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.shapefiles.Classify(c.Request.Context(), middleware.Site(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleConvert turns the shapefile features into reference spaces
func (h *ShapefileHandler) HandleConvert(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.shapefiles.Convert(c.Request.Context(), middleware.Site(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleClip clips the spaces of the shapefile to a boundary space
func (h *ShapefileHandler) HandleClip(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req clipRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.shapefiles.Clip(c.Request.Context(), middleware.Site(c), id, req.Boundary)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleDataviz returns the layer's visual configuration and the map styles
func (h *ShapefileHandler) HandleDataviz(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	d, styles, err := h.shapefiles.Dataviz(c.Request.Context(), middleware.Site(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dataviz": d, "styles": styles})
}

// HandleSaveDataviz stores the layer's visual configuration
func (h *ShapefileHandler) HandleSaveDataviz(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req DatavizRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, warning, err := h.shapefiles.SaveDataviz(c.Request.Context(), middleware.Site(c), id, services.DatavizForm{
		Option:      req.Option,
		Color:       req.Color,
		SetFeature:  req.SetFeature,
		Features:    req.Features,
		Scheme:      req.Scheme,
		MapStyleID:  req.MapStyleID,
		Opacity:     req.Opacity,
		FillOpacity: req.FillOpacity,
		LineWidth:   req.LineWidth,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"dataviz": d, "message": "Information was saved."}
	if warning != "" {
		body["warning"] = warning
	}
	c.JSON(http.StatusOK, body)
}
