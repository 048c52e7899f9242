package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/auth"
	"corridor-platform/internal/middleware"
	"corridor-platform/internal/models"
	"corridor-platform/internal/services"
)

// DocumentAPI manages the non-shapefile documents
type DocumentAPI interface {
	List(ctx context.Context, site *models.Site, docType models.DocType) ([]models.Document, error)
	Detail(ctx context.Context, id int64) (*services.DocumentDetail, error)
	Save(ctx context.Context, site *models.Site, id int64, form services.DocumentForm, uploads []services.Upload, user string) (*models.Document, error)
}

// SpeciesListAPI previews and imports uploaded species lists
type SpeciesListAPI interface {
	PreviewSpeciesList(ctx context.Context, docID, fileID int64) (*services.SpeciesListPreview, error)
	ImportSpeciesList(ctx context.Context, site *models.Site, docID, fileID, vegetationTypeID int64) (*services.ImportResult, error)
}

// DocumentRequest is the control panel document form
type DocumentRequest struct {
	Name        string         `form:"name" json:"name"`
	Author      string         `form:"author" json:"author"`
	URL         string         `form:"url" json:"url"`
	DocType     models.DocType `form:"doc_type" json:"doc_type"`
	Description string         `form:"description" json:"description"`
	IsActive    bool           `form:"is_active" json:"is_active"`
}

type importRequest struct {
	VegetationType int64 `form:"vegetation_type" json:"vegetation_type" binding:"required"`
}

// DocumentHandler serves documents and species list imports
type DocumentHandler struct {
	documents DocumentAPI
	lists     SpeciesListAPI
}

// NewDocumentHandler creates a new DocumentHandler instance
func NewDocumentHandler(documents DocumentAPI, lists SpeciesListAPI) *DocumentHandler {
	return &DocumentHandler{documents: documents, lists: lists}
}

// RegisterControlPanel adds the document routes
func (h *DocumentHandler) RegisterControlPanel(r gin.IRouter) {
	r.GET("/documents", h.HandleList)
	r.POST("/documents", h.HandleSave)
	r.GET("/documents/:id", h.HandleDetail)
	r.POST("/documents/:id", h.HandleSave)
	r.GET("/documents/:id/species", h.HandlePreviewSpecies)
	r.POST("/documents/:id/species", h.HandleImportSpecies)
}

// HandleList lists the site's documents, optionally of the type in the query
func (h *DocumentHandler) HandleList(c *gin.Context) {
	docType := models.DocType(c.Query("type"))
	if docType != "" && !docType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
		return
	}
	docs, err := h.documents.List(c.Request.Context(), middleware.Site(c), docType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// HandleDetail shows a document with its files
func (h *DocumentHandler) HandleDetail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.documents.Detail(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// HandleSave creates a document, or updates the one in the path
func (h *DocumentHandler) HandleSave(c *gin.Context) {
	var id int64
	if c.Param("id") != "" {
		var ok bool
		if id, ok = idParam(c, "id"); !ok {
			return
		}
	}
	var req DocumentRequest
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

	d, err := h.documents.Save(c.Request.Context(), middleware.Site(c), id, services.DocumentForm{
		Name:        req.Name,
		Author:      req.Author,
		URL:         req.URL,
		DocType:     req.DocType,
		Description: req.Description,
		IsActive:    req.IsActive,
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

// fileParam parses the required file query parameter
func fileParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("file"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
		return 0, false
	}
	return id, true
}

// HandlePreviewSpecies shows which names of an uploaded list are known
func (h *DocumentHandler) HandlePreviewSpecies(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	fileID, ok := fileParam(c)
	if !ok {
		return
	}
	preview, err := h.lists.PreviewSpeciesList(c.Request.Context(), id, fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// HandleImportSpecies links the names of an uploaded list to a vegetation type
func (h *DocumentHandler) HandleImportSpecies(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	fileID, ok := fileParam(c)
	if !ok {
		return
	}
	var req importRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.lists.ImportSpeciesList(c.Request.Context(), middleware.Site(c), id, fileID, req.VegetationType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
