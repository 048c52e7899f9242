package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/auth"
	"corridor-platform/internal/middleware"
	"corridor-platform/internal/models"
	"corridor-platform/internal/services"
)

// PageAPI manages CMS pages
type PageAPI interface {
	Get(ctx context.Context, site *models.Site, slug string, staff bool) (*models.Page, string, error)
	List(ctx context.Context, site *models.Site, kind models.PageType, activeOnly bool) ([]models.Page, error)
	Save(ctx context.Context, site *models.Site, id int64, form services.PageForm, user string) (*models.Page, error)
}

// PageRequest is the control panel page form
type PageRequest struct {
	Name     string            `form:"name" json:"name"`
	Content  string            `form:"content" json:"content"`
	Slug     string            `form:"slug" json:"slug"`
	Type     models.PageType   `form:"page_type" json:"page_type"`
	Format   models.PageFormat `form:"format" json:"format"`
	IsActive bool              `form:"is_active" json:"is_active"`
	Position int               `form:"position" json:"position"`
	Date     string            `form:"date" json:"date"`
}

// PageHandler serves CMS pages
type PageHandler struct {
	pages PageAPI
}

// NewPageHandler creates a new PageHandler instance
func NewPageHandler(pages PageAPI) *PageHandler {
	return &PageHandler{pages: pages}
}

// Register adds the public page routes
func (h *PageHandler) Register(r gin.IRouter) {
	r.GET("/pages/:slug", h.HandlePage)
	r.GET("/about/:slug", h.HandlePage)
	r.GET("/blog", middleware.RequireSite(), h.HandleBlog)
	r.GET("/blog/:slug", h.HandlePage)
	r.GET("/targets", middleware.RequireSite(), h.listOf(models.PageTarget))
	r.GET("/features", middleware.RequireSite(), h.listOf(models.PageFeatures))
}

// RegisterControlPanel adds the staff page routes
func (h *PageHandler) RegisterControlPanel(r gin.IRouter) {
	r.GET("/pages", h.HandleStaffList)
	r.POST("/pages", h.HandleSave)
	r.POST("/pages/:id", h.HandleSave)
}

// HandlePage shows a page. Staff see unpublished pages with a warning.
func (h *PageHandler) HandlePage(c *gin.Context) {
	p, warning, err := h.pages.Get(c.Request.Context(), middleware.Site(c), c.Param("slug"), auth.StaffUser(c) != "")
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"page": p}
	if warning != "" {
		body["warning"] = warning
	}
	c.JSON(http.StatusOK, body)
}

// HandleBlog lists the published blog posts
func (h *PageHandler) HandleBlog(c *gin.Context) {
	h.listOf(models.PageBlog)(c)
}

func (h *PageHandler) listOf(kind models.PageType) gin.HandlerFunc {
	return func(c *gin.Context) {
		pages, err := h.pages.List(c.Request.Context(), middleware.Site(c), kind, true)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pages": pages})
	}
}

// HandleStaffList lists the site's pages, optionally of the type in the query
func (h *PageHandler) HandleStaffList(c *gin.Context) {
	var kind models.PageType
	if raw := c.Query("type"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
			return
		}
		kind = models.PageType(n)
	}
	pages, err := h.pages.List(c.Request.Context(), middleware.Site(c), kind, false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

// HandleSave creates a page, or updates the one in the path
func (h *PageHandler) HandleSave(c *gin.Context) {
	var id int64
	if c.Param("id") != "" {
		var ok bool
		if id, ok = idParam(c, "id"); !ok {
			return
		}
	}
	var req PageRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	form := services.PageForm{
		Name:     req.Name,
		Content:  req.Content,
		Slug:     req.Slug,
		Type:     req.Type,
		Format:   req.Format,
		IsActive: req.IsActive,
		Position: req.Position,
	}
	if req.Date != "" {
		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date", "field": "date"})
			return
		}
		form.Date = &date
	}
	p, err := h.pages.Save(c.Request.Context(), middleware.Site(c), id, form, auth.StaffUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"page": p, "message": "Information was saved."})
}
