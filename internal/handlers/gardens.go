package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/auth"
	"corridor-platform/internal/middleware"
	"corridor-platform/internal/models"
	"corridor-platform/internal/services"
)

// plannerCookieAge keeps the planner cookies for a year
const plannerCookieAge = 365 * 24 * 60 * 60

// GardenAPI is the garden side of the platform
type GardenAPI interface {
	List(ctx context.Context, site *models.Site) ([]models.Garden, error)
	ListAll(ctx context.Context, site *models.Site) ([]models.Garden, error)
	View(ctx context.Context, id int64, staff bool, gardenUUID string) (*services.GardenView, error)
	Resolve(ctx context.Context, id int64, owner string, c services.GardenCookies) (*models.Garden, error)
	Submit(ctx context.Context, site *models.Site, form services.GardenForm) (*models.Garden, error)
	StartPlanner(ctx context.Context, site *models.Site, name string) (*models.Garden, services.GardenCookies, error)
	SetLocation(ctx context.Context, g *models.Garden, lat, lng float64) error
	AddTargets(ctx context.Context, site *models.Site, g *models.Garden, pageIDs []int64) error
	AddSiteFeatures(ctx context.Context, site *models.Site, g *models.Garden, pageIDs []int64) error
	RequestManagerLink(ctx context.Context, gardenID int64, address string) error
	ManagedGarden(ctx context.Context, gardenUUID, token string) (*models.Garden, *models.GardenManager, error)
	UpdateWithToken(ctx context.Context, site *models.Site, gardenUUID, token string, form services.GardenForm) (*models.Garden, error)
	Save(ctx context.Context, site *models.Site, id int64, form services.StaffGardenForm, user string) (*models.Garden, error)
	Activate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// GardenRequest is the public garden form
type GardenRequest struct {
	Name         string              `form:"name" json:"name"`
	Description  string              `form:"description" json:"description"`
	Lat          *float64            `form:"lat" json:"lat"`
	Lng          *float64            `form:"lng" json:"lng"`
	YourName     string              `form:"your_name" json:"your_name"`
	Email        string              `form:"email" json:"email"`
	Phone        string              `form:"phone" json:"phone"`
	Assessment   *models.PhaseStatus `form:"phase_assessment" json:"phase_assessment"`
	AlienRemoval *models.PhaseStatus `form:"phase_alienremoval" json:"phase_alienremoval"`
	Landscaping  *models.PhaseStatus `form:"phase_landscaping" json:"phase_landscaping"`
	Pioneers     *models.PhaseStatus `form:"phase_pioneers" json:"phase_pioneers"`
	BirdsInsects *models.PhaseStatus `form:"phase_birdsinsects" json:"phase_birdsinsects"`
	Specialists  *models.PhaseStatus `form:"phase_specialists" json:"phase_specialists"`
	Placemaking  *models.PhaseStatus `form:"phase_placemaking" json:"phase_placemaking"`
}

func (r *GardenRequest) form() services.GardenForm {
	original := map[string]any{
		"name":        r.Name,
		"description": r.Description,
		"your_name":   r.YourName,
		"email":       r.Email,
		"phone":       r.Phone,
	}
	if r.Lat != nil && r.Lng != nil {
		original["lat"] = *r.Lat
		original["lng"] = *r.Lng
	}
	return services.GardenForm{
		Name:        r.Name,
		Description: r.Description,
		GardenPhases: models.GardenPhases{
			Assessment:   r.Assessment,
			AlienRemoval: r.AlienRemoval,
			Landscaping:  r.Landscaping,
			Pioneers:     r.Pioneers,
			BirdsInsects: r.BirdsInsects,
			Specialists:  r.Specialists,
			Placemaking:  r.Placemaking,
		},
		Lat:      r.Lat,
		Lng:      r.Lng,
		YourName: r.YourName,
		Email:    r.Email,
		Phone:    r.Phone,
		Original: original,
	}
}

// StaffGardenRequest is the control panel garden form
type StaffGardenRequest struct {
	Name         string `form:"name" json:"name"`
	Description  string `form:"description" json:"description"`
	ContactName  string `form:"contact_name" json:"contact_name"`
	ContactEmail string `form:"contact_email" json:"contact_email"`
	ContactPhone string `form:"contact_phone" json:"contact_phone"`
	IsActive     bool   `form:"is_active" json:"is_active"`
}

type plannerRequest struct {
	Garden string `form:"garden" json:"garden"`
}

type locationRequest struct {
	Lat *float64 `form:"lat" json:"lat" binding:"required"`
	Lng *float64 `form:"lng" json:"lng" binding:"required"`
}

type pagesRequest struct {
	Pages []int64 `form:"pages" json:"pages"`
}

type managerLinkRequest struct {
	Email string `form:"email" json:"email" binding:"required"`
}

// GardenHandler serves the garden directory, the planner and the manager links
type GardenHandler struct {
	gardens GardenAPI
}

// NewGardenHandler creates a new GardenHandler instance
func NewGardenHandler(gardens GardenAPI) *GardenHandler {
	return &GardenHandler{gardens: gardens}
}

// Register adds the public garden routes
func (h *GardenHandler) Register(r gin.IRouter) {
	site := middleware.RequireSite()
	r.GET("/gardens", site, h.HandleList)
	r.POST("/gardens", site, h.HandleSubmit)
	r.GET("/gardens/:id", h.HandleView)
	r.POST("/gardens/:id/manager", h.HandleManagerLink)
	r.GET("/gardens/edit/:uuid/:token", h.HandleManagedGarden)
	r.POST("/gardens/edit/:uuid/:token", site, h.HandleManagedUpdate)
	r.POST("/planner", site, h.HandleStartPlanner)
	r.GET("/planner/:id", h.HandlePlanner)
	r.POST("/planner/:id/location", h.HandleLocation)
	r.POST("/planner/:id/targets", site, h.HandleTargets)
	r.POST("/planner/:id/features", site, h.HandleFeatures)
}

// RegisterControlPanel adds the staff garden routes
func (h *GardenHandler) RegisterControlPanel(r gin.IRouter) {
	r.GET("/gardens", h.HandleStaffList)
	r.POST("/gardens", h.HandleStaffSave)
	r.POST("/gardens/:id", h.HandleStaffSave)
	r.POST("/gardens/:id/activate", h.HandleActivate)
	r.DELETE("/gardens/:id", h.HandleDelete)
}

// HandleList lists the active gardens of the site
func (h *GardenHandler) HandleList(c *gin.Context) {
	gardens, err := h.gardens.List(c.Request.Context(), middleware.Site(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gardens": gardens})
}

// HandleView shows a garden; inactive gardens need staff or the uuid query
func (h *GardenHandler) HandleView(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.gardens.View(c.Request.Context(), id, auth.StaffUser(c) != "", c.Query("uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleSubmit stores a garden sent in by a visitor
func (h *GardenHandler) HandleSubmit(c *gin.Context) {
	var req GardenRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.gardens.Submit(c.Request.Context(), middleware.Site(c), req.form())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"garden": g, "message": services.GardenReceived})
}

// HandleManagerLink mails an edit link to a registered manager
func (h *GardenHandler) HandleManagerLink(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req managerLinkRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.gardens.RequestManagerLink(c.Request.Context(), id, req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": services.ManagerLinkSent})
}

// HandleManagedGarden returns the garden an edit link opens. An expired
// link reports the garden id so a new link can be requested.
func (h *GardenHandler) HandleManagedGarden(c *gin.Context) {
	g, m, err := h.gardens.ManagedGarden(c.Request.Context(), c.Param("uuid"), c.Param("token"))
	if errors.Is(err, services.ErrExpiredToken) && m != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "garden_id": m.GardenID})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"garden": g, "manager": m})
}

// HandleManagedUpdate saves a manager's changes made through an edit link
func (h *GardenHandler) HandleManagedUpdate(c *gin.Context) {
	var req GardenRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.gardens.UpdateWithToken(c.Request.Context(), middleware.Site(c), c.Param("uuid"), c.Param("token"), req.form())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"garden": g, "message": "Information was saved."})
}

func setPlannerCookies(c *gin.Context, cookies services.GardenCookies) {
	c.SetSameSite(http.SameSiteLaxMode)
	secure := c.Request.TLS != nil
	c.SetCookie(services.CookieGardenID, strconv.FormatInt(cookies.ID, 10), plannerCookieAge, "/", "", secure, true)
	c.SetCookie(services.CookieGardenUUID, cookies.UUID, plannerCookieAge, "/", "", secure, true)
}

func plannerCookies(c *gin.Context) services.GardenCookies {
	var cookies services.GardenCookies
	if raw, err := c.Cookie(services.CookieGardenID); err == nil {
		cookies.ID, _ = strconv.ParseInt(raw, 10, 64)
	}
	cookies.UUID, _ = c.Cookie(services.CookieGardenUUID)
	return cookies
}

// HandleStartPlanner creates an anonymous planner garden
func (h *GardenHandler) HandleStartPlanner(c *gin.Context) {
	var req plannerRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, cookies, err := h.gardens.StartPlanner(c.Request.Context(), middleware.Site(c), req.Garden)
	if err != nil {
		respondError(c, err)
		return
	}
	setPlannerCookies(c, cookies)
	c.JSON(http.StatusCreated, gin.H{"garden": g})
}

// resolve returns the planner garden the visitor may work on
func (h *GardenHandler) resolve(c *gin.Context) (*models.Garden, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	g, err := h.gardens.Resolve(c.Request.Context(), id, auth.StaffUser(c), plannerCookies(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return g, true
}

// HandlePlanner returns the visitor's planner garden
func (h *GardenHandler) HandlePlanner(c *gin.Context) {
	g, ok := h.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"garden": g})
}

// HandleLocation places the planner garden on the map
func (h *GardenHandler) HandleLocation(c *gin.Context) {
	g, ok := h.resolve(c)
	if !ok {
		return
	}
	var req locationRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.gardens.SetLocation(c.Request.Context(), g, *req.Lat, *req.Lng); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"garden": g})
}

// HandleTargets links target species pages to the planner garden
func (h *GardenHandler) HandleTargets(c *gin.Context) {
	h.addPages(c, h.gardens.AddTargets)
}

// HandleFeatures links site feature pages to the planner garden
func (h *GardenHandler) HandleFeatures(c *gin.Context) {
	h.addPages(c, h.gardens.AddSiteFeatures)
}

func (h *GardenHandler) addPages(c *gin.Context, add func(context.Context, *models.Site, *models.Garden, []int64) error) {
	g, ok := h.resolve(c)
	if !ok {
		return
	}
	var req pagesRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := add(c.Request.Context(), middleware.Site(c), g, req.Pages); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleStaffList lists every garden of the site
func (h *GardenHandler) HandleStaffList(c *gin.Context) {
	gardens, err := h.gardens.ListAll(c.Request.Context(), middleware.Site(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gardens": gardens})
}

// HandleStaffSave creates a garden, or updates the one in the path
func (h *GardenHandler) HandleStaffSave(c *gin.Context) {
	var id int64
	if c.Param("id") != "" {
		var ok bool
		if id, ok = idParam(c, "id"); !ok {
			return
		}
	}
	var req StaffGardenRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.gardens.Save(c.Request.Context(), middleware.Site(c), id, services.StaffGardenForm{
		Name:         req.Name,
		Description:  req.Description,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		IsActive:     req.IsActive,
	}, auth.StaffUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"garden": g, "message": "Information was saved."})
}

// HandleActivate publishes a garden
func (h *GardenHandler) HandleActivate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.gardens.Activate(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Garden was activated."})
}

// HandleDelete removes a garden
func (h *GardenHandler) HandleDelete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.gardens.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
