package handlers

import (
	"github.com/gin-gonic/gin"

	"corridor-platform/internal/middleware"
)

// Handlers groups every handler of the platform
type Handlers struct {
	Maps       *MapHandler
	Gardens    *GardenHandler
	Pages      *PageHandler
	Shapefiles *ShapefileHandler
	Documents  *DocumentHandler
	Species    *SpeciesHandler
	Priority   *PriorityHandler
	Site       *SiteHandler
}

// StaffGate identifies staff on public routes and guards the control panel
type StaffGate interface {
	Identify() gin.HandlerFunc
	Required() gin.HandlerFunc
}

// RegisterRoutes adds the public routes and the /controlpanel group.
// Control panel routes need a staff session and a resolved site.
func RegisterRoutes(r gin.IRouter, h Handlers, staff StaffGate) {
	public := r.Group("/", staff.Identify())
	h.Site.Register(public)
	h.Maps.Register(public)
	h.Gardens.Register(public)
	h.Pages.Register(public)
	h.Shapefiles.Register(public)

	cp := r.Group("/controlpanel", staff.Required(), middleware.RequireSite())
	h.Site.RegisterControlPanel(cp)
	h.Gardens.RegisterControlPanel(cp)
	h.Pages.RegisterControlPanel(cp)
	h.Shapefiles.RegisterControlPanel(cp)
	h.Documents.RegisterControlPanel(cp)
	h.Species.RegisterControlPanel(cp)
	h.Priority.RegisterControlPanel(cp)
}
