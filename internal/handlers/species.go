package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/clients"
	"corridor-platform/internal/middleware"
	"corridor-platform/internal/models"
)

// SpeciesAPI manages species and their external profiles
type SpeciesAPI interface {
	List(ctx context.Context, site *models.Site) ([]models.Species, error)
	FetchTaxa(ctx context.Context, id int64) (*models.Species, error)
	FetchWikipedia(ctx context.Context, id int64) (*clients.Summary, error)
}

// SpeciesHandler serves the species tools of the control panel
type SpeciesHandler struct {
	species SpeciesAPI
}

// NewSpeciesHandler creates a new SpeciesHandler instance
func NewSpeciesHandler(species SpeciesAPI) *SpeciesHandler {
	return &SpeciesHandler{species: species}
}

// RegisterControlPanel adds the species routes
func (h *SpeciesHandler) RegisterControlPanel(r gin.IRouter) {
	r.GET("/species", h.HandleList)
	r.POST("/species/:id/inat", h.HandleTaxa)
	r.POST("/species/:id/wikipedia", h.HandleWikipedia)
}

// HandleList lists the species of the site
func (h *SpeciesHandler) HandleList(c *gin.Context) {
	species, err := h.species.List(c.Request.Context(), middleware.Site(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"species": species})
}

// HandleTaxa loads the taxonomy and photos of a species from iNaturalist
func (h *SpeciesHandler) HandleTaxa(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sp, err := h.species.FetchTaxa(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"species": sp, "message": "Information was retrieved from iNaturalist."})
}

// HandleWikipedia returns the Wikipedia summary of a species
func (h *SpeciesHandler) HandleWikipedia(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	summary, err := h.species.FetchWikipedia(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
