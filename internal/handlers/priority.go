package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/services"
)

// PriorityAPI rebuilds the derived layers of the priority map
type PriorityAPI interface {
	MarkPoorQualityRivers(ctx context.Context) (int, error)
	RebuildBuffers(ctx context.Context) ([]string, error)
	CalculateDifference(ctx context.Context) error
	Layers(ctx context.Context) (*services.PriorityLayers, error)
}

// PriorityHandler serves the priority map tools of the control panel
type PriorityHandler struct {
	priority PriorityAPI
}

// NewPriorityHandler creates a new PriorityHandler instance
func NewPriorityHandler(priority PriorityAPI) *PriorityHandler {
	return &PriorityHandler{priority: priority}
}

// RegisterControlPanel adds the priority map routes
func (h *PriorityHandler) RegisterControlPanel(r gin.IRouter) {
	r.GET("/priority", h.HandleLayers)
	r.POST("/priority/mark-rivers", h.HandleMarkRivers)
	r.POST("/priority/rebuild", h.HandleRebuild)
	r.POST("/priority/difference", h.HandleDifference)
}

// HandleLayers returns the geometries of the priority map
func (h *PriorityHandler) HandleLayers(c *gin.Context) {
	layers, err := h.priority.Layers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, layers)
}

// HandleMarkRivers flags the rivers of poor quality
func (h *PriorityHandler) HandleMarkRivers(c *gin.Context) {
	n, err := h.priority.MarkPoorQualityRivers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// HandleRebuild regenerates the buffer layers
func (h *PriorityHandler) HandleRebuild(c *gin.Context) {
	messages, err := h.priority.RebuildBuffers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// HandleDifference subtracts the river buffer from the bionet buffer
func (h *PriorityHandler) HandleDifference(c *gin.Context) {
	if err := h.priority.CalculateDifference(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "The priority map was updated."})
}
