package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/auth"
	"corridor-platform/internal/services"
	"corridor-platform/internal/store"
)

// statusOf maps service and store errors to HTTP statuses
func statusOf(err error) int {
	var verr *services.ValidationError
	var inatErr *services.INatError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &inatErr):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, services.ErrGardenNotFound),
		errors.Is(err, services.ErrNoGarden),
		errors.Is(err, services.ErrUnknownManager),
		errors.Is(err, services.ErrUnknownLayer),
		errors.Is(err, services.ErrNoWikipedia),
		errors.Is(err, services.ErrNoVegetationType):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrExpiredToken):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotShapefile),
		errors.Is(err, services.ErrMissingNameColumn):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoShapefileInfo):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error. Unexpected errors are attached to
// the context for the request log and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		body["error"] = verr.Message
		body["field"] = verr.Field
	}
	var inatErr *services.INatError
	if errors.As(err, &inatErr) {
		body["error"] = inatErr.Message
	}
	c.JSON(status, body)
}

// badRequest rejects a request that could not be parsed
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}

// idParam parses a positive integer path parameter
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// optionalFloat parses an optional float query parameter
func optionalFloat(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &v, true
}

// location parses the required lat and lng query parameters
func location(c *gin.Context) (float64, float64, bool) {
	lat, ok := optionalFloat(c, "lat")
	if !ok {
		return 0, 0, false
	}
	lng, ok := optionalFloat(c, "lng")
	if !ok {
		return 0, 0, false
	}
	if lat == nil || lng == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return 0, 0, false
	}
	return *lat, *lng, true
}

// download sends data as a file attachment
func download(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+sanitizeFilename(filename)+`"`)
	c.Data(http.StatusOK, contentType, data)
}

func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r == '/' || r < 0x20:
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "download"
	}
	return string(out)
}
