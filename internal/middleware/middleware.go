// Package middleware holds the gin middleware shared by every route.
package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

const (
	// HeaderRequestID carries the request id in and out
	HeaderRequestID = "X-Request-ID"
	// SiteCookie overrides the site picked from the Host header
	SiteCookie = "site"

	contextKeyRequestID = "request_id"
	contextKeySite      = "site"
)

// SiteStore looks sites up by id and by host
type SiteStore interface {
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	GetSiteByURL(ctx context.Context, host string) (*models.Site, error)
}

// RequestID adds a unique request id to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// Logging writes one structured entry per request
func Logging(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := logger.WithFields(logging.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"request_id": c.GetString(contextKeyRequestID),
		})
		if site := Site(c); site != nil {
			entry = entry.WithField("site_id", site.ID)
		}
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("HTTP request")
			return
		}
		entry.Info("HTTP request")
	}
}

// Recovery turns a handler panic into a 500 response
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logging.Fields{
					"error":      err,
					"client_ip":  c.ClientIP(),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"request_id": c.GetString(contextKeyRequestID),
				}).Error("Request handler panic")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()

		c.Next()
	}
}

// ResolveSite finds the site of the request: the one named by the site
// cookie, else the one served on the request host. Requests matching no
// site continue without one.
func ResolveSite(sites SiteStore, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		site, err := lookupSite(c, sites)
		switch {
		case err == nil:
			c.Set(contextKeySite, site)
		case !errors.Is(err, store.ErrNotFound):
			logger.WithError(err).WithField("host", c.Request.Host).Warn("Could not resolve site")
		}
		c.Next()
	}
}

func lookupSite(c *gin.Context, sites SiteStore) (*models.Site, error) {
	ctx := c.Request.Context()
	if raw, err := c.Cookie(SiteCookie); err == nil && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, store.ErrNotFound
		}
		return sites.GetSite(ctx, id)
	}
	host := c.Request.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return nil, store.ErrNotFound
	}
	return sites.GetSiteByURL(ctx, strings.ToLower(host))
}

// Site returns the site resolved for the request, or nil
func Site(c *gin.Context) *models.Site {
	v, ok := c.Get(contextKeySite)
	if !ok {
		return nil
	}
	site, _ := v.(*models.Site)
	return site
}

// RequireSite rejects requests for which no site could be resolved
func RequireSite() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Site(c) == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "site not found"})
			return
		}
		c.Next()
	}
}

// RequestIDOf returns the request id set by RequestID
func RequestIDOf(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
