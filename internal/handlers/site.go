package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/auth"
	"corridor-platform/internal/middleware"
	"corridor-platform/internal/models"
)

// defaultLogLimit is how many log entries the control panel shows
const defaultLogLimit = 50

// SiteAPI holds the site wide records behind the public pages
type SiteAPI interface {
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	Subscribe(ctx context.Context, email string) error
	ListLogs(ctx context.Context, limit int) ([]models.LogEntry, error)
}

// Authenticator logs staff in and out
type Authenticator interface {
	Login(username, password string) (string, time.Time, error)
	SetCookie(c *gin.Context, token string)
	ClearCookie(c *gin.Context)
}

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type newsletterRequest struct {
	Email string `form:"email" json:"email" binding:"required"`
}

// SiteHandler serves site selection, newsletter sign-up, staff sessions and
// the activity log
type SiteHandler struct {
	sites SiteAPI
	staff Authenticator
}

// NewSiteHandler creates a new SiteHandler instance
func NewSiteHandler(sites SiteAPI, staff Authenticator) *SiteHandler {
	return &SiteHandler{sites: sites, staff: staff}
}

// Register adds the public site routes
func (h *SiteHandler) Register(r gin.IRouter) {
	r.GET("/set-site", h.HandleSetSite)
	r.POST("/newsletter", h.HandleNewsletter)
	r.POST("/controlpanel/login", h.HandleLogin)
	r.POST("/controlpanel/logout", h.HandleLogout)
}

// RegisterControlPanel adds the staff site routes
func (h *SiteHandler) RegisterControlPanel(r gin.IRouter) {
	r.GET("/logs", h.HandleLogs)
}

// localRedirect only accepts paths on this host
func localRedirect(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return raw
}

// HandleSetSite stores the chosen site in a cookie and redirects back
func (h *SiteHandler) HandleSetSite(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("site"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site"})
		return
	}
	site, err := h.sites.GetSite(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SiteCookie, strconv.FormatInt(site.ID, 10), 365*24*60*60, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, localRedirect(c.Query("redirect")))
}

// HandleNewsletter adds an address to the newsletter list
func (h *SiteHandler) HandleNewsletter(c *gin.Context) {
	var req newsletterRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Enter a valid email address.", "field": "email"})
		return
	}
	if err := h.sites.Subscribe(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Thanks, you are now subscribed to our newsletter."})
}

// HandleLogin starts a staff session
func (h *SiteHandler) HandleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, expires, err := h.staff.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		respondError(c, err)
		return
	}
	h.staff.SetCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expires})
}

// HandleLogout ends the staff session
func (h *SiteHandler) HandleLogout(c *gin.Context) {
	h.staff.ClearCookie(c)
	c.Status(http.StatusNoContent)
}

// HandleLogs lists the latest control panel activity
func (h *SiteHandler) HandleLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	logs, err := h.sites.ListLogs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
