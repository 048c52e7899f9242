package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"corridor-platform/internal/config"
	"corridor-platform/internal/email"
	"corridor-platform/internal/geo"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// Cookies identifying a planner garden of an anonymous visitor
const (
	CookieGardenID   = "garden_id"
	CookieGardenUUID = "garden_uuid"
)

// ManagerTokenTTL is how long an e-mailed edit link stays valid
const ManagerTokenTTL = 30 * 24 * time.Hour

// GardenReceived is shown after a visitor submitted a garden
const GardenReceived = "Thanks! We have received your garden details. We will review this and get back to you (might take a week or so, please stay tuned)."

// ManagerLinkSent is shown after an edit link was mailed
const ManagerLinkSent = "We have send you an e-mail link to modify the garden information. Please check your Notifications or Spam folder if you don't see this."

// gardenPhotos is how many photos a garden page shows
const gardenPhotos = 12

// GardenMailer sends the garden notifications
type GardenMailer interface {
	SendNewGarden(ctx context.Context, site *models.Site, data email.NewGardenMail) error
	SendGardenUpdate(ctx context.Context, site *models.Site, data email.GardenUpdateMail) error
	SendManageGarden(ctx context.Context, manager *models.GardenManager, data email.ManageGardenMail) error
}

// GardenCookies are the planner cookies sent by the browser
type GardenCookies struct {
	ID   int64
	UUID string
}

// GardenForm is the public garden form
type GardenForm struct {
	Name        string
	Description string
	models.GardenPhases
	Lat, Lng *float64
	// Submitter contact, only mailed
	YourName string
	Email    string
	Phone    string
	// Original is the raw submitted form, kept with new gardens
	Original map[string]any
}

// StaffGardenForm is the control panel garden form
type StaffGardenForm struct {
	Name         string
	Description  string
	ContactName  string
	ContactEmail string
	ContactPhone string
	IsActive     bool
}

// GardenView is a garden with its latest photos
type GardenView struct {
	Garden *models.Garden `json:"info"`
	Photos []models.Photo `json:"photos"`
	Center *[2]float64    `json:"center,omitempty"`
}

// GardenService runs the garden submission, planner and manager workflows
type GardenService struct {
	store         GardenStore
	mailer        GardenMailer
	cache         LayerCache
	layers        config.Layers
	publicBaseURL string
	logger        logging.Logger
	now           func() time.Time
}

// NewGardenService creates a new GardenService instance
func NewGardenService(st GardenStore, mailer GardenMailer, cache LayerCache, layers config.Layers, publicBaseURL string, logger logging.Logger) *GardenService {
	return &GardenService{
		store:         st,
		mailer:        mailer,
		cache:         cache,
		layers:        layers,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
		now:           time.Now,
	}
}

// invalidate drops the cached map layer of the garden source document
func (s *GardenService) invalidate(ctx context.Context, source *int64) {
	if s.cache == nil || source == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, *source); err != nil {
		s.logger.WithError(err).WithField("document_id", *source).Warn("Could not invalidate layer cache")
	}
}

// Resolve returns the garden a visitor may plan with: one owned by the staff
// user, or the user-created unowned garden named by the planner cookies
func (s *GardenService) Resolve(ctx context.Context, id int64, owner string, c GardenCookies) (*models.Garden, error) {
	if owner != "" {
		gardens, err := s.store.ListGardens(ctx, store.GardenFilter{Owner: owner})
		if err != nil {
			return nil, err
		}
		for i := range gardens {
			if gardens[i].ID == id {
				return &gardens[i], nil
			}
		}
	}
	if c.ID != 0 && c.UUID != "" {
		g, err := s.store.GetGarden(ctx, c.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if g != nil && g.IsUserCreated && g.Owner == "" && g.UUID == c.UUID {
			return g, nil
		}
	}
	if id == 0 {
		return nil, ErrNoGarden
	}
	return nil, ErrGardenNotFound
}

// List returns the active gardens of a site
func (s *GardenService) List(ctx context.Context, site *models.Site) ([]models.Garden, error) {
	yes := true
	return s.store.ListGardens(ctx, store.GardenFilter{SiteID: &site.ID, Active: &yes})
}

// ListAll returns every garden of a site for the control panel
func (s *GardenService) ListAll(ctx context.Context, site *models.Site) ([]models.Garden, error) {
	return s.store.ListGardens(ctx, store.GardenFilter{SiteID: &site.ID})
}

// View returns a garden page. Inactive gardens are only shown to staff or
// to whoever holds the garden's uuid.
func (s *GardenService) View(ctx context.Context, id int64, staff bool, gardenUUID string) (*GardenView, error) {
	g, err := s.store.GetGarden(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGardenNotFound
	}
	if err != nil {
		return nil, err
	}
	if !g.IsActive && !staff && (gardenUUID == "" || gardenUUID != g.UUID) {
		return nil, ErrGardenNotFound
	}

	photos, err := s.store.ListPhotos(ctx, store.PhotoFilter{GardenID: &g.ID})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(photos, func(a, b models.Photo) int {
		return b.UploadDate.Compare(a.UploadDate)
	})
	if len(photos) > gardenPhotos {
		photos = photos[:gardenPhotos]
	}

	view := &GardenView{Garden: g, Photos: photos}
	if g.Geometry != nil && !g.Geometry.Empty() {
		if c, err := geo.Centroid(g.Geometry); err == nil {
			view.Center = &[2]float64{c.Y(), c.X()}
		}
	}
	return view, nil
}

func (f *GardenForm) validate() error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return invalid("name", "This field is required.")
	}
	for _, p := range []*models.PhaseStatus{
		f.Assessment, f.AlienRemoval, f.Landscaping, f.Pioneers,
		f.BirdsInsects, f.Specialists, f.Placemaking,
	} {
		if p != nil && !p.Valid() {
			return invalid("phase", "Select a valid choice. %d is not one of the available choices.", int(*p))
		}
	}
	return nil
}

func (f *GardenForm) apply(g *models.Garden) {
	g.Name = f.Name
	g.Description = f.Description
	g.GardenPhases = f.GardenPhases
}

// locate moves g to the given point and looks up its vegetation type
func (s *GardenService) locate(ctx context.Context, g *models.Garden, lat, lng float64) error {
	point := geo.Point(lng, lat)
	g.Geometry = point
	g.VegetationTypeID = nil

	sp, err := s.store.SpaceAt(ctx, s.layers.VegetationMap, point)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	types, err := s.store.VegetationTypesOfSpace(ctx, sp.ID)
	if err != nil {
		return err
	}
	if len(types) > 0 {
		g.VegetationTypeID = &types[0].ID
	}
	return nil
}

// Submit stores a garden sent in by a visitor. The garden stays inactive
// until staff review it; the site is notified by e-mail.
func (s *GardenService) Submit(ctx context.Context, site *models.Site, form GardenForm) (*models.Garden, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}
	source := s.layers.GardensSource
	g := &models.Garden{
		ReferenceSpace: models.ReferenceSpace{SourceID: &source},
		UUID:           uuid.NewString(),
		SiteID:         site.ID,
		Original:       form.Original,
	}
	form.apply(g)
	if form.Lat != nil && form.Lng != nil {
		if err := s.locate(ctx, g, *form.Lat, *form.Lng); err != nil {
			return nil, err
		}
	}
	if err := s.store.CreateGarden(ctx, g); err != nil {
		return nil, err
	}
	s.invalidate(ctx, g.SourceID)

	err := s.mailer.SendNewGarden(ctx, site, email.NewGardenMail{
		Garden:   g,
		Uploader: form.YourName,
		Email:    form.Email,
		Phone:    form.Phone,
		Link:     fmt.Sprintf("%s/gardens/%d/?uuid=%s", s.publicBaseURL, g.ID, g.UUID),
	})
	if err != nil {
		s.logger.WithError(err).WithField("garden", g.ID).Error("Failed to send new garden mail")
	}
	return g, nil
}

// StartPlanner creates an anonymous planner garden and returns the cookies
// that give the visitor access to it
func (s *GardenService) StartPlanner(ctx context.Context, site *models.Site, name string) (*models.Garden, GardenCookies, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, GardenCookies{}, invalid("garden", "This field is required.")
	}
	g := &models.Garden{
		ReferenceSpace: models.ReferenceSpace{Name: name},
		UUID:           uuid.NewString(),
		IsUserCreated:  true,
		SiteID:         site.ID,
	}
	if err := s.store.CreateGarden(ctx, g); err != nil {
		return nil, GardenCookies{}, err
	}
	return g, GardenCookies{ID: g.ID, UUID: g.UUID}, nil
}

// SetLocation places a garden at a point and stores the vegetation type found there
func (s *GardenService) SetLocation(ctx context.Context, g *models.Garden, lat, lng float64) error {
	if err := s.locate(ctx, g, lat, lng); err != nil {
		return err
	}
	if err := s.store.UpdateGarden(ctx, g); err != nil {
		return err
	}
	s.invalidate(ctx, g.SourceID)
	return nil
}

// AddTargets links target species pages of the site to a garden
func (s *GardenService) AddTargets(ctx context.Context, site *models.Site, g *models.Garden, pageIDs []int64) error {
	return s.addPages(ctx, site, g, models.PageTarget, pageIDs)
}

// AddSiteFeatures links site feature pages of the site to a garden
func (s *GardenService) AddSiteFeatures(ctx context.Context, site *models.Site, g *models.Garden, pageIDs []int64) error {
	return s.addPages(ctx, site, g, models.PageFeatures, pageIDs)
}

// addPages adds the pages of kind among pageIDs to the garden's existing ones.
// Ids of other kinds or sites are ignored.
func (s *GardenService) addPages(ctx context.Context, site *models.Site, g *models.Garden, kind models.PageType, pageIDs []int64) error {
	pages, err := s.store.ListPages(ctx, store.PageFilter{SiteID: &site.ID, Type: kind})
	if err != nil {
		return err
	}
	linked, err := s.store.ListGardenPages(ctx, g.ID, kind)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if slices.Contains(pageIDs, p.ID) && !slices.Contains(linked, p.ID) {
			linked = append(linked, p.ID)
		}
	}
	return s.store.SetGardenPages(ctx, g.ID, kind, linked)
}

// newToken returns a random url-safe token
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RequestManagerLink mails a 30-day edit link to a registered manager of a garden
func (s *GardenService) RequestManagerLink(ctx context.Context, gardenID int64, address string) error {
	g, err := s.store.GetGarden(ctx, gardenID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrGardenNotFound
	}
	if err != nil {
		return err
	}
	token, err := newToken()
	if err != nil {
		return err
	}
	m, err := s.store.SaveManagerToken(ctx, g.ID, strings.ToLower(strings.TrimSpace(address)), token, s.now().Add(ManagerTokenTTL))
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownManager
	}
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/gardens/edit/%s/%s", s.publicBaseURL, g.UUID, token)
	if err := s.mailer.SendManageGarden(ctx, m, email.ManageGardenMail{Name: m.Name, Garden: g.Name, Link: link}); err != nil {
		return fmt.Errorf("error sending garden link: %w", err)
	}
	return nil
}

// ManagedGarden returns the garden an edit link gives access to. An expired
// link returns the garden's manager together with ErrExpiredToken so the
// caller can offer a new link.
func (s *GardenService) ManagedGarden(ctx context.Context, gardenUUID, token string) (*models.Garden, *models.GardenManager, error) {
	m, err := s.store.GetManagerByToken(ctx, gardenUUID, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, err
	}
	if m.TokenExpirationDate == nil || m.TokenExpirationDate.Before(s.now()) {
		return nil, m, ErrExpiredToken
	}
	g, err := s.store.GetGarden(ctx, m.GardenID)
	if err != nil {
		return nil, nil, err
	}
	return g, m, nil
}

// UpdateWithToken saves a manager's changes made through an edit link and
// notifies the site
func (s *GardenService) UpdateWithToken(ctx context.Context, site *models.Site, gardenUUID, token string, form GardenForm) (*models.Garden, error) {
	g, m, err := s.ManagedGarden(ctx, gardenUUID, token)
	if err != nil {
		return nil, err
	}
	if err := form.validate(); err != nil {
		return nil, err
	}
	form.apply(g)
	if form.Lat != nil && form.Lng != nil {
		if err := s.locate(ctx, g, *form.Lat, *form.Lng); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateGarden(ctx, g); err != nil {
		return nil, err
	}
	s.invalidate(ctx, g.SourceID)

	if err := s.mailer.SendGardenUpdate(ctx, site, email.GardenUpdateMail{Garden: g, Manager: m}); err != nil {
		s.logger.WithError(err).WithField("garden", g.ID).Error("Failed to send garden update mail")
	}
	return g, nil
}

// Save creates or updates a garden from the control panel. id 0 creates one.
func (s *GardenService) Save(ctx context.Context, site *models.Site, id int64, form StaffGardenForm, user string) (*models.Garden, error) {
	form.Name = strings.TrimSpace(form.Name)
	if form.Name == "" {
		return nil, invalid("name", "This field is required.")
	}

	source := s.layers.GardensSource
	g := &models.Garden{
		ReferenceSpace: models.ReferenceSpace{SourceID: &source},
		UUID:           uuid.NewString(),
	}
	action := models.LogCreate
	if id != 0 {
		var err error
		if g, err = s.store.GetGarden(ctx, id); err != nil {
			return nil, err
		}
		action = models.LogUpdate
	}
	g.Name = form.Name
	g.Description = form.Description
	g.ContactName = form.ContactName
	g.ContactEmail = form.ContactEmail
	g.ContactPhone = form.ContactPhone
	g.IsActive = form.IsActive
	g.SiteID = site.ID

	var err error
	if id == 0 {
		err = s.store.CreateGarden(ctx, g)
	} else {
		err = s.store.UpdateGarden(ctx, g)
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, g.SourceID)

	if err := s.store.AddLog(ctx, &models.LogEntry{
		Action: action,
		Name:   "Garden: " + g.Name,
		URL:    g.URL(),
		User:   user,
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to write log entry")
	}
	return g, nil
}

// Activate publishes a garden
func (s *GardenService) Activate(ctx context.Context, id int64) error {
	if err := s.store.SetGardenActive(ctx, id, true); err != nil {
		return err
	}
	s.invalidate(ctx, &s.layers.GardensSource)
	return nil
}

// Delete removes a garden
func (s *GardenService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteGarden(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, &s.layers.GardensSource)
	return nil
}
