package models

import (
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
)

// ReferenceSpace is a named geometry, usually one feature of a shapefile layer
type ReferenceSpace struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Geometry    geom.T         `json:"-"`
	SourceID    *int64         `json:"source_id,omitempty"`
	Meta        map[string]any `json:"meta_data,omitempty"`
	IsGarden    bool           `json:"-"`
}

// DisplayName returns the name or a placeholder for unnamed spaces
func (s *ReferenceSpace) DisplayName() string {
	if s.Name == "" {
		return "Unnamed object"
	}
	return s.Name
}

// URL returns the public path of the space
func (s *ReferenceSpace) URL() string {
	if s.IsGarden {
		return fmt.Sprintf("/gardens/%d/", s.ID)
	}
	return fmt.Sprintf("/space/%d/", s.ID)
}

// Geom returns the space geometry
func (s *ReferenceSpace) Geom() geom.T {
	return s.Geometry
}

// Features returns the attribute values imported from the shapefile
func (s *ReferenceSpace) Features() map[string]any {
	if s.Meta == nil {
		return nil
	}
	features, _ := s.Meta["features"].(map[string]any)
	return features
}

// PhaseStatus is the progress of one garden phase
type PhaseStatus int

const (
	PhasePending    PhaseStatus = 1
	PhaseInProgress PhaseStatus = 2
	PhaseCompleted  PhaseStatus = 3
)

// Valid reports whether p is a known phase status
func (p PhaseStatus) Valid() bool {
	return p >= PhasePending && p <= PhaseCompleted
}

// Label returns the human readable status
func (p PhaseStatus) Label() string {
	switch p {
	case PhasePending:
		return "Pending"
	case PhaseInProgress:
		return "In progress"
	case PhaseCompleted:
		return "Completed"
	default:
		return ""
	}
}

// GardenPhases tracks the seven rehabilitation phases of a garden
type GardenPhases struct {
	Assessment   *PhaseStatus `json:"phase_assessment,omitempty"`
	AlienRemoval *PhaseStatus `json:"phase_alienremoval,omitempty"`
	Landscaping  *PhaseStatus `json:"phase_landscaping,omitempty"`
	Pioneers     *PhaseStatus `json:"phase_pioneers,omitempty"`
	BirdsInsects *PhaseStatus `json:"phase_birdsinsects,omitempty"`
	Specialists  *PhaseStatus `json:"phase_specialists,omitempty"`
	Placemaking  *PhaseStatus `json:"phase_placemaking,omitempty"`
}

// Garden is a reference space tracked as a rehabilitation garden
type Garden struct {
	ReferenceSpace
	GardenPhases
	UUID             string         `json:"uuid"`
	IsActive         bool           `json:"is_active"`
	IsUserCreated    bool           `json:"is_user_created"`
	Original         map[string]any `json:"original,omitempty"`
	SiteID           int64          `json:"site_id"`
	ContactName      string         `json:"contact_name,omitempty"`
	ContactPhone     string         `json:"contact_phone,omitempty"`
	ContactEmail     string         `json:"contact_email,omitempty"`
	VegetationTypeID *int64         `json:"vegetation_type_id,omitempty"`
	Owner            string         `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// GardenManager is a person allowed to edit a garden through an e-mailed link
type GardenManager struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	GardenID            int64      `json:"garden_id"`
	CreatedAt           time.Time  `json:"creation_date"`
	Token               string     `json:"-"`
	TokenExpirationDate *time.Time `json:"-"`
}
