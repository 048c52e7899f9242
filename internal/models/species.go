package models

import (
	"strings"
	"time"
)

// Genus groups species
type Genus struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Family groups genera
type Family struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Species is a plant species tracked by the platform
type Species struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	CommonName string         `json:"common_name,omitempty"`
	GenusID    int64          `json:"genus_id"`
	FamilyID   *int64         `json:"family_id,omitempty"`
	Links      []string       `json:"links,omitempty"`
	PhotoID    *int64         `json:"photo_id,omitempty"`
	Meta       map[string]any `json:"meta_data,omitempty"`
	Summary    string         `json:"summary_wikipedia,omitempty"`
}

// INatID returns the iNaturalist taxon id stored in the species meta data
func (s *Species) INatID() int64 {
	inat, ok := s.Meta["inat"].(map[string]any)
	if !ok {
		return 0
	}
	switch id := inat["id"].(type) {
	case float64:
		return int64(id)
	case int64:
		return id
	case int:
		return int64(id)
	default:
		return 0
	}
}

// HasLink reports whether any of the species links contains fragment
func (s *Species) HasLink(fragment string) bool {
	for _, l := range s.Links {
		if strings.Contains(l, fragment) {
			return true
		}
	}
	return false
}

// VegetationType is a vegetation class from the vegetation map
type VegetationType struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Slug        string         `json:"slug"`
	SiteID      int64          `json:"site_id"`
	Meta        map[string]any `json:"meta_data,omitempty"`
}

// PhotoSource records where a photo came from
type PhotoSource string

const (
	PhotoUpload PhotoSource = "upload"
	PhotoINat   PhotoSource = "inaturalist"
)

// Photo is an image attached to a species or garden
type Photo struct {
	ID          int64          `json:"id"`
	Description string         `json:"description,omitempty"`
	Image       string         `json:"image,omitempty"`
	ImageINat   map[string]any `json:"image_inat,omitempty"`
	Position    int            `json:"position"`
	Author      string         `json:"author,omitempty"`
	SpeciesID   *int64         `json:"species_id,omitempty"`
	GardenID    *int64         `json:"garden_id,omitempty"`
	LicenseCode string         `json:"license_code,omitempty"`
	Source      PhotoSource    `json:"source"`
	UploadDate  time.Time      `json:"upload_date"`
}
