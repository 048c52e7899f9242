package models

import (
	"fmt"
	"time"
)

// DocType classifies documents
type DocType string

const (
	DocSteppingStones DocType = "STEPPING_STONES"
	DocConnectors     DocType = "CONNECTORS"
	DocTransport      DocType = "TRANSPORT"
	DocPotential      DocType = "POTENTIAL"
	DocContext        DocType = "CONTEXT"
	DocTeaching       DocType = "TEACHING"
	DocGeneral        DocType = "GENERAL"
	DocCorridor       DocType = "CORRIDOR"
	DocSpeciesList    DocType = "SPECIES_LIST"
)

// DocTypes lists every document type in display order
var DocTypes = []DocType{
	DocSteppingStones,
	DocConnectors,
	DocTransport,
	DocPotential,
	DocContext,
	DocTeaching,
	DocGeneral,
	DocCorridor,
	DocSpeciesList,
}

// MapDocTypes are the document types listed on the maps index
var MapDocTypes = []DocType{
	DocSteppingStones,
	DocConnectors,
	DocTransport,
	DocPotential,
	DocContext,
}

// Label returns the human readable name of the document type
func (t DocType) Label() string {
	switch t {
	case DocSteppingStones:
		return "Stepping stones"
	case DocConnectors:
		return "Connectors"
	case DocTransport:
		return "Transport"
	case DocPotential:
		return "Potential"
	case DocContext:
		return "Context"
	case DocTeaching:
		return "Teaching resource"
	case DocGeneral:
		return "General document"
	case DocCorridor:
		return "Corridor"
	case DocSpeciesList:
		return "Species list"
	default:
		return string(t)
	}
}

// Valid reports whether t is a known document type
func (t DocType) Valid() bool {
	for _, v := range DocTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DefaultOpacity is used when a document has no opacity in its meta data
const DefaultOpacity = 0.4

// Document is an uploaded file set, usually a shapefile layer
type Document struct {
	ID                    int64        `json:"id"`
	Name                  string       `json:"name"`
	Content               string       `json:"content,omitempty"`
	DocType               DocType      `json:"doc_type"`
	Author                string       `json:"author,omitempty"`
	URL                   string       `json:"url,omitempty"`
	Description           string       `json:"description,omitempty"`
	Color                 string       `json:"color,omitempty"`
	Meta                  DocumentMeta `json:"meta_data"`
	IsActive              bool         `json:"is_active"`
	IsShapefile           bool         `json:"is_shapefile"`
	IncludeInSiteAnalysis bool         `json:"include_in_site_analysis"`
	SiteID                *int64       `json:"site_id,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
}

// Path returns the public map path of the document
func (d *Document) Path() string {
	return fmt.Sprintf("/maps/%d", d.ID)
}

// Opacity returns the configured layer opacity
func (d *Document) Opacity() float64 {
	if d.Meta.Opacity != nil {
		return *d.Meta.Opacity
	}
	return DefaultOpacity
}
