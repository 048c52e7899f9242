package models

import "encoding/json"

// LayerFeature is one GeoJSON feature of a map layer
type LayerFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// LayerCollection is a GeoJSON FeatureCollection with the dominant geometry type
type LayerCollection struct {
	Type     string         `json:"type"`
	Features []LayerFeature `json:"features"`
	GeomType string         `json:"geom_type,omitempty"`
}

// NewLayerCollection returns an empty collection
func NewLayerCollection() *LayerCollection {
	return &LayerCollection{
		Type:     "FeatureCollection",
		Features: make([]LayerFeature, 0),
	}
}

// LegendEntry maps a label to its colour on the map
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}
