package models

import (
	"encoding/json"
)

// ShapefileInfo summarises the first layer of a shapefile
type ShapefileInfo struct {
	Fields []string `json:"fields"`
	Count  int      `json:"count"`
	Type   string   `json:"type"`
}

// Columns records which attribute fields are used during conversion
type Columns struct {
	Name   string   `json:"name,omitempty"`
	Import []string `json:"import"`
}

// DocumentMeta is the typed view of a document's meta_data. Keys it does not
// know are kept in Extra and written back unchanged.
type DocumentMeta struct {
	ShapefileInfo        *ShapefileInfo `json:"shapefile_info,omitempty"`
	Columns              *Columns       `json:"columns,omitempty"`
	SingleReferenceSpace bool           `json:"single_reference_space,omitempty"`
	GroupSpacesByName    bool           `json:"group_spaces_by_name,omitempty"`
	SkipSizeCheck        bool           `json:"skip_size_check,omitempty"`
	Clip                 *int64         `json:"clip,omitempty"`
	ProcessingDate       string         `json:"processing_date,omitempty"`
	ProcessingError      string         `json:"processing_error,omitempty"`
	Processed            bool           `json:"processed,omitempty"`
	ShapefilePlot        string         `json:"shapefile_plot,omitempty"`
	ShapefilePlotError   string         `json:"shapefile_plot_error,omitempty"`
	Opacity              *float64       `json:"opacity,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownMetaKeys = map[string]bool{
	"shapefile_info":         true,
	"columns":                true,
	"single_reference_space": true,
	"group_spaces_by_name":   true,
	"skip_size_check":        true,
	"clip":                   true,
	"processing_date":        true,
	"processing_error":       true,
	"processed":              true,
	"shapefile_plot":         true,
	"shapefile_plot_error":   true,
	"opacity":                true,
}

type metaAlias DocumentMeta

// MarshalJSON merges the typed fields with the preserved unknown keys
func (m DocumentMeta) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(metaAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return typed, nil
	}

	merged := make(map[string]json.RawMessage, len(m.Extra)+len(knownMetaKeys))
	for k, v := range m.Extra {
		if !knownMetaKeys[k] {
			merged[k] = v
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the typed fields and keeps everything else in Extra
func (m *DocumentMeta) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = DocumentMeta{}
		return nil
	}
	var alias metaAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = DocumentMeta(alias)
	for k, v := range raw {
		if knownMetaKeys[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}
	return nil
}

// HasImportColumns reports whether any columns were chosen for import
func (m *DocumentMeta) HasImportColumns() bool {
	return m.Columns != nil && (m.Columns.Name != "" || len(m.Columns.Import) > 0)
}
