package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Resource is one decomposed IIIF entity.
type Resource struct {
	// ID is the internal UUID, also the last segment of the canonical id.
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// OriginalID is the id or @id the resource was ingested with.
	OriginalID string `gorm:"column:original_id;size:2048;uniqueIndex;not null" json:"original_id"`

	// IIIFType is the lowercased type name: manifest, canvas, range, ...
	IIIFType string `gorm:"column:iiif_type;size:64;index;not null" json:"iiif_type"`

	Label     datatypes.JSON `gorm:"column:label" json:"label,omitempty"`
	Thumbnail datatypes.JSON `gorm:"column:thumbnail" json:"thumbnail,omitempty"`

	// IIIFJSON is the source fragment with its own id, and the ids of its
	// stored descendants, rewritten to canonical ids.
	IIIFJSON datatypes.JSON `gorm:"column:iiif_json;not null" json:"iiif_json"`

	FirstCanvasID     string         `gorm:"column:first_canvas_id;size:2048" json:"first_canvas_id,omitempty"`
	Metadata          datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	Rights            string         `gorm:"column:rights;size:2048" json:"rights,omitempty"`
	Provider          datatypes.JSON `gorm:"column:provider" json:"provider,omitempty"`
	RequiredStatement datatypes.JSON `gorm:"column:required_statement" json:"required_statement,omitempty"`

	Contexts []Context `gorm:"many2many:resource_contexts;" json:"contexts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Relationship is a directed edge between two resources, by internal id.
type Relationship struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SourceID  string    `gorm:"column:source_id;size:36;not null;index;uniqueIndex:idx_relationship_edge" json:"source"`
	TargetID  string    `gorm:"column:target_id;size:36;not null;index;uniqueIndex:idx_relationship_edge" json:"target"`
	Type      string    `gorm:"column:type;size:64;not null;uniqueIndex:idx_relationship_edge" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Indexable is one unit of searchable content owned by a resource.
type Indexable struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	ResourceID string `gorm:"column:resource_id;size:36;not null;index" json:"resource_id"`

	Type    string `gorm:"column:type;size:64;index:idx_indexable_type_subtype" json:"type"`
	Subtype string `gorm:"column:subtype;size:512;index:idx_indexable_type_subtype" json:"subtype"`

	LanguageISO639_2 string `gorm:"column:language_iso639_2;size:16" json:"language_iso639_2"`
	LanguageISO639_1 string `gorm:"column:language_iso639_1;size:8" json:"language_iso639_1,omitempty"`
	LanguageDisplay  string `gorm:"column:language_display;size:64" json:"language_display"`
	LanguageAnalyzer string `gorm:"column:language_analyzer;size:32" json:"language_analyzer"`

	// Text is the plain text that is indexed and faceted on.
	Text string `gorm:"column:indexable;type:text" json:"indexable"`

	DateStart *time.Time `gorm:"column:indexable_date_range_start" json:"indexable_date_range_start,omitempty"`
	DateEnd   *time.Time `gorm:"column:indexable_date_range_end" json:"indexable_date_range_end,omitempty"`
	Int       *int64     `gorm:"column:indexable_int" json:"indexable_int,omitempty"`
	Float     *float64   `gorm:"column:indexable_float" json:"indexable_float,omitempty"`

	OriginalContent string `gorm:"column:original_content;type:text" json:"original_content,omitempty"`
	GroupID         string `gorm:"column:group_id;size:128" json:"group_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Context groups resources: a site, project, collection or manifest.
type Context struct {
	ID   string `gorm:"primaryKey;size:512" json:"id"`
	Type string `gorm:"column:type;size:64;not null;uniqueIndex:idx_context_type_slug" json:"type"`
	Slug string `gorm:"column:slug;size:255;not null;uniqueIndex:idx_context_type_slug" json:"slug"`
}

// State is a key-value row for runtime bookkeeping such as the files a
// watcher has ingested.
type State struct {
	Key       string    `gorm:"primaryKey;size:1024"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time
}

// models lists every table managed by AutoMigrate.
func models() []any {
	return []any{&Resource{}, &Relationship{}, &Indexable{}, &Context{}, &State{}}
}

// LabelMap decodes the label language map. Invalid or empty labels give nil.
func (r *Resource) LabelMap() map[string][]string {
	if len(r.Label) == 0 {
		return nil
	}
	var m map[string][]string
	if err := json.Unmarshal(r.Label, &m); err != nil {
		return nil
	}
	return m
}

// ThumbnailList decodes the stored thumbnail list.
func (r *Resource) ThumbnailList() []map[string]any {
	if len(r.Thumbnail) == 0 {
		return nil
	}
	var list []map[string]any
	if err := json.Unmarshal(r.Thumbnail, &list); err != nil {
		return nil
	}
	return list
}

// MetadataList decodes the stored metadata pairs.
func (r *Resource) MetadataList() []map[string]any {
	if len(r.Metadata) == 0 {
		return nil
	}
	var list []map[string]any
	if err := json.Unmarshal(r.Metadata, &list); err != nil {
		return nil
	}
	return list
}
