// Package search is the query engine over stored resources and their
// indexables. It combines full-text ranking from the text index with facet
// filters, resource-attribute filters and sort keys evaluated in the
// relational store.
package search

import (
	"encoding/json"
	"time"
)

// Request is one search query. The zero value lists every resource.
type Request struct {
	// Fulltext is matched against indexable text. Empty disables full-text
	// ranking and every resource ranks 1.0.
	Fulltext string `json:"fulltext,omitempty"`

	// SearchType is websearch (default), plain, phrase or raw.
	SearchType string `json:"search_type,omitempty"`

	// SearchLanguage picks the query analyzer: a code (en, eng) or an
	// English language name. Empty means the configured default language.
	SearchLanguage string `json:"search_language,omitempty"`

	Facets          []Facet          `json:"facets,omitempty"`
	FacetOn         *FacetOn         `json:"facet_on,omitempty"`
	ResourceFilters []ResourceFilter `json:"resource_filters,omitempty"`
	SortOrder       *SortOrder       `json:"sort_order,omitempty"`

	// MetadataFields restricts the returned metadata pairs to those whose
	// label matches, per language: {"en": ["Author", "Date"]}.
	MetadataFields map[string][]string `json:"metadata_fields,omitempty"`

	// Contexts scopes the query to resources in any of these context slugs.
	Contexts []string `json:"contexts,omitempty"`

	// Types scopes the query to resources of any of these IIIF types.
	Types []string `json:"types,omitempty"`

	// MatchingParts adds the descendants whose own indexables match the
	// full-text query to each result.
	MatchingParts bool `json:"matching_parts,omitempty"`

	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// Facet operators.
const (
	OpExact      = "exact"
	OpIExact     = "iexact"
	OpContains   = "contains"
	OpIContains  = "icontains"
	OpIn         = "in"
	defaultFacet = OpIExact
)

// Facet matches resources owning an indexable with the given type, subtype
// and value. Facets sharing a type and subtype are ORed; distinct pairs are
// ANDed.
type Facet struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	Value    string `json:"value"`
	Operator string `json:"operator,omitempty"`
}

// FacetOn tests facets against a resource's ancestors instead of the
// resource itself.
type FacetOn struct {
	// ResourceType restricts the ancestors, e.g. "Manifest". Empty allows
	// any type.
	ResourceType string `json:"resource_type,omitempty"`

	// RelationshipType is the edge type followed. Empty means isPartOf.
	RelationshipType string `json:"relationship_type,omitempty"`
}

// Resource filter classes.
const (
	ClassResource = "iiifresource"
	ClassContext  = "context"
)

// ResourceFilter compares a resource attribute, or an attribute of one of
// its contexts, with a value. For the "in" operator Value is a list.
type ResourceFilter struct {
	ResourceClass string `json:"resource_class"`
	Field         string `json:"field"`
	Operator      string `json:"operator,omitempty"`
	Value         any    `json:"value"`
}

// SortOrder sorts results by the value of one of their indexables.
type SortOrder struct {
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`

	// ValueForSort is the indexable column: indexable (default),
	// indexable_int, indexable_float, indexable_date_range_start or
	// indexable_date_range_end.
	ValueForSort string `json:"value_for_sort,omitempty"`
}

// Response is one page of results.
type Response struct {
	Count    int       `json:"count"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Results  []*Result `json:"results"`
}

// Result is one matching resource.
type Result struct {
	ID                string              `json:"id"`
	OriginalID        string              `json:"original_id"`
	IIIFType          string              `json:"iiif_type"`
	Label             map[string][]string `json:"label,omitempty"`
	Thumbnail         json.RawMessage     `json:"thumbnail,omitempty"`
	ThumbnailURL      string              `json:"thumbnail_url,omitempty"`
	Contexts          []ContextRef        `json:"contexts,omitempty"`
	Rank              float64             `json:"rank"`
	Snippet           string              `json:"snippet,omitempty"`
	Hits              []*Hit              `json:"hits,omitempty"`
	SortKey           any                 `json:"sortk"`
	Metadata          []map[string]any    `json:"metadata,omitempty"`
	FirstCanvasID     string              `json:"first_canvas_id,omitempty"`
	Rights            string              `json:"rights,omitempty"`
	Provider          json.RawMessage     `json:"provider,omitempty"`
	RequiredStatement json.RawMessage     `json:"required_statement,omitempty"`
	MatchingParts     []*Part             `json:"matching_parts,omitempty"`
}

// ContextRef is a context attached to a result.
type ContextRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Slug string `json:"slug"`
}

// Hit is one indexable of a result that matched the full-text query.
type Hit struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Subtype  string  `json:"subtype"`
	GroupID  string  `json:"group_id,omitempty"`
	Language string  `json:"language,omitempty"`
	Rank     float64 `json:"rank"`
	Snippet  string  `json:"snippet"`
}

// Part is a descendant of a result with its own full-text hits.
type Part struct {
	ID            string              `json:"id"`
	OriginalID    string              `json:"original_id"`
	IIIFType      string              `json:"iiif_type"`
	Label         map[string][]string `json:"label,omitempty"`
	FirstCanvasID string              `json:"first_canvas_id,omitempty"`
	ThumbnailURL  string              `json:"thumbnail_url,omitempty"`
	Rank          float64             `json:"rank"`
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// DefaultLanguage picks the analyzer when a request names none.
	DefaultLanguage string

	PageSize    int
	MaxPageSize int

	// HitBatchSize is how many hits are read from the text index at a
	// time. Every match is read; this only bounds one round trip.
	HitBatchSize int

	Snippet SnippetOptions

	// ThumbnailWidth is the width of derived thumbnail URLs.
	ThumbnailWidth int
}

// DefaultEngineConfig returns the defaults used by the CLI.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLanguage: "en",
		PageSize:        25,
		MaxPageSize:     100,
		HitBatchSize:    5000,
		Snippet:         DefaultSnippetOptions(),
		ThumbnailWidth:  400,
	}
}

// zeroDate is the sort key of a missing date.
var zeroDate = time.Time{}.UTC()
