package mcp

import (
	"github.com/Aman-CERP/iiifstore/internal/async"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// GetResourceInput defines the input schema for the get_resource tool.
type GetResourceInput struct {
	ID   string `json:"id" jsonschema:"internal id or original IIIF id of the resource"`
	IIIF bool   `json:"iiif,omitempty" jsonschema:"return the stored IIIF JSON with canonical ids instead of the summary"`
}

// ListContextsInput defines the input schema for the list_contexts tool (no parameters).
type ListContextsInput struct{}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct {
	Check bool `json:"check,omitempty" jsonschema:"also compare the text index with the stored indexables"`
}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	DataDir     string                  `json:"data_dir,omitempty"`
	Store       store.Stats             `json:"store"`
	TextIndex   TextIndexInfo           `json:"text_index"`
	Consistency *ConsistencyInfo        `json:"consistency,omitempty"` // Present when check was requested
	Worker      *async.ProgressSnapshot `json:"worker,omitempty"`      // Present when deferred indexing is on
}

// TextIndexInfo describes the full-text index.
type TextIndexInfo struct {
	Backend   string `json:"backend"`
	Documents int    `json:"documents"`
}

// ConsistencyInfo is the outcome of an on-demand consistency check.
type ConsistencyInfo struct {
	Checked    int  `json:"checked"`
	Orphans    int  `json:"orphans"`
	Missing    int  `json:"missing"`
	Consistent bool `json:"consistent"`
}
