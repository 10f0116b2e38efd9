// Package index provides the full-text index over indexables.
//
// Two backends implement TextIndex: bleve (default), with one analyzer per
// language, and SQLite FTS5 with a porter stemmer. Both report the position
// and byte span of every matched term so callers can rank and highlight.
package index

import (
	"context"
)

// Document is one indexable as the text index sees it.
type Document struct {
	// ID is the indexable id.
	ID string

	// Content is the plain text of the indexable.
	Content string

	// Analyzer is the analyzer name for the indexable's language.
	Analyzer string
}

// Query is a full-text query.
type Query struct {
	Text string
	Type SearchType

	// Analyzer analyzes the query terms. Empty means the standard analyzer.
	Analyzer string

	// Limit caps the number of hits.
	Limit int

	// From skips that many hits. Hits are ordered by score, then id, so
	// consecutive pages do not overlap.
	From int
}

// Location is one matched term occurrence inside a document's content.
type Location struct {
	// Term is the analyzed term, e.g. "heron" for "Herons".
	Term string

	// Pos is the 1-based token position.
	Pos int

	// Start and End are byte offsets into the content.
	Start int
	End   int
}

// Hit is a matching document.
type Hit struct {
	ID        string
	Score     float64
	Locations []Location
}

// IndexStats holds index statistics.
type IndexStats struct {
	DocumentCount int `json:"document_count"`
}

// TextIndex is a full-text index keyed by indexable id.
type TextIndex interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, docs []*Document) error

	// Search returns matching documents with their term locations, best
	// backend score first. An empty query returns no hits.
	Search(ctx context.Context, q Query) ([]*Hit, error)

	// Delete removes documents. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns every indexed id.
	AllIDs() ([]string, error)

	Stats() *IndexStats
	Close() error
}
