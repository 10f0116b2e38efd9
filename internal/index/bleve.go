package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/ar"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/da"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/de"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/es"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/fa"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/fi"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/fr"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/hi"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/hu"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/it"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/nl"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/no"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/pt"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/ro"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/ru"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/sv"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/tr"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/flatten"
)

// contentField is the only indexed field.
const contentField = "content"

// BleveIndex is a TextIndex on bleve v2. Each analyzer gets its own
// document type so a document is analyzed in its own language.
type BleveIndex struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string
	analyzers map[string]bool
	closed    bool
}

var _ TextIndex = (*BleveIndex)(nil)

// bleveDocument is the indexed form of a Document.
type bleveDocument struct {
	Content  string `json:"content"`
	analyzer string
}

// BleveType selects the document mapping.
func (d bleveDocument) BleveType() string {
	return d.analyzer
}

// validateIndexIntegrity checks an on-disk index before opening it.
// Returns nil when the index is valid or absent.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports whether err indicates a damaged index.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		errors.Is(err, bleve.ErrorIndexMetaCorrupt)
}

// NewBleveIndex opens or creates a bleve index at path. An empty path
// creates an in-memory index. A corrupted index is cleared and recreated;
// its contents come back with a reindex.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, analyzers := newIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("text_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, ierrors.New(ierrors.ErrCodeCorruptIndex,
					fmt.Sprintf("text index corrupted at %s and cannot be removed", path), removeErr)
			}
			slog.Info("text_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, run reindex"))
		}

		idx, err = bleve.Open(path)
		switch {
		case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
			idx, err = bleve.New(path, indexMapping)
		case isCorruptionError(err):
			slog.Warn("text_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, ierrors.New(ierrors.ErrCodeCorruptIndex, "text index corrupted and cannot be cleared", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeIndexFailed, "failed to create or open text index", err).
			WithDetail("path", path)
	}

	return &BleveIndex{index: idx, path: path, analyzers: analyzers}, nil
}

// newIndexMapping builds one document mapping per registered analyzer.
// Documents with an unknown analyzer fall back to the default mapping,
// which uses the standard analyzer.
func newIndexMapping() (*mapping.IndexMappingImpl, map[string]bool) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name
	im.DefaultField = contentField

	analyzers := make(map[string]bool)
	for _, name := range flatten.Analyzers() {
		if im.AnalyzerNamed(name) == nil {
			continue
		}
		analyzers[name] = true

		field := bleve.NewTextFieldMapping()
		field.Analyzer = name
		field.Store = false
		field.IncludeInAll = false
		field.IncludeTermVectors = true

		doc := bleve.NewDocumentStaticMapping()
		doc.AddFieldMappingsAt(contentField, field)
		im.AddDocumentMapping(name, doc)
	}
	return im, analyzers
}

// analyzer returns name when it is registered, else the standard analyzer.
func (b *BleveIndex) analyzer(name string) string {
	if b.analyzers[name] {
		return name
	}
	return standard.Name
}

// Index adds or replaces documents in one batch.
func (b *BleveIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bd := bleveDocument{Content: doc.Content, analyzer: b.analyzer(doc.Analyzer)}
		if err := batch.Index(doc.ID, bd); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return ierrors.New(ierrors.ErrCodeIndexFailed, "failed to execute batch", err)
	}
	return nil
}

// Search runs q and returns hits with their content term locations.
func (b *BleveIndex) Search(ctx context.Context, q Query) ([]*Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	bq, err := b.buildQuery(q)
	if err != nil || bq == nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bq, limit, max(q.From, 0), false)
	req.SortBy([]string{"-_score", "_id"})
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeSearchFailed, "text search failed", err)
	}

	hits := make([]*Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, &Hit{ID: h.ID, Score: h.Score, Locations: extractLocations(h)})
	}
	return hits, nil
}

// buildQuery translates q into a bleve query. It returns nil for a query
// without terms.
func (b *BleveIndex) buildQuery(q Query) (query.Query, error) {
	typ := q.Type
	if typ == "" {
		typ = SearchWebsearch
	}

	if typ == SearchRaw {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			return nil, nil
		}
		parsed, err := bleve.NewQueryStringQuery(text).Parse()
		if err != nil {
			return nil, ierrors.New(ierrors.ErrCodeInvalidQuery, "invalid query syntax", err).
				WithDetail("query", text)
		}
		setAnalyzer(parsed, b.analyzer(q.Analyzer))
		return parsed, nil
	}

	clauses, err := Parse(q.Text, typ)
	if err != nil || len(clauses) == 0 {
		return nil, err
	}

	analyzer := b.analyzer(q.Analyzer)
	var must, mustNot []query.Query
	for _, c := range clauses {
		alts := make([]query.Query, 0, len(c.Alternatives))
		for _, t := range c.Alternatives {
			alts = append(alts, termQuery(t, analyzer))
		}
		var cq query.Query = alts[0]
		if len(alts) > 1 {
			cq = bleve.NewDisjunctionQuery(alts...)
		}
		if c.Negated {
			mustNot = append(mustNot, cq)
		} else {
			must = append(must, cq)
		}
	}

	if len(mustNot) == 0 && len(must) == 1 {
		return must[0], nil
	}
	bq := bleve.NewBooleanQuery()
	bq.AddMust(must...)
	if len(mustNot) > 0 {
		bq.AddMustNot(mustNot...)
	}
	return bq, nil
}

func termQuery(t Term, analyzer string) query.Query {
	if t.Phrase {
		pq := bleve.NewMatchPhraseQuery(t.Text)
		pq.SetField(contentField)
		pq.Analyzer = analyzer
		return pq
	}
	mq := bleve.NewMatchQuery(t.Text)
	mq.SetField(contentField)
	mq.Analyzer = analyzer
	mq.SetOperator(query.MatchQueryOperatorAnd)
	return mq
}

// setAnalyzer sets the analyzer of every match query in a parsed query
// string that does not name one. Without it bleve picks the analyzer of an
// arbitrary document type for the content field.
func setAnalyzer(q query.Query, analyzer string) {
	switch t := q.(type) {
	case *query.MatchQuery:
		if t.Analyzer == "" {
			t.Analyzer = analyzer
		}
	case *query.MatchPhraseQuery:
		if t.Analyzer == "" {
			t.Analyzer = analyzer
		}
	case *query.BooleanQuery:
		setAnalyzer(t.Must, analyzer)
		setAnalyzer(t.Should, analyzer)
		setAnalyzer(t.MustNot, analyzer)
	case *query.ConjunctionQuery:
		for _, c := range t.Conjuncts {
			setAnalyzer(c, analyzer)
		}
	case *query.DisjunctionQuery:
		for _, d := range t.Disjuncts {
			setAnalyzer(d, analyzer)
		}
	}
}

// extractLocations flattens the content term locations of a hit, ordered
// by position.
func extractLocations(hit *search.DocumentMatch) []Location {
	var out []Location
	for term, locs := range hit.Locations[contentField] {
		for _, l := range locs {
			out = append(out, Location{
				Term:  term,
				Pos:   int(l.Pos),
				Start: int(l.Start),
				End:   int(l.End),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out
}

// Delete removes documents.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return ierrors.New(ierrors.ErrCodeIndexFailed, "failed to delete documents", err)
	}
	return nil
}

// AllIDs returns all document ids.
func (b *BleveIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Stats returns index statistics.
func (b *BleveIndex) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &IndexStats{}
	}
	count, _ := b.index.DocCount()
	return &IndexStats{DocumentCount: int(count)}
}

// Path returns the index directory, "" for an in-memory index.
func (b *BleveIndex) Path() string {
	return b.path
}

// Close closes the index. Closing twice is a no-op.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
