package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/flatten"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
	"github.com/Aman-CERP/iiifstore/internal/index"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine answers search requests. It is safe for concurrent use; queries
// only read.
type Engine struct {
	store  *store.GormStore
	index  index.TextIndex
	config EngineConfig
	logger *slog.Logger

	recorder Recorder
}

// Recorder receives one event per executed query.
type Recorder interface {
	Record(event telemetry.QueryEvent)
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder records every query, e.g. in telemetry.QueryMetrics.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine creates a search engine over a store and its text index.
func NewEngine(s *store.GormStore, idx index.TextIndex, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store is required", ErrNilDependency)
	}
	if idx == nil {
		return nil, fmt.Errorf("%w: text index is required", ErrNilDependency)
	}
	d := DefaultEngineConfig()
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = d.DefaultLanguage
	}
	if config.PageSize <= 0 {
		config.PageSize = d.PageSize
	}
	if config.MaxPageSize < config.PageSize {
		config.MaxPageSize = max(d.MaxPageSize, config.PageSize)
	}
	if config.HitBatchSize <= 0 {
		config.HitBatchSize = d.HitBatchSize
	}
	if config.ThumbnailWidth <= 0 {
		config.ThumbnailWidth = d.ThumbnailWidth
	}
	config.Snippet = config.Snippet.withDefaults()

	e := &Engine{store: s, index: idx, config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// candidate is a resource that passed every filter.
type candidate struct {
	id         string
	originalID string
	rank       float64
	hits       []*Hit
	sortKey    any
}

// Query runs req and returns one page of results.
func (e *Engine) Query(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	if req == nil {
		req = &Request{}
	}
	page, pageSize := e.pagination(req)

	fulltext := strings.TrimSpace(req.Fulltext)
	var hits map[string][]*Hit
	if fulltext != "" {
		var err error
		if hits, err = e.fulltextHits(ctx, req); err != nil {
			return nil, err
		}
	}

	candidates, err := e.candidates(ctx, req, fulltext != "", hits)
	if err != nil {
		return nil, err
	}
	if err := e.applySort(ctx, req.SortOrder, candidates); err != nil {
		return nil, err
	}
	sortCandidates(candidates, req.SortOrder)

	resp := &Response{Count: len(candidates), Page: page, PageSize: pageSize, Results: []*Result{}}
	from := (page - 1) * pageSize
	if from < len(candidates) {
		pageOf := candidates[from:min(from+pageSize, len(candidates))]
		results, err := e.results(ctx, req, pageOf, hits)
		if err != nil {
			return nil, err
		}
		resp.Results = results
	}

	elapsed := time.Since(start)
	e.logger.Info("query_executed",
		slog.String("fulltext", fulltext),
		slog.Int("facets", len(req.Facets)),
		slog.Int("filters", len(req.ResourceFilters)),
		slog.Int("count", resp.Count),
		slog.Duration("duration", elapsed))
	if e.recorder != nil {
		structured := len(req.Facets) > 0 || len(req.ResourceFilters) > 0 || req.SortOrder != nil
		e.recorder.Record(telemetry.QueryEvent{
			Query:       fulltext,
			Type:        telemetry.Classify(fulltext != "", structured),
			ResultCount: resp.Count,
			Latency:     elapsed,
			Timestamp:   start,
		})
	}
	return resp, nil
}

func (e *Engine) pagination(req *Request) (page, size int) {
	page, size = req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = e.config.PageSize
	}
	if size > e.config.MaxPageSize {
		size = e.config.MaxPageSize
	}
	return page, size
}

// fulltextHits searches the text index and returns the ranked hits of each
// resource, best first. Every matching indexable is read, in batches of
// HitBatchSize. Hits with rank 0 are dropped.
func (e *Engine) fulltextHits(ctx context.Context, req *Request) (map[string][]*Hit, error) {
	typ, err := index.ParseSearchType(req.SearchType)
	if err != nil {
		return nil, err
	}
	lang := req.SearchLanguage
	if strings.TrimSpace(lang) == "" {
		lang = e.config.DefaultLanguage
	}
	q := index.Query{
		Text:     req.Fulltext,
		Type:     typ,
		Analyzer: flatten.ResolveLanguage(lang).Analyzer,
		Limit:    e.config.HitBatchSize,
	}

	out := make(map[string][]*Hit)
	read := 0
	for {
		found, err := e.index.Search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("full-text search failed: %w", err)
		}
		if err := e.collectHits(ctx, found, out); err != nil {
			return nil, err
		}
		read += len(found)
		if len(found) < q.Limit {
			break
		}
		q.From += len(found)
	}
	if read > e.config.HitBatchSize {
		e.logger.Debug("fulltext_hits_batched",
			slog.String("fulltext", req.Fulltext),
			slog.Int("hits", read),
			slog.Int("batch_size", e.config.HitBatchSize))
	}

	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Rank != list[j].Rank {
				return list[i].Rank > list[j].Rank
			}
			return list[i].ID < list[j].ID
		})
	}
	return out, nil
}

// collectHits ranks one batch of text index hits and adds them to out,
// keyed by owning resource.
func (e *Engine) collectHits(ctx context.Context, found []*index.Hit, out map[string][]*Hit) error {
	if len(found) == 0 {
		return nil
	}
	byID := make(map[string]*index.Hit, len(found))
	ids := make([]string, 0, len(found))
	for _, h := range found {
		byID[h.ID] = h
		ids = append(ids, h.ID)
	}
	rows, err := e.store.GetIndexables(ctx, ids)
	if err != nil {
		return err
	}

	for _, row := range rows {
		h := byID[row.ID]
		rank := CoverDensity(h.Locations)
		if rank <= 0 {
			continue
		}
		out[row.ResourceID] = append(out[row.ResourceID], &Hit{
			ID:       row.ID,
			Type:     row.Type,
			Subtype:  row.Subtype,
			GroupID:  row.GroupID,
			Language: row.LanguageISO639_1,
			Rank:     rank,
			Snippet:  Snippet(row.Text, h.Locations, e.config.Snippet),
		})
	}
	return nil
}

// candidates applies scope, facets and resource filters, and keeps only
// resources with hits when the request has full text.
func (e *Engine) candidates(ctx context.Context, req *Request, fulltext bool, hits map[string][]*Hit) ([]*candidate, error) {
	db := e.store.DB(ctx)
	q := db.Model(&store.Resource{}).Select("resources.id", "resources.original_id")
	if len(req.Types) > 0 {
		types := make([]string, len(req.Types))
		for i, t := range req.Types {
			types[i] = strings.ToLower(t)
		}
		q = q.Where("resources.iiif_type IN ?", types)
	}
	if len(req.Contexts) > 0 {
		q = q.Where("resources.id IN (?)", db.Table("resource_contexts").
			Select("resource_contexts.resource_id").
			Joins("JOIN contexts ON contexts.id = resource_contexts.context_id").
			Where("contexts.slug IN ?", req.Contexts))
	}

	var err error
	if q, err = applyFacets(db, q, req.Facets, req.FacetOn); err != nil {
		return nil, err
	}
	if q, err = applyResourceFilters(db, q, req.ResourceFilters); err != nil {
		return nil, err
	}

	type row struct {
		ID         string
		OriginalID string
	}
	var rows []row
	if !fulltext {
		if err := q.Scan(&rows).Error; err != nil {
			return nil, queryErr(err)
		}
	} else {
		ids := make([]string, 0, len(hits))
		for id := range hits {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, batch := range chunks(ids, 500) {
			var part []row
			if err := q.Session(&gorm.Session{}).Where("resources.id IN ?", batch).Scan(&part).Error; err != nil {
				return nil, queryErr(err)
			}
			rows = append(rows, part...)
		}
	}

	out := make([]*candidate, 0, len(rows))
	for _, r := range rows {
		c := &candidate{id: r.ID, originalID: r.OriginalID, rank: 1.0}
		if fulltext {
			c.hits = hits[r.ID]
			c.rank = c.hits[0].Rank
		}
		c.sortKey = c.rank
		out = append(out, c)
	}
	return out, nil
}

// queryErr keeps typed errors and reports the rest as search failures.
func queryErr(err error) error {
	if _, ok := ierrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ierrors.New(ierrors.ErrCodeSearchFailed, "search query failed", err)
}

// sortCandidates orders by sort key ascending when a sort order is given,
// otherwise by rank descending. Ties fall back to rank, then original id.
func sortCandidates(cs []*candidate, order *SortOrder) {
	keyed := order != nil && (order.Type != "" || order.ValueForSort != "")
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if keyed {
			if c := compareKeys(a.sortKey, b.sortKey); c != 0 {
				return c < 0
			}
		}
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		return a.originalID < b.originalID
	})
}

// results loads the page's resources and builds their results in order.
func (e *Engine) results(ctx context.Context, req *Request, page []*candidate, hits map[string][]*Hit) ([]*Result, error) {
	ids := make([]string, len(page))
	for i, c := range page {
		ids[i] = c.id
	}
	rows, err := e.store.GetResources(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Resource, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}

	out := make([]*Result, 0, len(page))
	for _, c := range page {
		r, ok := byID[c.id]
		if !ok {
			continue
		}
		res := e.result(r, req.MetadataFields)
		res.Rank = c.rank
		res.SortKey = c.sortKey
		res.Hits = c.hits
		if len(c.hits) > 0 {
			res.Snippet = c.hits[0].Snippet
		}
		if req.MatchingParts && hits != nil {
			parts, err := e.matchingParts(ctx, r.ID, hits)
			if err != nil {
				return nil, err
			}
			res.MatchingParts = parts
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Engine) result(r *store.Resource, metadataFields map[string][]string) *Result {
	res := &Result{
		ID:                r.ID,
		OriginalID:        r.OriginalID,
		IIIFType:          r.IIIFType,
		Label:             r.LabelMap(),
		Thumbnail:         json.RawMessage(r.Thumbnail),
		ThumbnailURL:      iiif.FormatThumbnailURL(r.ThumbnailList(), e.config.ThumbnailWidth),
		Metadata:          filterMetadata(r.MetadataList(), metadataFields),
		FirstCanvasID:     r.FirstCanvasID,
		Rights:            r.Rights,
		Provider:          json.RawMessage(r.Provider),
		RequiredStatement: json.RawMessage(r.RequiredStatement),
	}
	for _, c := range r.Contexts {
		res.Contexts = append(res.Contexts, ContextRef{ID: c.ID, Type: c.Type, Slug: c.Slug})
	}
	return res
}

// matchingParts returns the descendants of id that have hits, best first.
func (e *Engine) matchingParts(ctx context.Context, id string, hits map[string][]*Hit) ([]*Part, error) {
	desc, err := e.store.Descendants(ctx, id, store.RelIsPartOf, "")
	if err != nil {
		return nil, err
	}
	var parts []*Part
	for i := range desc {
		d := &desc[i]
		h, ok := hits[d.ID]
		if !ok {
			continue
		}
		parts = append(parts, &Part{
			ID:            d.ID,
			OriginalID:    d.OriginalID,
			IIIFType:      d.IIIFType,
			Label:         d.LabelMap(),
			FirstCanvasID: d.FirstCanvasID,
			ThumbnailURL:  iiif.FormatThumbnailURL(d.ThumbnailList(), e.config.ThumbnailWidth),
			Rank:          h[0].Rank,
		})
	}
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].Rank != parts[j].Rank {
			return parts[i].Rank > parts[j].Rank
		}
		return parts[i].OriginalID < parts[j].OriginalID
	})
	return parts, nil
}

// filterMetadata keeps the pairs whose label, in one of the requested
// languages, is one of the requested labels. A nil filter keeps all pairs.
func filterMetadata(items []map[string]any, fields map[string][]string) []map[string]any {
	if len(fields) == 0 {
		return items
	}
	out := []map[string]any{}
	for _, item := range items {
		label := flatten.LanguageMap(item["label"], "none")
		if labelMatches(label, fields) {
			out = append(out, item)
		}
	}
	return out
}

func labelMatches(label map[string][]string, fields map[string][]string) bool {
	for lang, wanted := range fields {
		for _, have := range label[lang] {
			for _, w := range wanted {
				if have == w {
					return true
				}
			}
		}
	}
	return false
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
