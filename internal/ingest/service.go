// Package ingest ties decomposition, flattening, the record store and the
// text index together for single create, update, delete and reindex
// operations.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/Aman-CERP/iiifstore/internal/config"
	"github.com/Aman-CERP/iiifstore/internal/decompose"
	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/flatten"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
	"github.com/Aman-CERP/iiifstore/internal/index"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// Config configures a Service.
type Config struct {
	Fields          []flatten.FieldConfig
	ResourceTypes   []string
	MaxDepth        int
	DefaultLanguage string

	// Dereference fetches info.json for thumbnail image services.
	Dereference bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Fields:          flatten.DefaultFields,
		ResourceTypes:   decompose.DefaultResourceTypes,
		MaxDepth:        decompose.DefaultMaxDepth,
		DefaultLanguage: "en",
	}
}

// ConfigFrom builds a Service configuration from the loaded configuration.
func ConfigFrom(cfg *config.Config) Config {
	fields := make([]flatten.FieldConfig, 0, len(cfg.Indexing.Fields))
	for _, f := range cfg.Indexing.Fields {
		fields = append(fields, flatten.FieldConfig{Key: f.Key, IndexableType: f.Type, IndexAs: f.IndexAs})
	}
	return Config{
		Fields:          fields,
		ResourceTypes:   cfg.Indexing.ResourceTypes,
		MaxDepth:        cfg.Indexing.MaxDepth,
		DefaultLanguage: cfg.Languages.Default,
		Dereference:     cfg.Indexing.DereferenceThumbnails,
	}
}

// Enqueuer defers indexing of a resource.
type Enqueuer interface {
	// Enqueue schedules a reindex of id. It reports false when the job was
	// dropped.
	Enqueue(id string) bool
}

// Service performs ingest operations. It is safe for concurrent use; writes
// are serialised by the store.
type Service struct {
	store    *store.GormStore
	index    index.TextIndex
	resolver *iiif.Resolver
	config   Config
	deferred Enqueuer
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResolver sets the thumbnail resolver. Without one thumbnails are
// taken from the resource as they are.
func WithResolver(r *iiif.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithDeferredIndexing hands flattening and text indexing of saved
// resources to q instead of doing it inline.
func WithDeferredIndexing(q Enqueuer) Option {
	return func(s *Service) { s.deferred = q }
}

// NewService creates a Service.
func NewService(s *store.GormStore, idx index.TextIndex, cfg Config, opts ...Option) (*Service, error) {
	if s == nil || idx == nil {
		return nil, fmt.Errorf("ingest: store and text index are required")
	}
	defaults := DefaultConfig()
	if len(cfg.Fields) == 0 {
		cfg.Fields = defaults.Fields
	}
	if len(cfg.ResourceTypes) == 0 {
		cfg.ResourceTypes = defaults.ResourceTypes
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.MaxDepth
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = defaults.DefaultLanguage
	}

	svc := &Service{store: s, index: idx, config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.resolver == nil {
		svc.resolver = iiif.NewResolver(nil, svc.logger)
	}
	return svc, nil
}

// Store returns the record store.
func (s *Service) Store() *store.GormStore { return s.store }

// Index returns the text index.
func (s *Service) Index() index.TextIndex { return s.index }

// IngestOptions configures one Ingest call.
type IngestOptions struct {
	// Contexts replace the context set of every ingested resource. None
	// leaves existing context sets alone.
	Contexts []store.Context

	// Cascade stores the embedded canvases, ranges and annotations as
	// resources of their own. Without it only the root is stored.
	Cascade bool
}

// IngestReport summarises an Ingest call.
type IngestReport struct {
	RootID        string        `json:"root_id"`
	RootType      string        `json:"root_type"`
	RootCreated   bool          `json:"root_created"`
	ResourceIDs   []string      `json:"resource_ids"`
	Created       int           `json:"created"`
	Updated       int           `json:"updated"`
	Relationships int           `json:"relationships"`
	Indexables    int           `json:"indexables"`
	Deferred      bool          `json:"deferred,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// prepared is a resource ready to be written, with its indexable entries.
type prepared struct {
	req     decompose.ResourceRequest
	res     *store.Resource
	entries []flatten.Entry
}

// Ingest decomposes raw IIIF JSON and stores every resource, relationship
// and indexable it yields. A resource whose original id is already stored is
// updated in place. Nothing is written when decomposition fails.
func (s *Service) Ingest(ctx context.Context, raw []byte, opts IngestOptions) (*IngestReport, error) {
	start := time.Now()

	result, err := decompose.Decompose(raw, decompose.Options{
		ResourceTypes: s.config.ResourceTypes,
		MaxDepth:      s.config.MaxDepth,
	})
	if err != nil {
		return nil, err
	}
	root := result.Root()
	if root == nil {
		return nil, ierrors.InvalidResource("document contains no storable resource").
			WithSuggestion("check indexing.resource_types")
	}
	if !opts.Cascade {
		result = &decompose.Result{Resources: result.Resources[:1]}
	}

	// Network lookups happen before the write transaction.
	items := make([]*prepared, 0, len(result.Resources))
	for _, req := range result.Resources {
		p, err := s.prepare(ctx, req, root.Node)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}

	report := &IngestReport{RootType: root.IIIFType, Deferred: s.deferred != nil}
	var added []store.Indexable
	var removed []string

	err = s.store.Transaction(ctx, func(tx *store.GormStore) error {
		originals := make([]string, len(items))
		for i, p := range items {
			originals[i] = p.req.OriginalID
		}
		ids, err := tx.ReserveIDs(ctx, originals)
		if err != nil {
			return err
		}

		canonical := make(map[string]string, len(items))
		for _, p := range items {
			p.res.ID = ids[p.req.OriginalID]
			canonical[p.req.OriginalID] = tx.CanonicalID(p.res.IIIFType, p.res.ID)
		}

		for _, p := range items {
			obj, _ := iiif.Clone(p.req.Node.Raw).(map[string]any)
			iiif.ReplaceIDs(obj, canonical)
			data, err := json.Marshal(obj)
			if err != nil {
				return ierrors.InternalError("failed to encode IIIF JSON", err)
			}
			p.res.IIIFJSON = data
			if c, ok := canonical[p.res.FirstCanvasID]; ok {
				p.res.FirstCanvasID = c
			}

			created, err := tx.SaveResource(ctx, p.res)
			if err != nil {
				return err
			}
			if created {
				report.Created++
			} else {
				report.Updated++
			}
			if p == items[0] {
				report.RootCreated = created
			}
			report.ResourceIDs = append(report.ResourceIDs, p.res.ID)

			if s.deferred == nil {
				rr, err := tx.ReplaceIndexables(ctx, p.res.ID, p.entries)
				if err != nil {
					return err
				}
				added = append(added, rr.Added...)
				removed = append(removed, rr.RemovedIDs...)
				report.Indexables += len(rr.Added)
			}

			if len(opts.Contexts) > 0 {
				if err := tx.SetContexts(ctx, p.res.ID, opts.Contexts); err != nil {
					return err
				}
			}
		}

		rels := make([]store.Relationship, 0, len(result.Relationships))
		for _, e := range result.Relationships {
			rels = append(rels, store.Relationship{SourceID: ids[e.Source], TargetID: ids[e.Target], Type: e.Type})
		}
		report.Relationships = len(rels)
		return tx.CreateRelationships(ctx, rels)
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", root.OriginalID, err)
	}
	report.RootID = items[0].res.ID

	if s.deferred != nil {
		for _, id := range report.ResourceIDs {
			if !s.deferred.Enqueue(id) {
				s.logger.Debug("reindex_already_pending", slog.String("id", id))
			}
		}
	} else if err := s.syncIndex(ctx, removed, added); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	s.logger.Info("resource_ingested",
		slog.String("id", report.RootID),
		slog.String("original_id", root.OriginalID),
		slog.String("iiif_type", report.RootType),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("relationships", report.Relationships),
		slog.Int("indexables", report.Indexables),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// prepare builds the resource record and indexable entries for one request.
func (s *Service) prepare(ctx context.Context, req decompose.ResourceRequest, manifest *iiif.Node) (*prepared, error) {
	n := req.Node
	firstCanvas := iiif.FirstCanvas(n, manifest)

	thumbs, err := s.resolver.Thumbnail(ctx, n, firstCanvas, s.config.Dereference)
	if err != nil {
		return nil, fmt.Errorf("resolve thumbnail of %s: %w", req.OriginalID, err)
	}

	res := &store.Resource{
		OriginalID:        req.OriginalID,
		IIIFType:          req.IIIFType,
		Label:             jsonOrNil(labelMap(n.Get("label"), s.config.DefaultLanguage)),
		Metadata:          jsonOrNil(n.Get("metadata")),
		Rights:            rights(n),
		Provider:          jsonOrNil(n.Get("provider")),
		RequiredStatement: jsonOrNil(requiredStatement(n)),
	}
	if len(thumbs) > 0 {
		res.Thumbnail = jsonOrNil(thumbs)
	}
	if firstCanvas != nil {
		res.FirstCanvasID = firstCanvas.ID
	}

	return &prepared{
		req:     req,
		res:     res,
		entries: flatten.FlattenObject(n.Raw, s.config.Fields, s.config.DefaultLanguage),
	}, nil
}

// syncIndex removes replaced indexables from the text index and adds the
// new ones that carry text.
func (s *Service) syncIndex(ctx context.Context, removed []string, added []store.Indexable) error {
	if len(removed) > 0 {
		if err := s.index.Delete(ctx, removed); err != nil {
			return ierrors.Wrap(ierrors.ErrCodeIndexFailed, err)
		}
	}
	docs := documents(added)
	if len(docs) == 0 {
		return nil
	}
	if err := s.index.Index(ctx, docs); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeIndexFailed, err)
	}
	return nil
}

func documents(ixs []store.Indexable) []*index.Document {
	docs := make([]*index.Document, 0, len(ixs))
	for _, ix := range ixs {
		if ix.Text == "" {
			continue
		}
		docs = append(docs, &index.Document{ID: ix.ID, Content: ix.Text, Analyzer: ix.LanguageAnalyzer})
	}
	return docs
}

func labelMap(v any, defaultLang string) map[string][]string {
	if v == nil {
		return nil
	}
	return flatten.LanguageMap(v, defaultLang)
}

// rights reads the v3 "rights" or the v2 "license".
func rights(n *iiif.Node) string {
	for _, key := range []string{"rights", "license"} {
		switch v := n.Get(key).(type) {
		case string:
			return v
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

// requiredStatement reads the v3 "requiredStatement" or the v2 "attribution".
func requiredStatement(n *iiif.Node) any {
	if v := n.Get("requiredStatement"); v != nil {
		return v
	}
	if v := n.Get("attribution"); v != nil {
		return map[string]any{"label": map[string]any{"none": []any{"Attribution"}}, "value": v}
	}
	return nil
}

func jsonOrNil(v any) datatypes.JSON {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string][]string:
		if len(t) == 0 {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
