package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/flatten"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
	"github.com/Aman-CERP/iiifstore/internal/index"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// Get returns a stored resource by internal id.
func (s *Service) Get(ctx context.Context, id string) (*store.Resource, error) {
	return s.store.GetResource(ctx, id)
}

// GetByOriginalID returns the resource ingested under originalID.
func (s *Service) GetByOriginalID(ctx context.Context, originalID string) (*store.Resource, error) {
	return s.store.GetResourceByOriginalID(ctx, originalID)
}

// Lookup resolves ref as an internal id first, then as an original id.
func (s *Service) Lookup(ctx context.Context, ref string) (*store.Resource, error) {
	r, err := s.store.GetResource(ctx, ref)
	if err == nil || !ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound) {
		return r, err
	}
	return s.store.GetResourceByOriginalID(ctx, ref)
}

// List returns a page of resources and the total count.
func (s *Service) List(ctx context.Context, opts store.ListOptions) ([]store.Resource, int64, error) {
	return s.store.ListResources(ctx, opts)
}

// DeleteReport summarises a Delete call.
type DeleteReport struct {
	ResourceIDs []string `json:"resource_ids"`
	Indexables  int      `json:"indexables"`
}

// Delete removes a resource, its descendants when it is a manifest, and
// their text index entries.
func (s *Service) Delete(ctx context.Context, id string) (*DeleteReport, error) {
	result, err := s.store.DeleteResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(result.IndexableIDs) > 0 {
		if err := s.index.Delete(ctx, result.IndexableIDs); err != nil {
			// The check command finds and removes what is left behind.
			s.logger.Warn("text_index_delete_failed",
				slog.String("id", id),
				slog.Int("entries", len(result.IndexableIDs)),
				slog.String("error", err.Error()))
			return nil, ierrors.Wrap(ierrors.ErrCodeIndexFailed, err)
		}
	}
	return &DeleteReport{ResourceIDs: result.ResourceIDs, Indexables: len(result.IndexableIDs)}, nil
}

// ReindexReport summarises a Reindex call.
type ReindexReport struct {
	Resources  int           `json:"resources"`
	Indexables int           `json:"indexables"`
	Failed     []string      `json:"failed,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Reindex regenerates the indexables of a resource from its stored JSON.
// An empty id reindexes every resource; a failure on one resource is
// recorded and the rest continue.
func (s *Service) Reindex(ctx context.Context, id string) (*ReindexReport, error) {
	start := time.Now()
	report := &ReindexReport{}

	if id != "" {
		n, err := s.reindexOne(ctx, id)
		if err != nil {
			return nil, err
		}
		report.Resources = 1
		report.Indexables = n
		report.Duration = time.Since(start)
		return report, nil
	}

	ids, err := s.store.AllResourceIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, rid := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.reindexOne(ctx, rid)
		if err != nil {
			s.logger.Warn("reindex_failed", slog.String("id", rid), slog.String("error", err.Error()))
			report.Failed = append(report.Failed, rid)
			continue
		}
		report.Resources++
		report.Indexables += n
	}
	report.Duration = time.Since(start)

	s.logger.Info("reindex_complete",
		slog.Int("resources", report.Resources),
		slog.Int("indexables", report.Indexables),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (s *Service) reindexOne(ctx context.Context, id string) (int, error) {
	r, err := s.store.GetResource(ctx, id)
	if err != nil {
		return 0, err
	}
	obj, err := iiif.DecodeObject(r.IIIFJSON)
	if err != nil {
		return 0, ierrors.New(ierrors.ErrCodeInvalidResource, "stored IIIF JSON is not an object", err).
			WithDetail("id", id)
	}
	entries := flatten.FlattenObject(obj, s.config.Fields, s.config.DefaultLanguage)

	rr, err := s.store.ReplaceIndexables(ctx, id, entries)
	if err != nil {
		return 0, err
	}
	if err := s.syncIndex(ctx, rr.RemovedIDs, rr.Added); err != nil {
		return 0, fmt.Errorf("reindex %s: %w", id, err)
	}
	return len(rr.Added), nil
}

// DocumentIDs returns the ids of stored indexables that carry text.
func (s *Service) DocumentIDs(ctx context.Context) ([]string, error) {
	return s.store.TextIndexableIDs(ctx)
}

// Documents loads stored indexables as text index documents.
func (s *Service) Documents(ctx context.Context, ids []string) ([]*index.Document, error) {
	ixs, err := s.store.GetIndexables(ctx, ids)
	if err != nil {
		return nil, err
	}
	return documents(ixs), nil
}

// Check compares the stored indexables with the text index.
func (s *Service) Check(ctx context.Context) (*index.CheckResult, error) {
	return index.NewConsistencyChecker(s, s.index).Check(ctx)
}

// Repair removes orphaned text index entries and indexes missing ones.
func (s *Service) Repair(ctx context.Context, issues []index.Inconsistency) error {
	return index.NewConsistencyChecker(s, s.index).Repair(ctx, issues)
}

// Reconcile runs Check and repairs whatever it finds.
func (s *Service) Reconcile(ctx context.Context) (*index.CheckResult, error) {
	result, err := s.Check(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Inconsistencies) == 0 {
		return result, nil
	}
	if err := s.Repair(ctx, result.Inconsistencies); err != nil {
		return nil, err
	}
	orphans, missing := result.Counts()
	s.logger.Info("index_reconciled", slog.Int("orphans", orphans), slog.Int("missing", missing))
	return result, nil
}
