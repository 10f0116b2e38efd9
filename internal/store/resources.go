package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
)

// ListOptions filters and pages List.
type ListOptions struct {
	Types    []string
	Contexts []string // context slugs, any-of
	Offset   int
	Limit    int
}

// ReserveIDs returns an internal id for each original id: the stored id
// when the resource exists, otherwise a fresh UUID.
func (s *GormStore) ReserveIDs(ctx context.Context, originalIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(originalIDs))
	if len(originalIDs) == 0 {
		return out, nil
	}

	var rows []Resource
	for _, batch := range chunks(originalIDs, 500) {
		var part []Resource
		if err := s.db.WithContext(ctx).Select("id", "original_id").
			Where("original_id IN ?", batch).Find(&part).Error; err != nil {
			return nil, storeErr("failed to look up resources", err)
		}
		rows = append(rows, part...)
	}
	for _, r := range rows {
		out[r.OriginalID] = r.ID
	}
	for _, oid := range originalIDs {
		if _, ok := out[oid]; !ok {
			out[oid] = uuid.NewString()
		}
	}
	return out, nil
}

// SaveResource inserts r or updates the stored resource with the same
// original id in place. An empty r.ID is filled from the stored row or a new
// UUID. The id in r.IIIFJSON is rewritten to the canonical id when it
// differs. It reports whether a new row was created.
func (s *GormStore) SaveResource(ctx context.Context, r *Resource) (bool, error) {
	if r.OriginalID == "" {
		return false, ierrors.InvalidResource("resource has no original id")
	}

	created := false
	err := s.Transaction(ctx, func(tx *GormStore) error {
		var existing Resource
		err := tx.db.Select("id", "created_at").Where("original_id = ?", r.OriginalID).Take(&existing).Error
		switch {
		case err == nil:
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			created = true
		default:
			return storeErr("failed to look up resource", err)
		}

		if err := tx.canonicalise(r); err != nil {
			return err
		}
		if err := tx.db.Omit(clause.Associations).Save(r).Error; err != nil {
			if isDuplicate(err) {
				return ierrors.New(ierrors.ErrCodeDuplicateResource, "resource already exists", err).
					WithDetail("original_id", r.OriginalID)
			}
			return storeErr("failed to save resource", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logger.Debug("resource_saved",
		slog.String("id", r.ID),
		slog.String("original_id", r.OriginalID),
		slog.String("iiif_type", r.IIIFType),
		slog.Bool("created", created))
	return created, nil
}

// CreateResource inserts r and fails with ErrCodeDuplicateResource when its
// original id is already stored.
func (s *GormStore) CreateResource(ctx context.Context, r *Resource) error {
	if r.OriginalID == "" {
		return ierrors.InvalidResource("resource has no original id")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return s.Transaction(ctx, func(tx *GormStore) error {
		if err := tx.canonicalise(r); err != nil {
			return err
		}
		if err := tx.db.Omit(clause.Associations).Create(r).Error; err != nil {
			if isDuplicate(err) {
				return ierrors.New(ierrors.ErrCodeDuplicateResource, "resource already exists", err).
					WithDetail("original_id", r.OriginalID).
					WithSuggestion("update the existing resource instead")
			}
			return storeErr("failed to create resource", err)
		}
		return nil
	})
}

// canonicalise rewrites the stored JSON's own id to the canonical id.
func (s *GormStore) canonicalise(r *Resource) error {
	obj, err := iiif.DecodeObject(r.IIIFJSON)
	if err != nil {
		return ierrors.New(ierrors.ErrCodeInvalidResource, "stored IIIF JSON is not an object", err).
			WithDetail("original_id", r.OriginalID)
	}
	n := iiif.FromMap(obj, iiif.VersionUnknown)
	canonical := s.CanonicalID(r.IIIFType, r.ID)
	if n.ID == canonical {
		return nil
	}
	n.SetID(canonical)
	data, err := json.Marshal(obj)
	if err != nil {
		return ierrors.InternalError("failed to encode IIIF JSON", err)
	}
	r.IIIFJSON = data
	return nil
}

// GetResource returns a resource with its contexts.
func (s *GormStore) GetResource(ctx context.Context, id string) (*Resource, error) {
	var r Resource
	err := s.db.WithContext(ctx).Preload("Contexts").Where("id = ?", id).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ierrors.NotFound(id)
	}
	if err != nil {
		return nil, storeErr("failed to get resource", err)
	}
	return &r, nil
}

// GetResourceByOriginalID returns the resource ingested under originalID.
func (s *GormStore) GetResourceByOriginalID(ctx context.Context, originalID string) (*Resource, error) {
	var r Resource
	err := s.db.WithContext(ctx).Preload("Contexts").Where("original_id = ?", originalID).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ierrors.NotFound(originalID).WithDetail("original_id", originalID)
	}
	if err != nil {
		return nil, storeErr("failed to get resource", err)
	}
	return &r, nil
}

// GetResources returns the resources with the given ids, contexts loaded,
// in no particular order.
func (s *GormStore) GetResources(ctx context.Context, ids []string) ([]Resource, error) {
	var out []Resource
	for _, batch := range chunks(ids, 500) {
		var part []Resource
		if err := s.db.WithContext(ctx).Preload("Contexts").Where("id IN ?", batch).Find(&part).Error; err != nil {
			return nil, storeErr("failed to get resources", err)
		}
		out = append(out, part...)
	}
	return out, nil
}

// ListResources returns a page of resources ordered by creation, and the
// total count matching the filter.
func (s *GormStore) ListResources(ctx context.Context, opts ListOptions) ([]Resource, int64, error) {
	q := s.db.WithContext(ctx).Model(&Resource{})
	if len(opts.Types) > 0 {
		q = q.Where("iiif_type IN ?", lower(opts.Types))
	}
	if len(opts.Contexts) > 0 {
		q = q.Where("id IN (?)", s.db.Table("resource_contexts").
			Select("resource_contexts.resource_id").
			Joins("JOIN contexts ON contexts.id = resource_contexts.context_id").
			Where("contexts.slug IN ?", opts.Contexts))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, storeErr("failed to count resources", err)
	}

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var out []Resource
	if err := q.Preload("Contexts").Order("created_at, original_id").Find(&out).Error; err != nil {
		return nil, 0, storeErr("failed to list resources", err)
	}
	return out, total, nil
}

// AllResourceIDs returns every resource id.
func (s *GormStore) AllResourceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Resource{}).Order("created_at").Pluck("id", &ids).Error; err != nil {
		return nil, storeErr("failed to list resource ids", err)
	}
	return ids, nil
}

// UpdateIIIFJSON replaces a resource's stored JSON, keeping its canonical id.
func (s *GormStore) UpdateIIIFJSON(ctx context.Context, id string, data []byte) error {
	return s.Transaction(ctx, func(tx *GormStore) error {
		var r Resource
		if err := tx.db.Where("id = ?", id).Take(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ierrors.NotFound(id)
			}
			return storeErr("failed to load resource", err)
		}
		r.IIIFJSON = data
		if err := tx.canonicalise(&r); err != nil {
			return err
		}
		return storeErr("failed to update resource JSON",
			tx.db.Model(&Resource{}).Where("id = ?", id).Update("iiif_json", r.IIIFJSON).Error)
	})
}

// DeleteResult lists what a delete removed.
type DeleteResult struct {
	ResourceIDs  []string
	IndexableIDs []string
}

// DeleteResource removes a resource with its relationships, indexables and
// context links. Deleting a manifest also deletes every resource that
// isPartOf it.
func (s *GormStore) DeleteResource(ctx context.Context, id string) (*DeleteResult, error) {
	result := &DeleteResult{}
	err := s.Transaction(ctx, func(tx *GormStore) error {
		var r Resource
		if err := tx.db.Select("id", "iiif_type").Where("id = ?", id).Take(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ierrors.NotFound(id)
			}
			return storeErr("failed to load resource", err)
		}

		ids := []string{id}
		if r.IIIFType == "manifest" {
			var children []string
			if err := tx.db.Model(&Relationship{}).
				Where("target_id = ? AND type = ?", id, RelIsPartOf).
				Distinct().Pluck("source_id", &children).Error; err != nil {
				return storeErr("failed to find descendants", err)
			}
			ids = append(ids, children...)
		}

		for _, batch := range chunks(ids, 500) {
			var idxIDs []string
			if err := tx.db.Model(&Indexable{}).Where("resource_id IN ?", batch).Pluck("id", &idxIDs).Error; err != nil {
				return storeErr("failed to list indexables", err)
			}
			result.IndexableIDs = append(result.IndexableIDs, idxIDs...)

			steps := []struct {
				what string
				run  func() error
			}{
				{"indexables", func() error { return tx.db.Where("resource_id IN ?", batch).Delete(&Indexable{}).Error }},
				{"relationships", func() error {
					return tx.db.Where("source_id IN ? OR target_id IN ?", batch, batch).Delete(&Relationship{}).Error
				}},
				{"context links", func() error {
					return tx.db.Exec("DELETE FROM resource_contexts WHERE resource_id IN ?", batch).Error
				}},
				{"resources", func() error { return tx.db.Where("id IN ?", batch).Delete(&Resource{}).Error }},
			}
			for _, step := range steps {
				if err := step.run(); err != nil {
					return storeErr(fmt.Sprintf("failed to delete %s", step.what), err)
				}
			}
		}
		result.ResourceIDs = ids
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("resource_deleted",
		slog.String("id", id),
		slog.Int("resources", len(result.ResourceIDs)),
		slog.Int("indexables", len(result.IndexableIDs)))
	return result, nil
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
