package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// ParseContext parses "type:slug". A value without a colon is a slug of
// type "site".
func ParseContext(s string) (Context, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Context{}, ierrors.New(ierrors.ErrCodeInvalidInput, "empty context", nil)
	}
	typ, slug, ok := strings.Cut(s, ":")
	if !ok {
		return Context{Type: "site", Slug: s}, nil
	}
	if typ == "" || slug == "" {
		return Context{}, ierrors.New(ierrors.ErrCodeInvalidInput, fmt.Sprintf("invalid context %q, want type:slug", s), nil)
	}
	return Context{Type: typ, Slug: slug}, nil
}

// GetOrCreateContext returns the stored context matching c, creating it
// when missing. A context is matched by id when c.ID is set, otherwise by
// type and slug; a new context without an id gets "type:slug".
func (s *GormStore) GetOrCreateContext(ctx context.Context, c Context) (*Context, error) {
	if c.ID == "" && (c.Type == "" || c.Slug == "") {
		return nil, ierrors.New(ierrors.ErrCodeInvalidInput, "context needs an id or a type and slug", nil)
	}

	var out Context
	err := s.Transaction(ctx, func(tx *GormStore) error {
		q := tx.db
		if c.ID != "" {
			q = q.Where("id = ?", c.ID)
		} else {
			q = q.Where("type = ? AND slug = ?", c.Type, c.Slug)
		}
		err := q.Take(&out).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storeErr("failed to look up context", err)
		}

		out = c
		if out.ID == "" {
			out.ID = out.Type + ":" + out.Slug
		}
		if err := tx.db.Create(&out).Error; err != nil {
			if isDuplicate(err) {
				return ierrors.New(ierrors.ErrCodeDuplicateResource, "context type and slug already used by another id", err).
					WithDetail("type", c.Type).WithDetail("slug", c.Slug)
			}
			return storeErr("failed to create context", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetContexts replaces the context set of a resource. Contexts are created
// as needed. Calling it twice with the same contexts changes nothing.
func (s *GormStore) SetContexts(ctx context.Context, resourceID string, contexts []Context) error {
	return s.Transaction(ctx, func(tx *GormStore) error {
		resolved := make([]Context, 0, len(contexts))
		for _, c := range contexts {
			got, err := tx.GetOrCreateContext(ctx, c)
			if err != nil {
				return err
			}
			resolved = append(resolved, *got)
		}

		var n int64
		if err := tx.db.Model(&Resource{}).Where("id = ?", resourceID).Count(&n).Error; err != nil {
			return storeErr("failed to look up resource", err)
		}
		if n == 0 {
			return ierrors.NotFound(resourceID)
		}

		if err := tx.db.Exec("DELETE FROM resource_contexts WHERE resource_id = ?", resourceID).Error; err != nil {
			return storeErr("failed to clear contexts", err)
		}
		for _, c := range resolved {
			if err := tx.db.Exec("INSERT INTO resource_contexts (resource_id, context_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
				resourceID, c.ID).Error; err != nil {
				return storeErr("failed to attach context", err)
			}
		}
		return nil
	})
}

// ContextSummary is a context with the number of resources attached to it.
type ContextSummary struct {
	Context
	Resources int64 `json:"resources"`
}

// ListContexts returns all contexts with their resource counts.
func (s *GormStore) ListContexts(ctx context.Context) ([]ContextSummary, error) {
	var out []ContextSummary
	err := s.db.WithContext(ctx).Model(&Context{}).
		Select("contexts.id, contexts.type, contexts.slug, COUNT(resource_contexts.resource_id) AS resources").
		Joins("LEFT JOIN resource_contexts ON resource_contexts.context_id = contexts.id").
		Group("contexts.id, contexts.type, contexts.slug").
		Order("contexts.type, contexts.slug").
		Scan(&out).Error
	if err != nil {
		return nil, storeErr("failed to list contexts", err)
	}
	return out, nil
}
