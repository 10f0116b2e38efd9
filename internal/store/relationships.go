package store

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"
)

// RelIsPartOf is the child-to-ancestor relationship type.
const RelIsPartOf = "isPartOf"

// CreateRelationships inserts edges, ignoring ones that already exist.
func (s *GormStore) CreateRelationships(ctx context.Context, rels []Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(tx *GormStore) error {
		err := tx.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rels, 200).Error
		return storeErr("failed to create relationships", err)
	})
}

// Ancestors returns the resources reachable from id by following relType
// edges from source to target, at any distance. An empty resourceType
// matches every type.
func (s *GormStore) Ancestors(ctx context.Context, id, relType, resourceType string) ([]Resource, error) {
	return s.traverse(ctx, id, relType, resourceType, "source_id", "target_id")
}

// Descendants returns the resources with a relType path ending at id.
func (s *GormStore) Descendants(ctx context.Context, id, relType, resourceType string) ([]Resource, error) {
	return s.traverse(ctx, id, relType, resourceType, "target_id", "source_id")
}

// traverse walks edges from column from to column to with a recursive CTE.
func (s *GormStore) traverse(ctx context.Context, id, relType, resourceType, from, to string) ([]Resource, error) {
	if relType == "" {
		relType = RelIsPartOf
	}
	sql := `WITH RECURSIVE walk(id) AS (
		SELECT ` + to + ` FROM relationships WHERE ` + from + ` = ? AND type = ?
		UNION
		SELECT r.` + to + ` FROM relationships r JOIN walk ON r.` + from + ` = walk.id WHERE r.type = ?
	) SELECT id FROM walk`

	var ids []string
	if err := s.db.WithContext(ctx).Raw(sql, id, relType, relType).Scan(&ids).Error; err != nil {
		return nil, storeErr("failed to traverse relationships", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Where("id IN ? AND id <> ?", ids, id)
	if resourceType != "" {
		q = q.Where("iiif_type = ?", strings.ToLower(resourceType))
	}
	var out []Resource
	if err := q.Order("original_id").Find(&out).Error; err != nil {
		return nil, storeErr("failed to load related resources", err)
	}
	return out, nil
}

// RelationshipsFor returns the edges touching id in either direction.
func (s *GormStore) RelationshipsFor(ctx context.Context, id string) ([]Relationship, error) {
	var out []Relationship
	err := s.db.WithContext(ctx).Where("source_id = ? OR target_id = ?", id, id).Order("id").Find(&out).Error
	if err != nil {
		return nil, storeErr("failed to list relationships", err)
	}
	return out, nil
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
