package store

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Aman-CERP/iiifstore/internal/flatten"
)

// ReplaceResult reports an indexable replacement.
type ReplaceResult struct {
	Added      []Indexable
	RemovedIDs []string
}

// ReplaceIndexables deletes every indexable of resourceID and inserts one
// row per entry, with language columns filled from the entry's language.
// Both steps run in one transaction.
func (s *GormStore) ReplaceIndexables(ctx context.Context, resourceID string, entries []flatten.Entry) (*ReplaceResult, error) {
	result := &ReplaceResult{Added: make([]Indexable, 0, len(entries))}
	for _, e := range entries {
		result.Added = append(result.Added, NewIndexable(resourceID, e))
	}

	err := s.Transaction(ctx, func(tx *GormStore) error {
		if err := tx.db.Model(&Indexable{}).Where("resource_id = ?", resourceID).
			Pluck("id", &result.RemovedIDs).Error; err != nil {
			return storeErr("failed to list indexables", err)
		}
		if err := tx.db.Where("resource_id = ?", resourceID).Delete(&Indexable{}).Error; err != nil {
			return storeErr("failed to delete indexables", err)
		}
		if len(result.Added) == 0 {
			return nil
		}
		return storeErr("failed to insert indexables", tx.db.CreateInBatches(&result.Added, 200).Error)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("indexables_replaced",
		slog.String("resource_id", resourceID),
		slog.Int("removed", len(result.RemovedIDs)),
		slog.Int("added", len(result.Added)))
	return result, nil
}

// NewIndexable builds an unsaved indexable from a flattened entry.
func NewIndexable(resourceID string, e flatten.Entry) Indexable {
	lang := flatten.Describe(e.Language)
	return Indexable{
		ID:               uuid.NewString(),
		ResourceID:       resourceID,
		Type:             e.Type,
		Subtype:          e.Subtype,
		LanguageISO639_2: lang.ISO639_2,
		LanguageISO639_1: lang.ISO639_1,
		LanguageDisplay:  lang.Display,
		LanguageAnalyzer: lang.Analyzer,
		Text:             e.Text,
		DateStart:        e.DateStart,
		DateEnd:          e.DateEnd,
		Int:              e.Int,
		Float:            e.Float,
		OriginalContent:  e.OriginalContent,
		GroupID:          e.GroupID,
	}
}

// IndexablesFor returns the indexables of the given resources.
func (s *GormStore) IndexablesFor(ctx context.Context, resourceIDs []string) ([]Indexable, error) {
	var out []Indexable
	for _, batch := range chunks(resourceIDs, 500) {
		var part []Indexable
		if err := s.db.WithContext(ctx).Where("resource_id IN ?", batch).
			Order("resource_id, group_id, language_iso639_2").Find(&part).Error; err != nil {
			return nil, storeErr("failed to list indexables", err)
		}
		out = append(out, part...)
	}
	return out, nil
}

// GetIndexables returns the indexables with the given ids.
func (s *GormStore) GetIndexables(ctx context.Context, ids []string) ([]Indexable, error) {
	var out []Indexable
	for _, batch := range chunks(ids, 500) {
		var part []Indexable
		if err := s.db.WithContext(ctx).Where("id IN ?", batch).Find(&part).Error; err != nil {
			return nil, storeErr("failed to get indexables", err)
		}
		out = append(out, part...)
	}
	return out, nil
}

// TextIndexableIDs returns the ids of indexables that carry text, which
// are the ones held by the text index.
func (s *GormStore) TextIndexableIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Indexable{}).Where("indexable <> ''").Pluck("id", &ids).Error; err != nil {
		return nil, storeErr("failed to list indexable ids", err)
	}
	return ids, nil
}
