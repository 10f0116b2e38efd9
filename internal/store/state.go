package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetState returns the value stored under key, "" when absent.
func (s *GormStore) GetState(ctx context.Context, key string) (string, error) {
	var st State
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", storeErr("failed to get state", err)
	}
	return st.Value, nil
}

// SetState upserts a key.
func (s *GormStore) SetState(ctx context.Context, key, value string) error {
	return s.Transaction(ctx, func(tx *GormStore) error {
		err := tx.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&State{Key: key, Value: value}).Error
		return storeErr("failed to set state", err)
	})
}

// DeleteState removes a key. Missing keys are not an error.
func (s *GormStore) DeleteState(ctx context.Context, key string) error {
	return s.Transaction(ctx, func(tx *GormStore) error {
		return storeErr("failed to delete state", tx.db.Where("key = ?", key).Delete(&State{}).Error)
	})
}
