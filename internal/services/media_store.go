package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/models"
)

const mediaInsertBatch = 100

// MediaStore holds the persisted copy of the provider feed.
type MediaStore struct {
	db *gorm.DB
}

// NewMediaStore constructs a MediaStore.
func NewMediaStore(db *gorm.DB) (*MediaStore, error) {
	if db == nil {
		return nil, errors.New("media store: db is required")
	}
	return &MediaStore{db: db}, nil
}

// Replace swaps the whole collection of credentialID for items. It must run inside
// the caller's transaction so readers never observe an empty intermediate state.
func (s *MediaStore) Replace(ctx context.Context, tx *gorm.DB, credentialID string, items []models.MediaItem) error {
	if tx == nil {
		return errors.New("media store: replace requires a transaction")
	}
	tx = tx.WithContext(ctx)

	if err := tx.Where("credential_id = ?", credentialID).Delete(&models.MediaItem{}).Error; err != nil {
		return fmt.Errorf("media store: clear: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(items, mediaInsertBatch).Error; err != nil {
		return fmt.Errorf("media store: insert: %w", err)
	}
	return nil
}

// List returns the stored collection in feed order.
func (s *MediaStore) List(ctx context.Context, credentialID string) ([]models.MediaItem, error) {
	var items []models.MediaItem
	err := s.db.WithContext(ctx).
		Where("credential_id = ?", credentialID).
		Order("position ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("media store: list: %w", err)
	}
	return items, nil
}
