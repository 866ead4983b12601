package database

import (
	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ProviderCredential{},
		&models.MediaItem{},
		&models.CacheEntry{},
	)
}
