// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/database"
	"github.com/jsmooother/ej-development-sub001/internal/models"
)

// Environment variables that point the suite at a real server instead of SQLite.
const (
	EnvDriver = "MEDIASYNC_TEST_DB_DRIVER"
	EnvDSN    = "MEDIASYNC_TEST_DB_DSN"
)

// TestDBOption customises MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
}

// WithAutoMigrate applies the schema after opening.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) { cfg.autoMigrate = true }
}

// MustOpenTestDB returns a database private to t, closed on cleanup. By default it
// is a named in-memory SQLite database. With EnvDriver and EnvDSN set the schema
// lives on that server instead and every table is emptied on cleanup, so such runs
// must not use t.Parallel.
func MustOpenTestDB(t testing.TB, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	var cfg testDBConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	driver, dsn := os.Getenv(EnvDriver), os.Getenv(EnvDSN)
	external := driver != "" && dsn != ""
	if !external {
		driver, dsn = "sqlite", database.MemoryDSN("test-"+uuid.NewString())
	}

	db, err := database.Open(database.Config{Driver: driver, DSN: dsn, MaxOpenConns: 1})
	require.NoError(t, err)
	if cfg.autoMigrate || external {
		require.NoError(t, database.Migrate(db))
	}

	t.Cleanup(func() {
		if external {
			truncate(db)
		}
		_ = database.Close(db)
	})
	return db
}

func truncate(db *gorm.DB) {
	all := db.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&models.MediaItem{}, &models.ProviderCredential{}, &models.CacheEntry{}} {
		_ = all.Unscoped().Delete(model).Error
	}
}
