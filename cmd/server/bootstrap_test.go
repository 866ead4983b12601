package main

import (
	"bytes"
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/internal/app"
	"github.com/jsmooother/ej-development-sub001/internal/cache"
	"github.com/jsmooother/ej-development-sub001/internal/database/testutil"
	"github.com/jsmooother/ej-development-sub001/internal/services"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestRunFailsFastWithoutProviderCredentials(t *testing.T) {
	dir := writeConfig(t, `
server:
  log_level: error
database:
  path: `+filepath.Join(t.TempDir(), "unused.sqlite")+`
`)

	err := run(context.Background(), []string{"-config", dir})
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider.app_id must be configured")
	require.Contains(t, err.Error(), "provider.app_secret must be configured")
}

func TestRunRejectsMissingConfigPath(t *testing.T) {
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing")})
	require.ErrorContains(t, err, "does not exist")
}

func validConfigDir(t *testing.T) string {
	t.Helper()
	return writeConfig(t, `
server:
  log_level: error
  base_url: https://www.example-studio.com
database:
  path: `+filepath.Join(t.TempDir(), "mediasync.sqlite")+`
provider:
  app_id: "1234567890"
  app_secret: app-secret
security:
  secret: 00112233445566778899aabbccddeeff
`)
}

func TestRunCheckConfig(t *testing.T) {
	require.NoError(t, run(context.Background(), []string{"-config", validConfigDir(t), "-check-config"}))
}

func TestRunSyncOnceRequiresConnection(t *testing.T) {
	err := run(context.Background(), []string{"-config", validConfigDir(t), "-sync-once"})
	require.ErrorIs(t, err, services.ErrNotConnected)
}

func TestParseOptions(t *testing.T) {
	var out bytes.Buffer
	_, err := parseOptions([]string{"-check-config", "-sync-once"}, &out)
	require.ErrorContains(t, err, "mutually exclusive")

	_, err = parseOptions([]string{"-h"}, &out)
	require.ErrorIs(t, err, flag.ErrHelp)
	require.Contains(t, out.String(), "-sync-once")

	opts, err := parseOptions([]string{"-config", "/etc/mediasync"}, &out)
	require.NoError(t, err)
	require.Equal(t, "/etc/mediasync", opts.configPath)
}

func TestBootstrapRuntimeServesRoutes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mediasync.sqlite")
	dir := writeConfig(t, `
server:
  base_url: https://www.example-studio.com
database:
  path: `+dbPath+`
provider:
  app_id: "1234567890"
  app_secret: app-secret
security:
  secret: 00112233445566778899aabbccddeeff
`)

	cfg, err := app.LoadConfig(dir)
	require.NoError(t, err)
	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Equal(t, "database", stack.Cache.Backend())
	require.True(t, stack.Cache.Connected())
	require.NotNil(t, stack.RateStore)

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/integrations/media/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"is_connected":false`)

	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/integrations/media/connect", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "client_id=1234567890")
	require.Contains(t, rec.Header().Get("Location"), "redirect_uri=https%3A%2F%2Fwww.example-studio.com%2Fapi%2Fintegrations%2Fmedia%2Fcallback")
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres = app.DBAuthConfig{Host: " db.internal ", Port: 5432, Database: "media", Username: "site", Password: "pw"}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "media", dbCfg.Name)

	cfg.Database.Driver = "mariadb"
	cfg.Database.MySQL = app.DBAuthConfig{Host: "mysql.internal", Port: 3306}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql.internal", dbCfg.Host)

	cfg.Database.Driver = ""
	cfg.Database.Path = "./data/x.sqlite"
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/x.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)
}

func TestOpenCacheStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	cfg := &app.Config{}

	store, backend, err := openCacheStore(ctx, cfg, cache.NewDatabaseStore(nil), zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, store)
	require.Equal(t, "none", backend)

	cfg.Cache.Backend = "none"
	store, backend, err = openCacheStore(ctx, cfg, cache.NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())), zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, store)
	require.Equal(t, "none", backend)

	cfg.Cache.Backend = "database"
	store, backend, err = openCacheStore(ctx, cfg, cache.NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())), zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &cache.DatabaseStore{}, store)
	require.Equal(t, "database", backend)
}

func TestOpenCacheStoreFallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := &app.Config{}
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Address = "127.0.0.1:1"
	cfg.Cache.Redis.Timeout = 200 * time.Millisecond
	dbStore := cache.NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))

	store, backend, err := openCacheStore(context.Background(), cfg, dbStore, zap.NewNop())
	require.NoError(t, err)
	require.Same(t, dbStore, store)
	require.Equal(t, "database", backend)

	_, _, err = openCacheStore(context.Background(), cfg, nil, zap.NewNop())
	require.ErrorContains(t, err, "redis cache unreachable")
}

func TestBootstrapRuntimeWithUnreachableRedis(t *testing.T) {
	dir := writeConfig(t, `
server:
  base_url: https://www.example-studio.com
database:
  path: `+filepath.Join(t.TempDir(), "mediasync.sqlite")+`
cache:
  backend: redis
  redis:
    address: 127.0.0.1:1
    timeout: 200ms
provider:
  app_id: "1234567890"
  app_secret: app-secret
security:
  secret: 00112233445566778899aabbccddeeff
`)

	cfg, err := app.LoadConfig(dir)
	require.NoError(t, err)
	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Equal(t, "database", stack.Cache.Backend())
	require.True(t, stack.Cache.Connected())
	require.IsType(t, &cache.DatabaseStore{}, stack.Cache.Store())
}
