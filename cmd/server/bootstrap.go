package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/api"
	"github.com/jsmooother/ej-development-sub001/internal/app"
	"github.com/jsmooother/ej-development-sub001/internal/app/maintenance"
	"github.com/jsmooother/ej-development-sub001/internal/auth"
	"github.com/jsmooother/ej-development-sub001/internal/cache"
	"github.com/jsmooother/ej-development-sub001/internal/database"
	"github.com/jsmooother/ej-development-sub001/internal/middleware"
	"github.com/jsmooother/ej-development-sub001/internal/monitoring"
	"github.com/jsmooother/ej-development-sub001/internal/monitoring/checks"
	"github.com/jsmooother/ej-development-sub001/internal/notifications"
	"github.com/jsmooother/ej-development-sub001/internal/provider"
	"github.com/jsmooother/ej-development-sub001/internal/services"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
	"github.com/jsmooother/ej-development-sub001/pkg/mail"
)

const (
	healthProbeTimeout = 3 * time.Second
	credentialWarning  = 7 * 24 * time.Hour
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Cache     *cache.Client
	Sync      *services.SyncService
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine

	memoryRates *middleware.MemoryRateStore
}

// bootstrapRuntime initialises the database, cache, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	keys, err := cfg.DeriveKeys()
	if err != nil {
		return nil, err
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	store, backend, err := openCacheStore(ctx, cfg, dbStore, log)
	if err != nil {
		return nil, err
	}
	stack.Cache = cache.NewClient(store, append(cfg.Cache.ClientOptions(), cache.WithBackendName(backend))...)
	if store == nil {
		log.Info("cache disabled; every read goes to the database or provider")
	} else if err := stack.Cache.Connect(ctx); err != nil {
		// The client reconnects lazily; the service runs uncached until then.
		log.Warn("cache unavailable at start-up", zap.String("backend", backend), zap.Error(err))
	} else {
		log.Info("cache connected", zap.String("backend", backend))
	}

	client, err := provider.NewClient(cfg.Provider.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise provider client: %w", err)
	}

	creds, err := services.NewCredentialStore(stack.DB, client.Name(), keys.TokenEncryption)
	if err != nil {
		return nil, fmt.Errorf("initialise credential store: %w", err)
	}
	media, err := services.NewMediaStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise media store: %w", err)
	}

	stack.Sync, err = services.NewSyncService(stack.DB, creds, media, stack.Cache, client, client, cfg.SyncServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise sync service: %w", err)
	}

	if cfg.Notify.Email.Enabled {
		mailer, err := mail.NewSMTPMailer(cfg.Notify.Email.MailSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
		notifier, err := notifications.NewEmailNotifier(mailer, cfg.Notify.Email.To, cfg.ReconnectURL())
		if err != nil {
			return nil, fmt.Errorf("initialise notifications: %w", err)
		}
		stack.Sync.SetNotifier(notifier)
		log.Info("reconnect notifications enabled", zap.Int("recipients", len(cfg.Notify.Email.To)))
	}

	signer, err := auth.NewStateSigner(keys.StateSigning, cfg.Security.StateTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise state signer: %w", err)
	}
	conn, err := services.NewConnectionService(client, creds, stack.Sync, signer, cfg.ConnectionOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise connection service: %w", err)
	}

	var purger maintenance.ExpiredPurger
	if backend == "database" {
		purger = dbStore
	}
	stack.Cleaner = maintenance.NewCleaner(purger,
		maintenance.WithPurgeSchedule(cfg.Maintenance.CachePurgeSchedule),
		maintenance.WithSync(stack.Sync, cfg.Sync.Schedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if cfg.Server.RateLimit.Enabled {
		if rates := middleware.NewCacheRateStore(store); rates != nil {
			stack.RateStore = rates
		} else {
			stack.memoryRates = middleware.NewMemoryRateStore()
			stack.RateStore = stack.memoryRates
		}
	}

	health := monitoring.NewHealthManager(healthProbeTimeout)
	health.RegisterLiveness(checks.ProviderConfig(client.Name(), cfg.Provider.AppID, cfg.Provider.AppSecret))
	health.RegisterReadiness(checks.Database(stack.DB))
	if store != nil {
		health.RegisterReadiness(checks.Cache(stack.Cache))
	}
	health.RegisterReadiness(checks.Credential(stack.Sync, credentialWarning, nil))

	stack.Router, err = api.NewRouter(api.Dependencies{
		Sync:       stack.Sync,
		Connection: conn,
		Health:     health,
		RateStore:  stack.RateStore,
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// openCacheStore picks the cache backend and returns it with the label the client
// reports. The database store shares the primary connection; redis gets its own
// and is swapped for the database store when it does not answer at start-up.
func openCacheStore(ctx context.Context, cfg *app.Config, dbStore *cache.DatabaseStore, log *zap.Logger) (cache.Store, string, error) {
	switch backend := cfg.Cache.BackendName(); backend {
	case "none":
		return nil, backend, nil
	case "redis":
		client, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err != nil {
			return nil, "", fmt.Errorf("initialise redis cache: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		err = client.Ping(pingCtx)
		cancel()
		if err == nil {
			return client, backend, nil
		}
		_ = client.Close()
		if dbStore == nil {
			return nil, "", fmt.Errorf("redis cache unreachable: %w", err)
		}
		log.Warn("redis unavailable; falling back to the database cache",
			zap.String("address", cfg.Cache.Redis.Address),
			zap.Error(err),
		)
		return dbStore, "database", nil
	default:
		if dbStore == nil {
			return nil, "none", nil
		}
		return dbStore, "database", nil
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Sync != nil {
		s.Sync.WaitNotifications()
	}

	if s.memoryRates != nil {
		s.memoryRates.Stop()
	}

	if s.Cache != nil {
		if err := s.Cache.Disconnect(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cache disconnect: %w", err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if errs != nil {
		log.Warn("shutdown finished with errors", zap.Error(errs))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var hostCfg app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		hostCfg = cfg.Database.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		hostCfg = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(hostCfg.Host)
	dbCfg.Port = hostCfg.Port
	dbCfg.Name = strings.TrimSpace(hostCfg.Database)
	dbCfg.User = strings.TrimSpace(hostCfg.Username)
	dbCfg.Password = hostCfg.Password
	return dbCfg
}
