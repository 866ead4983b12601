package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/internal/services"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
)

const (
	defaultPurgeSpec = "@every 15m"
	defaultJobBudget = 2 * time.Minute
)

// ExpiredPurger removes cache rows past their expiry.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Syncer runs a media sync.
type Syncer interface {
	Sync(ctx context.Context, opts services.SyncOptions) (*services.SyncResult, error)
}

// Cleaner coordinates background jobs: purging expired cache rows and the optional
// scheduled warm-up sync.
type Cleaner struct {
	purger ExpiredPurger
	syncer Syncer
	cron   *cron.Cron
	log    *zap.Logger
	budget time.Duration

	purgeSchedule string
	syncSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithPurgeSchedule overrides the cron specification for cache purging.
func WithPurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// WithSync enables the scheduled sync. An empty spec leaves it disabled.
func WithSync(syncer Syncer, spec string) Option {
	return func(cleaner *Cleaner) {
		cleaner.syncer = syncer
		cleaner.syncSchedule = spec
	}
}

// WithJobBudget bounds how long a single job may run.
func WithJobBudget(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.budget = d
		}
	}
}

// NewCleaner constructs a Cleaner. A nil purger disables cache purging; the sync job
// only runs when WithSync supplied both a syncer and a schedule.
func NewCleaner(purger ExpiredPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		purger:        purger,
		purgeSchedule: defaultPurgeSpec,
		budget:        defaultJobBudget,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

func (c *Cleaner) syncEnabled() bool {
	return c.syncer != nil && c.syncSchedule != ""
}

// Start registers jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if c.purger == nil && !c.syncEnabled() {
		return nil
	}

	if c.purger != nil {
		if _, err := c.cron.AddFunc(c.purgeSchedule, c.runPurge); err != nil {
			return err
		}
	}

	if c.syncEnabled() {
		if _, err := c.cron.AddFunc(c.syncSchedule, c.runSync); err != nil {
			return err
		}
		c.log.Info("scheduled media sync enabled", zap.String("schedule", c.syncSchedule))
	}

	c.cron.Start()
	return nil
}

func (c *Cleaner) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), c.budget)
	defer cancel()

	removed, err := c.purger.PurgeExpired(ctx)
	if err != nil {
		c.log.Warn("cache purge failed", zap.Error(err))
		return
	}
	if removed > 0 {
		c.log.Debug("purged expired cache entries", zap.Int64("removed", removed))
	}
}

func (c *Cleaner) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), c.budget)
	defer cancel()

	res, err := c.syncer.Sync(ctx, services.SyncOptions{})
	switch {
	case errors.Is(err, services.ErrNotConnected):
		c.log.Debug("scheduled sync skipped; provider not connected")
	case err != nil:
		c.log.Warn("scheduled sync failed", zap.Error(err))
	default:
		c.log.Debug("scheduled sync finished", zap.String("source", res.Source), zap.Int("count", res.Count))
	}
}

// Stop halts the underlying scheduler, returning a context that is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce purges expired cache rows immediately. Used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.purger != nil {
		if _, err := c.purger.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
