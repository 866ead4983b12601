package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/cache"
	"github.com/jsmooother/ej-development-sub001/internal/models"
	"github.com/jsmooother/ej-development-sub001/internal/provider"
	apperrors "github.com/jsmooother/ej-development-sub001/pkg/errors"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
	"github.com/jsmooother/ej-development-sub001/pkg/metrics"
)

// Result sources.
const (
	SourceCache    = "cache"
	SourceProvider = "provider"
	SourceStore    = "store"
)

// SyncConfig tunes the sync pipeline.
type SyncConfig struct {
	MediaLimit int
	MediaTTL   time.Duration
	TokenTTL   time.Duration
	// RefreshLeeway refreshes this long before expiry. Zero refreshes only once
	// the token is at or past its expiry.
	RefreshLeeway time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	c.MediaLimit = provider.ClampLimit(c.MediaLimit)
	if c.MediaTTL <= 0 {
		c.MediaTTL = cache.DefaultMediaTTL
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = cache.DefaultTokenTTL
	}
	if c.RefreshLeeway < 0 {
		c.RefreshLeeway = 0
	}
	return c
}

// SyncOptions alters a single sync invocation.
type SyncOptions struct {
	// Force skips the cache check and always contacts the provider.
	Force bool
}

// SyncResult describes the outcome of a successful sync.
type SyncResult struct {
	Items     []MediaView `json:"items"`
	Count     int         `json:"count"`
	Source    string      `json:"source"`
	FetchedAt time.Time   `json:"fetched_at"`
	Skipped   int         `json:"skipped,omitempty"`
	Truncated bool        `json:"truncated"`
	Refreshed bool        `json:"refreshed"`
	Shared    bool        `json:"shared"`
}

// FeedResult is what the public site renders.
type FeedResult struct {
	Items     []MediaView `json:"items"`
	Source    string      `json:"source"`
	FetchedAt *time.Time  `json:"fetched_at,omitempty"`
}

// ConnectionStatus reports the credential state without exposing the token.
type ConnectionStatus struct {
	Provider       string     `json:"provider"`
	IsConnected    bool       `json:"is_connected"`
	Username       string     `json:"username,omitempty"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	TokenExpired   bool       `json:"token_expired"`
	LastError      string     `json:"last_error,omitempty"`
	CacheBackend   string     `json:"cache_backend"`
	CacheConnected bool       `json:"cache_connected"`
}

// tokenSnapshot is the cached, token free view of the credential.
type tokenSnapshot struct {
	IsConnected    bool       `json:"is_connected"`
	Username       string     `json:"username,omitempty"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// SyncService drives the cache check, token refresh, fetch, persist and cache
// write steps. Concurrent callers share one in-flight run.
type SyncService struct {
	db        *gorm.DB
	creds     *CredentialStore
	media     *MediaStore
	cache     *cache.Client
	refresher provider.TokenRefresher
	fetcher   provider.ContentFetcher
	cfg       SyncConfig
	now       func() time.Time
	log       *zap.Logger
	notifier  ReconnectNotifier
	notifyWG  sync.WaitGroup

	group singleflight.Group
	// mu serialises every writer of the credential and media collection.
	mu sync.Mutex
}

// NewSyncService constructs a SyncService.
func NewSyncService(db *gorm.DB, creds *CredentialStore, media *MediaStore, cacheClient *cache.Client, refresher provider.TokenRefresher, fetcher provider.ContentFetcher, cfg SyncConfig) (*SyncService, error) {
	switch {
	case db == nil:
		return nil, errors.New("sync service: db is required")
	case creds == nil:
		return nil, errors.New("sync service: credential store is required")
	case media == nil:
		return nil, errors.New("sync service: media store is required")
	case refresher == nil || fetcher == nil:
		return nil, errors.New("sync service: provider client is required")
	}
	if cacheClient == nil {
		cacheClient = cache.NewClient(nil)
	}

	return &SyncService{
		db:        db,
		creds:     creds,
		media:     media,
		cache:     cacheClient,
		refresher: refresher,
		fetcher:   fetcher,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		log:       logger.WithModule("sync"),
	}, nil
}

// Sync returns the media feed, serving it from cache when fresh and otherwise
// refreshing the token if needed, fetching from the provider and persisting.
// Overlapping calls coalesce into a single run whose result all callers share.
func (s *SyncService) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	key := s.creds.Provider()
	if opts.Force {
		key += ":force"
	}

	// the shared run must not be cancelled when the first caller goes away
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.run(runCtx, opts)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.SyncRuns.WithLabelValues("shared").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		out := *res.Val.(*SyncResult)
		out.Shared = res.Shared
		return &out, nil
	}
}

func (s *SyncService) run(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	log := s.log.With(zap.String("run_id", uuid.NewString()), zap.Bool("force", opts.Force))

	if !opts.Force {
		if res, ok := s.cachedFeed(ctx); ok {
			metrics.SyncRuns.WithLabelValues("cache_hit").Inc()
			log.Debug("media feed served from cache", zap.Int("count", res.Count))
			return res, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a forced run may have refilled the cache while this one waited
	if !opts.Force {
		if res, ok := s.cachedFeed(ctx); ok {
			metrics.SyncRuns.WithLabelValues("cache_hit").Inc()
			return res, nil
		}
	}

	res, err := s.syncLocked(ctx, log)
	if err != nil {
		var syncErr *SyncError
		if errors.As(err, &syncErr) {
			metrics.SyncRuns.WithLabelValues(resultLabel(syncErr.Kind)).Inc()
			log.Warn("media sync failed",
				zap.String("stage", string(syncErr.Stage)),
				zap.String("kind", syncErr.Kind.Code),
				zap.String("diagnostic", syncErr.Diagnostic),
				zap.Error(syncErr.Err),
			)
		}
		return nil, err
	}

	metrics.SyncRuns.WithLabelValues("synced").Inc()
	metrics.MediaItems.Set(float64(res.Count))
	log.Info("media sync completed",
		zap.Int("count", res.Count),
		zap.Int("skipped", res.Skipped),
		zap.Bool("refreshed", res.Refreshed),
		zap.Bool("truncated", res.Truncated),
	)
	return res, nil
}

func (s *SyncService) syncLocked(ctx context.Context, log *zap.Logger) (*SyncResult, error) {
	cred, err := s.creds.Load(ctx)
	if err != nil {
		return nil, newSyncError(apperrors.ErrInternalServer, StageCheckToken, err)
	}
	if !cred.Usable() {
		return nil, &SyncError{Kind: ErrNotConnected, Stage: StageCheckToken}
	}

	token := cred.AccessToken
	refreshed := false
	if s.needsRefresh(cred) {
		log.Info("access token at expiry, refreshing", zap.Timep("expires_at", cred.TokenExpiresAt))
		renewed, err := s.refresher.Refresh(ctx, token)
		if err != nil {
			return nil, s.failRefresh(ctx, cred, err)
		}

		expiresAt := renewed.ExpiresAt(s.now()).UTC()
		if err := s.creds.UpdateToken(ctx, renewed.AccessToken, expiresAt); err != nil {
			return nil, newSyncError(apperrors.ErrInternalServer, StageRefresh, err)
		}
		s.cache.Del(ctx, cache.KeyTokenState)
		token = renewed.AccessToken
		cred.AccessToken = renewed.AccessToken
		cred.TokenExpiresAt = &expiresAt
		refreshed = true
	}

	page, err := s.fetcher.ListMedia(ctx, token, s.cfg.MediaLimit)
	if err != nil {
		syncErr := newSyncError(ErrProviderAPI, StageFetch, err)
		if recErr := s.creds.RecordError(ctx, fmt.Sprintf("%s: %s", ErrProviderAPI.Code, syncErr.Diagnostic)); recErr != nil {
			log.Warn("failed to record sync error", zap.Error(recErr))
		}
		s.cache.Del(ctx, cache.KeyTokenState)
		return nil, syncErr
	}

	items, skipped := normalizeMedia(cred.ID, uuid.NewString(), page.Items)
	if skipped > 0 {
		log.Warn("skipped unsupported media items", zap.Int("skipped", skipped))
	}

	fetchedAt := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.media.Replace(ctx, tx, cred.ID, items); err != nil {
			return err
		}
		return s.creds.TouchLastSync(ctx, tx, cred.ID, fetchedAt)
	})
	if err != nil {
		return nil, newSyncError(apperrors.ErrInternalServer, StagePersist, err)
	}
	cred.LastSync = &fetchedAt
	cred.LastError = ""

	views := toViews(items)
	s.writeCache(ctx, log, views, fetchedAt, cred)

	return &SyncResult{
		Items:     views,
		Count:     len(views),
		Source:    SourceProvider,
		FetchedAt: fetchedAt,
		Skipped:   skipped,
		Truncated: page.HasMore(),
		Refreshed: refreshed,
	}, nil
}

func (s *SyncService) needsRefresh(cred *models.ProviderCredential) bool {
	return cred.TokenExpired(s.now().Add(s.cfg.RefreshLeeway))
}

func (s *SyncService) failRefresh(ctx context.Context, cred *models.ProviderCredential, err error) error {
	cause := err
	if tokenRejected(err) {
		cause = errors.Join(ErrTokenExpired, err)
	}
	syncErr := newSyncError(ErrRefreshFailed, StageRefresh, cause)
	syncErr.Diagnostic = diagnostic(err)

	reason := fmt.Sprintf("%s: %s", ErrRefreshFailed.Code, syncErr.Diagnostic)
	if markErr := s.creds.MarkDisconnected(ctx, reason); markErr != nil {
		s.log.Error("failed to mark credential disconnected", zap.Error(markErr))
	}
	s.cache.Del(ctx, cache.KeyTokenState)
	s.notifyReconnect(ctx, ReconnectNotice{
		Provider: s.creds.Provider(),
		Username: cred.Username,
		Reason:   reason,
		At:       s.now().UTC(),
	})
	return syncErr
}

func (s *SyncService) cachedFeed(ctx context.Context) (*SyncResult, bool) {
	var env cache.Envelope
	if !s.cache.GetJSON(ctx, cache.KeyMediaFeed, &env) {
		return nil, false
	}
	if !env.Fresh(s.now(), s.cfg.MediaTTL) {
		return nil, false
	}
	var views []MediaView
	if err := env.Decode(&views); err != nil {
		s.log.Warn("cached media feed undecodable", zap.Error(err))
		return nil, false
	}
	return &SyncResult{
		Items:     views,
		Count:     len(views),
		Source:    SourceCache,
		FetchedAt: env.FetchedAt,
	}, true
}

func (s *SyncService) writeCache(ctx context.Context, log *zap.Logger, views []MediaView, fetchedAt time.Time, cred *models.ProviderCredential) {
	env, err := cache.NewEnvelope(views, fetchedAt)
	if err != nil {
		log.Warn("media feed not cacheable", zap.Error(err))
		return
	}
	if !s.cache.SetJSON(ctx, cache.KeyMediaFeed, env, s.cfg.MediaTTL) {
		log.Debug("media feed not cached; next sync will refetch")
	}
	s.cache.SetJSON(ctx, cache.KeyTokenState, snapshotOf(cred), s.cfg.TokenTTL)
}

// Status reports the connection state. TokenExpired is computed at call time.
func (s *SyncService) Status(ctx context.Context) (*ConnectionStatus, error) {
	var snap tokenSnapshot
	if !s.cache.GetJSON(ctx, cache.KeyTokenState, &snap) {
		cred, err := s.creds.Load(ctx)
		if err != nil {
			return nil, apperrors.ErrInternalServer.WithInternal(err)
		}
		snap = snapshotOf(cred)
		if cred != nil {
			s.cache.SetJSON(ctx, cache.KeyTokenState, snap, s.cfg.TokenTTL)
		}
	}

	now := s.now()
	status := &ConnectionStatus{
		Provider:       s.creds.Provider(),
		IsConnected:    snap.IsConnected,
		Username:       snap.Username,
		LastSync:       snap.LastSync,
		TokenExpiresAt: snap.TokenExpiresAt,
		TokenExpired:   snap.TokenExpiresAt != nil && snap.TokenExpiresAt.Before(now),
		LastError:      snap.LastError,
		CacheBackend:   s.cache.Backend(),
		CacheConnected: s.cache.Connected(),
	}
	return status, nil
}

// Feed returns the media for the public site without contacting the provider:
// the cached feed when fresh, otherwise the last persisted collection.
func (s *SyncService) Feed(ctx context.Context) (*FeedResult, error) {
	if res, ok := s.cachedFeed(ctx); ok {
		fetchedAt := res.FetchedAt
		return &FeedResult{Items: res.Items, Source: SourceCache, FetchedAt: &fetchedAt}, nil
	}

	cred, err := s.creds.Load(ctx)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	if cred == nil {
		return &FeedResult{Items: []MediaView{}, Source: SourceStore}, nil
	}

	items, err := s.media.List(ctx, cred.ID)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &FeedResult{Items: toViews(items), Source: SourceStore, FetchedAt: cred.LastSync}, nil
}

// ClearCache drops the cached feed and token snapshot so the next sync goes to the provider.
func (s *SyncService) ClearCache(ctx context.Context) bool {
	return s.cache.Del(ctx, cache.KeyMediaFeed, cache.KeyTokenState)
}

// Disconnect erases the stored token and clears the cache. Persisted media stay
// available to the public feed.
func (s *SyncService) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.creds.Disconnect(ctx); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return ErrNotConnected
		}
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	s.ClearCache(ctx)
	s.log.Info("media provider disconnected")
	return nil
}

// Exclusive runs fn while no sync is writing the credential or media collection.
func (s *SyncService) Exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// InvalidateStatus drops the cached token snapshot after an out-of-band credential change.
func (s *SyncService) InvalidateStatus(ctx context.Context) {
	s.cache.Del(ctx, cache.KeyTokenState)
}

func snapshotOf(cred *models.ProviderCredential) tokenSnapshot {
	if cred == nil {
		return tokenSnapshot{}
	}
	return tokenSnapshot{
		IsConnected:    cred.IsConnected,
		Username:       cred.Username,
		LastSync:       cred.LastSync,
		TokenExpiresAt: cred.TokenExpiresAt,
		LastError:      cred.LastError,
	}
}

func resultLabel(kind *apperrors.AppError) string {
	switch {
	case errors.Is(kind, ErrNotConnected):
		return "not_connected"
	case errors.Is(kind, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(kind, ErrProviderAPI):
		return "provider_error"
	default:
		return strings.ToLower(kind.Code)
	}
}
