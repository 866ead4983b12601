package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/auth"
	"github.com/jsmooother/ej-development-sub001/internal/cache"
	"github.com/jsmooother/ej-development-sub001/internal/database/testutil"
	"github.com/jsmooother/ej-development-sub001/internal/models"
	"github.com/jsmooother/ej-development-sub001/internal/provider"
)

var testTokenKey = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is a cache backend that keeps entries until deleted; freshness is
// enforced by the envelope written by the sync service.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	down bool
	sets int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) check() error {
	if s.down {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, false, err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.data[key] = append([]byte(nil), value...)
	s.ttls[key] = ttl
	s.sets++
	return nil
}

func (s *memStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *memStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("not supported")
}

func (s *memStore) Close() error { return nil }

func (s *memStore) raw(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data[key]...)
}

func (s *memStore) ttl(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func (s *memStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// fakeProvider scripts the provider API and records the order of calls.
type fakeProvider struct {
	mu         sync.Mutex
	calls      []string
	usedCodes  map[string]bool
	userID     string
	media      []provider.RawMediaItem
	more       bool
	listErr    error
	refreshErr error
	longErr    error
	listGate   chan struct{}
	refreshed  *provider.LongLivedToken
	lastToken  string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		usedCodes: map[string]bool{},
		userID:    "17841400000000001",
		media:     sampleMedia(3),
		refreshed: &provider.LongLivedToken{AccessToken: "lt2", TokenType: "bearer", ExpiresIn: 5184000},
	}
}

func (p *fakeProvider) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) count(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example.com/oauth/authorize?state=" + state
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code, _ string) (*provider.ShortLivedToken, error) {
	p.record("exchange_code")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.usedCodes[code] {
		return nil, &provider.APIError{
			Operation:  provider.OpExchangeCode,
			StatusCode: 400,
			Type:       "OAuthException",
			Message:    "This authorization code has been used",
			Body:       `{"error_type":"OAuthException","code":400,"error_message":"This authorization code has been used"}`,
		}
	}
	p.usedCodes[code] = true
	return &provider.ShortLivedToken{AccessToken: "st1", Expiry: time.Now().Add(3600 * time.Second)}, nil
}

func (p *fakeProvider) ExchangeForLongLived(_ context.Context, shortLived string) (*provider.LongLivedToken, error) {
	p.record("exchange_long_lived")
	if p.longErr != nil {
		return nil, p.longErr
	}
	if shortLived != "st1" {
		return nil, fmt.Errorf("unexpected short-lived token %q", shortLived)
	}
	return &provider.LongLivedToken{AccessToken: "lt1", TokenType: "bearer", ExpiresIn: 5184000}, nil
}

func (p *fakeProvider) FetchProfile(context.Context, string) (*provider.Profile, error) {
	p.record("profile")
	p.mu.Lock()
	defer p.mu.Unlock()
	return &provider.Profile{UserID: p.userID, Username: "studio"}, nil
}

func (p *fakeProvider) Refresh(_ context.Context, token string) (*provider.LongLivedToken, error) {
	p.record("refresh")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastToken = token
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshed, nil
}

func (p *fakeProvider) ListMedia(ctx context.Context, token string, _ int) (*provider.MediaPage, error) {
	p.record("list_media")
	if p.listGate != nil {
		select {
		case <-p.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastToken = token
	if p.listErr != nil {
		return nil, p.listErr
	}
	page := &provider.MediaPage{Items: append([]provider.RawMediaItem(nil), p.media...)}
	if p.more {
		page.NextCursor = "after"
	}
	return page, nil
}

func sampleMedia(n int) []provider.RawMediaItem {
	types := []string{"IMAGE", "VIDEO", "CAROUSEL_ALBUM"}
	items := make([]provider.RawMediaItem, n)
	for i := range items {
		caption := fmt.Sprintf("post %d", i+1)
		items[i] = provider.RawMediaItem{
			ID:        provider.FlexibleID(fmt.Sprintf("%d", 1000+i)),
			Caption:   &caption,
			MediaType: types[i%len(types)],
			MediaURL:  fmt.Sprintf("https://cdn.example.com/%d.jpg", i),
			Permalink: fmt.Sprintf("https://provider.example.com/p/%d", i),
			Timestamp: "2025-02-01T10:00:00+0000",
			Raw:       []byte(fmt.Sprintf(`{"id":"%d"}`, 1000+i)),
		}
	}
	return items
}

type fixture struct {
	db    *gorm.DB
	clock *testClock
	creds *CredentialStore
	media *MediaStore
	store *memStore
	cache *cache.Client
	prov  *fakeProvider
	sync  *SyncService
	conn  *ConnectionService
}

func newFixture(t *testing.T, opts ...func(*SyncConfig)) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	creds, err := NewCredentialStore(db, "instagram", testTokenKey)
	require.NoError(t, err)
	media, err := NewMediaStore(db)
	require.NoError(t, err)

	store := newMemStore()
	cacheClient := cache.NewClient(store,
		cache.WithBackendName("memory"),
		cache.WithLogger(zap.NewNop()),
		cache.WithRetryInterval(0),
		cache.WithClock(clock.Now),
	)

	cfg := SyncConfig{MediaLimit: 12, MediaTTL: time.Hour, TokenTTL: 2 * time.Hour}
	for _, fn := range opts {
		fn(&cfg)
	}

	prov := newFakeProvider()
	syncSvc, err := NewSyncService(db, creds, media, cacheClient, prov, prov, cfg)
	require.NoError(t, err)
	syncSvc.now = clock.Now

	signer, err := auth.NewStateSigner([]byte("state-signing-key-0123456789abcd"), 10*time.Minute, clock.Now)
	require.NoError(t, err)

	conn, err := NewConnectionService(prov, creds, syncSvc, signer, ConnectionOptions{
		RedirectURI: "https://site.example.com/api/integrations/media/callback",
	})
	require.NoError(t, err)
	conn.now = clock.Now

	return &fixture{
		db:    db,
		clock: clock,
		creds: creds,
		media: media,
		store: store,
		cache: cacheClient,
		prov:  prov,
		sync:  syncSvc,
		conn:  conn,
	}
}

// seedCredential stores a connected credential whose token expires at expiresAt.
func (f *fixture) seedCredential(t *testing.T, token string, expiresAt time.Time) *models.ProviderCredential {
	t.Helper()

	cred := &models.ProviderCredential{
		ProviderUserID: "17841400000000001",
		Username:       "studio",
		AccessToken:    token,
		TokenExpiresAt: &expiresAt,
		IsConnected:    true,
	}
	require.NoError(t, f.creds.Save(context.Background(), cred))
	return cred
}

func (f *fixture) loadCredential(t *testing.T) *models.ProviderCredential {
	t.Helper()

	cred, err := f.creds.Load(context.Background())
	require.NoError(t, err)
	return cred
}
