package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/internal/auth"
	"github.com/jsmooother/ej-development-sub001/internal/cache"
	"github.com/jsmooother/ej-development-sub001/internal/database/testutil"
	"github.com/jsmooother/ej-development-sub001/internal/models"
	"github.com/jsmooother/ej-development-sub001/internal/provider"
	"github.com/jsmooother/ej-development-sub001/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type graphStub struct {
	*httptest.Server
	mu          sync.Mutex
	usedCodes   map[string]bool
	mediaCalls  int
	refreshFail bool
	mediaStatus int
}

func newGraphStub(t *testing.T) *graphStub {
	t.Helper()

	g := &graphStub{usedCodes: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		code := r.PostForm.Get("code")
		g.mu.Lock()
		used := g.usedCodes[code]
		g.usedCodes[code] = true
		g.mu.Unlock()
		if used {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_type":"OAuthException","code":400,"error_message":"This authorization code has been used"}`))
			return
		}
		stubJSON(w, http.StatusOK, map[string]any{"access_token": "st1", "user_id": 17841400000000001, "expires_in": 3600})
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		stubJSON(w, http.StatusOK, map[string]any{"access_token": "lt1", "token_type": "bearer", "expires_in": 5184000})
	})
	mux.HandleFunc("/refresh_access_token", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		fail := g.refreshFail
		g.mu.Unlock()
		if fail {
			stubJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{"message": "Error validating access token: Session has expired", "type": "OAuthException", "code": 190},
			})
			return
		}
		stubJSON(w, http.StatusOK, map[string]any{"access_token": "lt2", "token_type": "bearer", "expires_in": 5184000})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		stubJSON(w, http.StatusOK, map[string]any{"user_id": "17841400000000001", "username": "studio", "id": "999"})
	})
	mux.HandleFunc("/me/media", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.mediaCalls++
		status := g.mediaStatus
		g.mu.Unlock()
		if status != 0 {
			code := 2
			if status < http.StatusInternalServerError {
				code = 100
			}
			stubJSON(w, status, map[string]any{
				"error": map[string]any{"message": "media request failed", "type": "OAuthException", "code": code},
			})
			return
		}
		stubJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "1", "caption": "first", "media_type": "IMAGE", "media_url": "https://cdn/1.jpg", "permalink": "https://ig/p/1", "timestamp": "2025-01-02T10:00:00+0000"},
				{"id": "2", "media_type": "VIDEO", "media_url": "https://cdn/2.mp4", "thumbnail_url": "https://cdn/2.jpg", "permalink": "https://ig/p/2", "timestamp": "2025-01-01T10:00:00+0000"},
			},
		})
	})

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}

func (g *graphStub) MediaCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mediaCalls
}

func stubJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type handlerFixture struct {
	graph  *graphStub
	creds  *services.CredentialStore
	sync   *services.SyncService
	conn   *services.ConnectionService
	signer *auth.StateSigner
	router *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	graph := newGraphStub(t)
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	client, err := provider.NewClient(provider.Config{
		AppID:       "app-id",
		AppSecret:   "app-secret",
		RedirectURI: "https://site.example.com/api/integrations/media/callback",
		AuthURL:     graph.URL + "/oauth/authorize",
		TokenURL:    graph.URL + "/oauth/access_token",
		GraphURL:    graph.URL,
		Timeout:     2 * time.Second,
		HTTPClient:  graph.Client(),
	})
	require.NoError(t, err)

	creds, err := services.NewCredentialStore(db, "instagram", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	media, err := services.NewMediaStore(db)
	require.NoError(t, err)

	cacheClient := cache.NewClient(cache.NewDatabaseStore(db), cache.WithBackendName("database"), cache.WithLogger(zap.NewNop()))
	syncSvc, err := services.NewSyncService(db, creds, media, cacheClient, client, client, services.SyncConfig{
		MediaLimit: 12,
		MediaTTL:   time.Hour,
		TokenTTL:   2 * time.Hour,
	})
	require.NoError(t, err)

	signer, err := auth.NewStateSigner([]byte("state-signing-key-0123456789abcd"), 10*time.Minute, time.Now)
	require.NoError(t, err)
	conn, err := services.NewConnectionService(client, creds, syncSvc, signer, services.ConnectionOptions{
		RedirectURI:  "https://site.example.com/api/integrations/media/callback",
		RequireState: true,
	})
	require.NoError(t, err)

	integration, err := NewMediaIntegrationHandler(conn, syncSvc, "/admin/integrations")
	require.NoError(t, err)
	feed, err := NewMediaFeedHandler(syncSvc)
	require.NoError(t, err)

	router := gin.New()
	group := router.Group("/api/integrations/media")
	group.GET("/connect", integration.Connect)
	group.GET("/callback", integration.Callback)
	group.POST("/sync", integration.Sync)
	group.GET("/sync", integration.Status)
	group.DELETE("/cache", integration.ClearCache)
	group.POST("/disconnect", integration.Disconnect)
	router.GET("/api/feed/media", feed.List)

	return &handlerFixture{graph: graph, creds: creds, sync: syncSvc, conn: conn, signer: signer, router: router}
}

func (f *handlerFixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) seedCredential(t *testing.T, expiresAt time.Time) {
	t.Helper()

	require.NoError(t, f.creds.Save(context.Background(), &models.ProviderCredential{
		ProviderUserID: "17841400000000001",
		Username:       "studio",
		AccessToken:    "lt1",
		TokenExpiresAt: &expiresAt,
		IsConnected:    true,
	}))
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
	Meta map[string]any `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}
