package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectRedirectsToConsent(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/integrations/media/connect?return_to=/admin/media", "")
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/oauth/authorize", location.Path)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	claims, err := f.signer.Verify(state, "instagram")
	require.NoError(t, err)
	require.Equal(t, "/admin/media", claims.ReturnPath)
}

func TestConnectRejectsOffsiteReturnPath(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/integrations/media/connect?return_to=https://evil.example.com", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Contains(t, env.Error.Message, "return_to")
}

func TestCallbackConnectsAndRedirects(t *testing.T) {
	f := newHandlerFixture(t)
	state, err := f.signer.Issue("instagram", "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/integrations/media/callback?code=abc123&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/admin/integrations?status=connected", rec.Header().Get("Location"))

	cred, err := f.creds.Load(context.Background())
	require.NoError(t, err)
	require.True(t, cred.IsConnected)
	require.Equal(t, "lt1", cred.AccessToken)
	require.Equal(t, "studio", cred.Username)
}

func TestCallbackHonoursSignedReturnPath(t *testing.T) {
	f := newHandlerFixture(t)
	state, err := f.signer.Issue("instagram", "/admin/media?tab=feed")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/integrations/media/callback?code=abc123&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/admin/media", location.Path)
	require.Equal(t, "feed", location.Query().Get("tab"))
	require.Equal(t, "connected", location.Query().Get("status"))
}

func TestCallbackDeniedCarriesProviderMessage(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/integrations/media/callback?error=access_denied&error_reason=user_denied&error_description=The+user+denied+your+request.", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/admin/integrations", location.Path)
	require.Equal(t, "error", location.Query().Get("status"))
	require.Equal(t, "The user denied your request.", location.Query().Get("message"))

	cred, err := f.creds.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, cred)
}

func TestCallbackWithoutStateIsRejected(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/integrations/media/callback?code=abc123", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "error", location.Query().Get("status"))
	require.NotEmpty(t, location.Query().Get("message"))
	require.Zero(t, f.graph.MediaCalls())
}

func TestSyncReturnsItemsThenServesCache(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedCredential(t, time.Now().Add(30*24*time.Hour))

	rec := f.do(t, http.MethodPost, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	require.Equal(t, "provider", env.Meta["source"])

	var result struct {
		Items []struct {
			ID        string `json:"id"`
			MediaType string `json:"media_type"`
		} `json:"items"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 2, result.Count)
	require.Len(t, result.Items, 2)

	rec = f.do(t, http.MethodPost, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cache", decodeEnvelope(t, rec).Meta["source"])
	require.Equal(t, 1, f.graph.MediaCalls())

	rec = f.do(t, http.MethodPost, "/api/integrations/media/sync", `{"force":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "provider", decodeEnvelope(t, rec).Meta["source"])
	require.Equal(t, 2, f.graph.MediaCalls())
}

func TestSyncWithoutCredentialIsConflict(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "NOT_CONNECTED", env.Error.Code)
}

func TestSyncRefreshFailureRequiresReconnect(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedCredential(t, time.Now().Add(-time.Hour))
	f.graph.mu.Lock()
	f.graph.refreshFail = true
	f.graph.mu.Unlock()

	rec := f.do(t, http.MethodPost, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "REFRESH_FAILED", env.Error.Code)
	require.Zero(t, f.graph.MediaCalls())

	rec = f.do(t, http.MethodGet, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		IsConnected bool   `json:"is_connected"`
		LastError   string `json:"last_error"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &status))
	require.False(t, status.IsConnected)
	require.Contains(t, status.LastError, "REFRESH_FAILED")
}

func TestSyncProviderFailureHintsRetry(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedCredential(t, time.Now().Add(time.Hour))
	f.graph.mu.Lock()
	f.graph.mediaStatus = http.StatusServiceUnavailable
	f.graph.mu.Unlock()

	rec := f.do(t, http.MethodPost, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "PROVIDER_API_ERROR", decodeEnvelope(t, rec).Error.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	f.graph.mu.Lock()
	f.graph.mediaStatus = http.StatusBadRequest
	f.graph.mu.Unlock()

	rec = f.do(t, http.MethodPost, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Empty(t, rec.Header().Get("Retry-After"))
}

func TestSyncRejectsMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/integrations/media/sync", `{"force":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusClearCacheAndDisconnect(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedCredential(t, time.Now().Add(30*24*time.Hour))

	rec := f.do(t, http.MethodGet, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		IsConnected  bool   `json:"is_connected"`
		Username     string `json:"username"`
		CacheBackend string `json:"cache_backend"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &status))
	require.True(t, status.IsConnected)
	require.Equal(t, "studio", status.Username)
	require.Equal(t, "database", status.CacheBackend)
	require.NotContains(t, rec.Body.String(), "lt1")

	rec = f.do(t, http.MethodDelete, "/api/integrations/media/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"cleared":true}`, string(decodeEnvelope(t, rec).Data))

	rec = f.do(t, http.MethodPost, "/api/integrations/media/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/integrations/media/sync", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusURLIgnoresOffsiteReturnPath(t *testing.T) {
	h := &MediaIntegrationHandler{statusPath: "/admin/integrations"}

	require.Equal(t, "/admin/integrations?status=connected", h.statusURL("//evil.example.com", "connected", ""))
	require.Equal(t, "/admin/integrations?message=nope&status=error", h.statusURL("", "error", "nope"))
}

func TestNewMediaIntegrationHandlerValidates(t *testing.T) {
	_, err := NewMediaIntegrationHandler(nil, nil, "/admin")
	require.Error(t, err)
}
