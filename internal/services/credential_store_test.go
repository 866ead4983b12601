package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jsmooother/ej-development-sub001/internal/database/testutil"
	"github.com/jsmooother/ej-development-sub001/internal/models"
)

func TestNewCredentialStoreValidatesInput(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	_, err := NewCredentialStore(nil, "instagram", testTokenKey)
	require.Error(t, err)
	_, err = NewCredentialStore(db, "  ", testTokenKey)
	require.Error(t, err)
	_, err = NewCredentialStore(db, "instagram", []byte("short"))
	require.Error(t, err)

	store, err := NewCredentialStore(db, " Instagram ", testTokenKey)
	require.NoError(t, err)
	require.Equal(t, "instagram", store.Provider())
}

func TestCredentialStoreLoadEmpty(t *testing.T) {
	f := newFixture(t)

	cred, err := f.creds.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, cred)
}

func TestCredentialStoreEncryptsTokenAtRest(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "IGQVJ-secret-token", f.clock.Now().Add(time.Hour))

	var row models.ProviderCredential
	require.NoError(t, f.db.Where("provider = ?", "instagram").Take(&row).Error)
	require.NotEmpty(t, row.AccessToken)
	require.NotContains(t, row.AccessToken, "IGQVJ-secret-token")

	loaded := f.loadCredential(t)
	require.Equal(t, "IGQVJ-secret-token", loaded.AccessToken)
	require.Equal(t, "17841400000000001", loaded.ProviderUserID)
	require.True(t, loaded.IsConnected)
}

func TestCredentialStoreSaveUpsertsSingleRow(t *testing.T) {
	f := newFixture(t)
	first := f.seedCredential(t, "lt1", f.clock.Now().Add(time.Hour))
	second := f.seedCredential(t, "lt2", f.clock.Now().Add(2*time.Hour))

	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.ProviderCredential{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.Equal(t, "lt2", f.loadCredential(t).AccessToken)
}

func TestCredentialStoreAccountSwitchClearsMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cred := f.seedCredential(t, "lt1", f.clock.Now().Add(time.Hour))

	_, err := f.sync.Sync(ctx, SyncOptions{})
	require.NoError(t, err)

	stored, err := f.media.List(ctx, cred.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	expires := f.clock.Now().Add(time.Hour)
	require.NoError(t, f.creds.Save(ctx, &models.ProviderCredential{
		ProviderUserID: "17841499999999999",
		Username:       "other",
		AccessToken:    "lt-other",
		TokenExpiresAt: &expires,
		IsConnected:    true,
	}))

	stored, err = f.media.List(ctx, cred.ID)
	require.NoError(t, err)
	require.Empty(t, stored)

	loaded := f.loadCredential(t)
	require.Equal(t, "other", loaded.Username)
	require.Nil(t, loaded.LastSync)
}

func TestCredentialStoreUpdateToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCredential(t, "lt1", f.clock.Now())
	require.NoError(t, f.creds.MarkDisconnected(ctx, "REFRESH_FAILED: boom"))

	expires := f.clock.Now().Add(60 * 24 * time.Hour)
	require.NoError(t, f.creds.UpdateToken(ctx, "lt2", expires))

	loaded := f.loadCredential(t)
	require.Equal(t, "lt2", loaded.AccessToken)
	require.True(t, loaded.TokenExpiresAt.Equal(expires))
	require.True(t, loaded.IsConnected)
	require.Empty(t, loaded.LastError)
}

func TestCredentialStoreMarkDisconnectedKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := f.clock.Now()
	f.seedCredential(t, "lt1", expires)

	require.NoError(t, f.creds.MarkDisconnected(ctx, "REFRESH_FAILED: session expired"))
	// second call changes nothing and must still succeed
	require.NoError(t, f.creds.MarkDisconnected(ctx, "REFRESH_FAILED: session expired"))

	loaded := f.loadCredential(t)
	require.False(t, loaded.IsConnected)
	require.Equal(t, "lt1", loaded.AccessToken)
	require.True(t, loaded.TokenExpiresAt.Equal(expires))
	require.Equal(t, "REFRESH_FAILED: session expired", loaded.LastError)
	require.False(t, loaded.Usable())
}

func TestCredentialStoreDisconnectErasesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCredential(t, "lt1", f.clock.Now().Add(time.Hour))

	require.NoError(t, f.creds.Disconnect(ctx))

	loaded := f.loadCredential(t)
	require.False(t, loaded.IsConnected)
	require.Empty(t, loaded.AccessToken)
	require.Nil(t, loaded.TokenExpiresAt)
	require.Equal(t, "studio", loaded.Username)
}

func TestCredentialStoreUpdatesRequireRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.creds.MarkDisconnected(ctx, "x"), ErrNotConnected)
	require.ErrorIs(t, f.creds.RecordError(ctx, "x"), ErrNotConnected)
	require.ErrorIs(t, f.creds.UpdateToken(ctx, "lt", f.clock.Now()), ErrNotConnected)
	require.ErrorIs(t, f.creds.Disconnect(ctx), ErrNotConnected)
}

func TestCredentialStoreRejectsForeignKey(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "lt1", f.clock.Now().Add(time.Hour))

	other, err := NewCredentialStore(f.db, "instagram", []byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	_, err = other.Load(context.Background())
	require.Error(t, err)
}
