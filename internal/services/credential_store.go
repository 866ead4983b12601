package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/models"
	"github.com/jsmooother/ej-development-sub001/pkg/crypto"
)

// CredentialStore persists the single provider credential. Access tokens are
// encrypted at rest; callers always see plaintext.
type CredentialStore struct {
	db       *gorm.DB
	provider string
	key      []byte
}

// NewCredentialStore constructs a CredentialStore for provider using key for token encryption.
func NewCredentialStore(db *gorm.DB, provider string, key []byte) (*CredentialStore, error) {
	if db == nil {
		return nil, errors.New("credential store: db is required")
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, errors.New("credential store: provider is required")
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("credential store: encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	return &CredentialStore{db: db, provider: provider, key: key}, nil
}

// Provider returns the provider the store is bound to.
func (s *CredentialStore) Provider() string {
	return s.provider
}

// tokenAAD binds sealed tokens to the provider row they belong to.
func (s *CredentialStore) tokenAAD() []byte {
	return []byte("provider_credentials.access_token:" + s.provider)
}

// Load returns the stored credential, or nil when none exists.
func (s *CredentialStore) Load(ctx context.Context) (*models.ProviderCredential, error) {
	var cred models.ProviderCredential
	err := s.db.WithContext(ctx).Where("provider = ?", s.provider).Take(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential store: load: %w", err)
	}

	if cred.AccessToken != "" {
		plain, err := crypto.Open(s.key, cred.AccessToken, s.tokenAAD())
		if err != nil {
			return nil, fmt.Errorf("credential store: decrypt token: %w", err)
		}
		cred.AccessToken = string(plain)
	}
	return &cred, nil
}

// Save upserts cred by provider. When the stored account differs from cred's account
// the previous account's media rows are removed in the same transaction.
func (s *CredentialStore) Save(ctx context.Context, cred *models.ProviderCredential) error {
	if cred == nil {
		return errors.New("credential store: credential is required")
	}

	row := *cred
	row.Provider = s.provider
	row.Media = nil
	if row.AccessToken != "" {
		sealed, err := crypto.Seal(s.key, []byte(row.AccessToken), s.tokenAAD())
		if err != nil {
			return fmt.Errorf("credential store: encrypt token: %w", err)
		}
		row.AccessToken = sealed
	}

	err := s.saveRow(ctx, &row)
	if err != nil && isUniqueConstraintError(err) {
		// a concurrent first save won the insert; retry as an update
		row.ID = ""
		err = s.saveRow(ctx, &row)
	}
	if err != nil {
		return fmt.Errorf("credential store: save: %w", err)
	}

	cred.ID = row.ID
	cred.Provider = row.Provider
	cred.CreatedAt = row.CreatedAt
	cred.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *CredentialStore) saveRow(ctx context.Context, row *models.ProviderCredential) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ProviderCredential
		err := tx.Where("provider = ?", s.provider).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(row).Error
		case err != nil:
			return err
		}

		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if existing.ProviderUserID != "" && existing.ProviderUserID != row.ProviderUserID {
			if err := tx.Where("credential_id = ?", existing.ID).Delete(&models.MediaItem{}).Error; err != nil {
				return err
			}
			row.LastSync = nil
		}
		return tx.Save(row).Error
	})
}

// UpdateToken stores a refreshed token and expiry and clears any recorded error.
func (s *CredentialStore) UpdateToken(ctx context.Context, token string, expiresAt time.Time) error {
	sealed, err := crypto.Seal(s.key, []byte(token), s.tokenAAD())
	if err != nil {
		return fmt.Errorf("credential store: encrypt token: %w", err)
	}
	return s.update(ctx, map[string]any{
		"access_token":     sealed,
		"token_expires_at": expiresAt,
		"is_connected":     true,
		"last_error":       "",
	})
}

// MarkDisconnected flips IsConnected off and records reason. The token and its
// expiry are left as they were so the failure point stays diagnosable.
func (s *CredentialStore) MarkDisconnected(ctx context.Context, reason string) error {
	return s.update(ctx, map[string]any{
		"is_connected": false,
		"last_error":   reason,
	})
}

// RecordError stores a diagnostic without changing the connection state.
func (s *CredentialStore) RecordError(ctx context.Context, reason string) error {
	return s.update(ctx, map[string]any{"last_error": reason})
}

// Disconnect revokes local use of the credential: the token is erased, while the
// account identity and last sync time are kept.
func (s *CredentialStore) Disconnect(ctx context.Context) error {
	return s.update(ctx, map[string]any{
		"is_connected":     false,
		"access_token":     "",
		"token_expires_at": nil,
		"last_error":       "",
	})
}

// TouchLastSync records a successful sync inside the caller's transaction.
func (s *CredentialStore) TouchLastSync(ctx context.Context, tx *gorm.DB, credentialID string, at time.Time) error {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).
		Model(&models.ProviderCredential{}).
		Where("id = ?", credentialID).
		Updates(map[string]any{"last_sync": at, "last_error": ""}).Error
}

func (s *CredentialStore) update(ctx context.Context, fields map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&models.ProviderCredential{}).
		Where("provider = ?", s.provider).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("credential store: update: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// some drivers report zero when the values did not change
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProviderCredential{}).Where("provider = ?", s.provider).Count(&count).Error; err != nil {
		return fmt.Errorf("credential store: update: %w", err)
	}
	if count == 0 {
		return ErrNotConnected
	}
	return nil
}
