package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes used with DeriveKey. Distinct purposes yield independent keys from one secret.
const (
	PurposeTokenEncryption = "mediasync/token-encryption/v1"
	PurposeStateSigning    = "mediasync/oauth-state/v1"
)

// DeriveKey expands the operator supplied secret into a key for a single purpose using HKDF-SHA256.
func DeriveKey(secret []byte, purpose string, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("hkdf: secret is required")
	}
	if purpose == "" {
		return nil, fmt.Errorf("hkdf: purpose is required")
	}
	switch length {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("hkdf: key length must be 16, 24, or 32 bytes (got %d)", length)
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf: expand: %w", err)
	}
	return key, nil
}
