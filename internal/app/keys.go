package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jsmooother/ej-development-sub001/pkg/crypto"
)

const minSecretBytes = 16

// Keys holds the purpose specific keys derived from security.secret.
type Keys struct {
	TokenEncryption []byte
	StateSigning    []byte
}

// DecodeKey decodes a key from hex or base64 encoding to raw bytes.
// It tries hex first (since runtime defaults use hex), then base64 variants.
// If all decoding attempts fail, it treats the input as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

// DeriveKeys expands security.secret into independent keys for token encryption
// and OAuth state signing.
func (c *Config) DeriveKeys() (*Keys, error) {
	secret, err := DecodeKey(c.Security.Secret)
	if err != nil {
		return nil, fmt.Errorf("security.secret: %w", err)
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("security.secret must decode to at least %d bytes (current: %d)", minSecretBytes, len(secret))
	}

	tokenKey, err := crypto.DeriveKey(secret, crypto.PurposeTokenEncryption, 32)
	if err != nil {
		return nil, err
	}
	stateKey, err := crypto.DeriveKey(secret, crypto.PurposeStateSigning, 32)
	if err != nil {
		return nil, err
	}
	return &Keys{TokenEncryption: tokenKey, StateSigning: stateKey}, nil
}
