package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const securitySecretBytes = 32

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
// A generated secret does not survive restarts: stored tokens become unreadable and the
// account has to be reconnected.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Security.Secret) == "" {
		secret, err := generateHexKey(securitySecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate security secret: %w", err)
		}
		cfg.Security.Secret = secret
		generated["security.secret"] = true
	}

	if strings.TrimSpace(cfg.Provider.RedirectURI) == "" {
		if uri := cfg.RedirectURI(); uri != "" {
			cfg.Provider.RedirectURI = uri
			generated["provider.redirect_uri"] = true
		}
	}

	return generated, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
