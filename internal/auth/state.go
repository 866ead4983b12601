package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultStateTTL bounds how long a consent redirect may take.
const DefaultStateTTL = 10 * time.Minute

const stateIssuer = "mediasync"

var (
	// ErrStateInvalid is returned for states that are malformed, tampered with or issued for another provider.
	ErrStateInvalid = errors.New("oauth state: invalid")
	// ErrStateExpired is returned for states older than their TTL.
	ErrStateExpired = errors.New("oauth state: expired")
)

// StateClaims is the payload carried through the provider's consent screen.
type StateClaims struct {
	Provider   string `json:"prv"`
	ReturnPath string `json:"ret,omitempty"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies the OAuth state parameter as a short-lived HS256 JWT.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner constructs a signer. The key should be derived for this purpose only.
func NewStateSigner(key []byte, ttl time.Duration, now func() time.Time) (*StateSigner, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("oauth state: key must be at least 16 bytes, got %d", len(key))
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateSigner{key: key, ttl: ttl, now: now}, nil
}

// Issue returns a signed state for provider. returnPath is optional.
func (s *StateSigner) Issue(provider, returnPath string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", errors.New("oauth state: provider is required")
	}

	now := s.now()
	claims := &StateClaims{
		Provider:   provider,
		ReturnPath: returnPath,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("oauth state: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and provider of a state value.
func (s *StateSigner) Verify(token, provider string) (*StateClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrStateInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims StateClaims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrStateInvalid
	}

	if !strings.EqualFold(claims.Provider, strings.TrimSpace(provider)) {
		return nil, ErrStateInvalid
	}
	return &claims, nil
}
