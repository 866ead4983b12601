package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jsmooother/ej-development-sub001/pkg/logger"
	"github.com/jsmooother/ej-development-sub001/pkg/metrics"
)

// Operation names used in errors, logs and metrics.
const (
	OpExchangeCode = "exchange_code"
	OpLongLived    = "exchange_long_lived"
	OpRefresh      = "refresh"
	OpProfile      = "profile"
	OpListMedia    = "list_media"
)

const maxResponseBody = 2 << 20

// OAuthExchanger turns an authorization code into a long-lived token.
type OAuthExchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*ShortLivedToken, error)
	ExchangeForLongLived(ctx context.Context, shortLived string) (*LongLivedToken, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// TokenRefresher renews a still valid long-lived token.
type TokenRefresher interface {
	Refresh(ctx context.Context, accessToken string) (*LongLivedToken, error)
}

// ContentFetcher lists the account's media.
type ContentFetcher interface {
	ListMedia(ctx context.Context, accessToken string, limit int) (*MediaPage, error)
}

// Client talks to a Graph style media provider. It implements OAuthExchanger,
// TokenRefresher and ContentFetcher. Every request is bounded by Config.Timeout.
type Client struct {
	cfg   Config
	oauth *oauth2.Config
	log   *zap.Logger
}

var (
	_ OAuthExchanger = (*Client)(nil)
	_ TokenRefresher = (*Client)(nil)
	_ ContentFetcher = (*Client)(nil)
)

// NewClient validates cfg and builds a provider client.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, errors.New("provider: app id is required")
	}
	if strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, errors.New("provider: app secret is required")
	}
	if _, err := url.ParseRequestURI(cfg.GraphURL); err != nil {
		return nil, fmt.Errorf("provider: invalid graph url: %w", err)
	}

	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		log: logger.WithModule("provider").With(zap.String("provider", cfg.Name)),
	}, nil
}

// Name returns the provider identifier used to key the stored credential.
func (c *Client) Name() string {
	return c.cfg.Name
}

// MediaLimit returns the configured page size.
func (c *Client) MediaLimit() int {
	return c.cfg.MediaLimit
}

// getJSON issues a bounded GET against the graph API and decodes a 2xx body into dst.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, dst any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() { observe(op, start, err) }()

	endpoint := c.cfg.GraphURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("provider %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		// the url carries the access token; report the operation only
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("provider %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("provider %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(op, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &APIError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    "malformed response: " + err.Error(),
			Body:       truncate(string(body)),
		}
	}
	return nil
}

func observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
		if IsTimeout(err) {
			result = "timeout"
		}
	}
	metrics.ProviderRequests.WithLabelValues(op, result).Inc()
	metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func truncate(s string) string {
	if len(s) > maxDiagnosticBody {
		return s[:maxDiagnosticBody]
	}
	return s
}
