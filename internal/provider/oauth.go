package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// AuthCodeURL builds the consent URL the administrator is redirected to.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("scope", strings.Join(c.cfg.Scopes, ",")),
	)
}

// ExchangeCode trades a one-time authorization code for a short-lived token.
// Codes are single use; a failed exchange must not be retried with the same code.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (tok *ShortLivedToken, err error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("provider exchange_code: authorization code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)

	start := time.Now()
	defer func() { observe(OpExchangeCode, start, err) }()

	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	token, err := c.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return nil, newAPIError(OpExchangeCode, status, retrieveErr.Body)
		}
		return nil, fmt.Errorf("provider %s: %w", OpExchangeCode, err)
	}

	c.log.Debug("authorization code exchanged")
	return &ShortLivedToken{AccessToken: token.AccessToken, Expiry: token.Expiry}, nil
}

// ExchangeForLongLived upgrades a short-lived token to a long-lived one.
func (c *Client) ExchangeForLongLived(ctx context.Context, shortLived string) (*LongLivedToken, error) {
	if strings.TrimSpace(shortLived) == "" {
		return nil, errors.New("provider exchange_long_lived: short-lived token is required")
	}

	query := url.Values{}
	query.Set("grant_type", "ig_exchange_token")
	query.Set("client_secret", c.cfg.AppSecret)
	query.Set("access_token", shortLived)

	var token LongLivedToken
	if err := c.getJSON(ctx, OpLongLived, "/access_token", query, &token); err != nil {
		return nil, err
	}
	if err := validateToken(OpLongLived, &token); err != nil {
		return nil, err
	}

	c.log.Debug("long-lived token issued", zap.Int64("expires_in", token.ExpiresIn))
	return &token, nil
}

// FetchProfile resolves the account behind an access token.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	query := url.Values{}
	query.Set("fields", "user_id,username")
	query.Set("access_token", accessToken)

	var body struct {
		ID       FlexibleID `json:"id"`
		UserID   FlexibleID `json:"user_id"`
		Username string     `json:"username"`
	}
	if err := c.getJSON(ctx, OpProfile, "/me", query, &body); err != nil {
		return nil, err
	}

	profile := &Profile{UserID: body.UserID.String(), Username: body.Username}
	if profile.UserID == "" {
		profile.UserID = body.ID.String()
	}
	if profile.UserID == "" {
		return nil, &APIError{Operation: OpProfile, StatusCode: 200, Message: "profile response missing user id"}
	}
	return profile, nil
}

func validateToken(op string, token *LongLivedToken) error {
	if token.AccessToken == "" {
		return &APIError{Operation: op, StatusCode: 200, Message: "response missing access_token"}
	}
	if token.ExpiresIn <= 0 {
		return &APIError{Operation: op, StatusCode: 200, Message: "response missing expires_in"}
	}
	return nil
}
