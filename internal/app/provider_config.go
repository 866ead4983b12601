package app

import (
	"strings"

	"github.com/jsmooother/ej-development-sub001/internal/provider"
	"github.com/jsmooother/ej-development-sub001/internal/services"
)

// ClientConfig converts provider settings into the provider client configuration.
func (p ProviderConfig) ClientConfig() provider.Config {
	scopes := make([]string, 0, len(p.Scopes))
	for _, scope := range p.Scopes {
		if s := strings.TrimSpace(scope); s != "" {
			scopes = append(scopes, s)
		}
	}
	return provider.Config{
		Name:        strings.ToLower(strings.TrimSpace(p.Name)),
		AppID:       strings.TrimSpace(p.AppID),
		AppSecret:   strings.TrimSpace(p.AppSecret),
		RedirectURI: strings.TrimSpace(p.RedirectURI),
		AuthURL:     strings.TrimSpace(p.AuthURL),
		TokenURL:    strings.TrimSpace(p.TokenURL),
		GraphURL:    strings.TrimSpace(p.GraphURL),
		Scopes:      scopes,
		Timeout:     p.Timeout,
		MediaLimit:  p.MediaLimit,
	}
}

// SyncServiceConfig combines provider and cache settings for the sync pipeline.
func (c *Config) SyncServiceConfig() services.SyncConfig {
	return services.SyncConfig{
		MediaLimit:    c.Provider.MediaLimit,
		MediaTTL:      c.Cache.MediaTTL,
		TokenTTL:      c.Cache.TokenTTL,
		RefreshLeeway: c.Provider.RefreshLeeway,
	}
}

// ConnectionOptions returns the authorization flow settings. When no redirect URI is
// configured it is derived from server.base_url.
func (c *Config) ConnectionOptions() services.ConnectionOptions {
	return services.ConnectionOptions{
		RedirectURI:  c.RedirectURI(),
		RequireState: c.Security.RequireState,
	}
}

// RedirectURI is the callback address registered with the provider.
func (c *Config) RedirectURI() string {
	if uri := strings.TrimSpace(c.Provider.RedirectURI); uri != "" {
		return uri
	}
	base := strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if base == "" {
		return ""
	}
	return base + CallbackPath
}

// CallbackPath is where the provider redirects after consent.
const CallbackPath = "/api/integrations/media/callback"
