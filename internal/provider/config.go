package provider

import (
	"net/http"
	"strings"
	"time"
)

// Default endpoints of the Instagram Graph API family.
const (
	DefaultName     = "instagram"
	DefaultAuthURL  = "https://api.instagram.com/oauth/authorize"
	DefaultTokenURL = "https://api.instagram.com/oauth/access_token"
	DefaultGraphURL = "https://graph.instagram.com"

	DefaultTimeout    = 10 * time.Second
	DefaultMediaLimit = 12
	MaxMediaLimit     = 100
)

// DefaultScopes requested during consent.
var DefaultScopes = []string{"instagram_business_basic"}

// Config describes a media provider application.
type Config struct {
	Name        string
	AppID       string
	AppSecret   string
	RedirectURI string
	AuthURL     string
	TokenURL    string
	GraphURL    string
	Scopes      []string
	Timeout     time.Duration
	MediaLimit  int

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultName
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.GraphURL == "" {
		c.GraphURL = DefaultGraphURL
	}
	c.GraphURL = strings.TrimRight(c.GraphURL, "/")
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.MediaLimit = ClampLimit(c.MediaLimit)
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}

// ClampLimit bounds a requested page size to what the media endpoint accepts.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultMediaLimit
	case limit > MaxMediaLimit:
		return MaxMediaLimit
	default:
		return limit
	}
}
