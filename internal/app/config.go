package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/jsmooother/ej-development-sub001/pkg/validator"
)

// Config represents the runtime configuration for the media sync service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Security    SecurityConfig    `mapstructure:"security"`
	Site        SiteConfig        `mapstructure:"site"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Notify      NotifyConfig      `mapstructure:"notifications"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel        string          `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat       string          `mapstructure:"log_format" validate:"omitempty,oneof=json console"`
	BaseURL         string          `mapstructure:"base_url" validate:"omitempty,httpurl"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds request rates per client on the feed and sync endpoints.
type RateLimitConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	FeedRequests int           `mapstructure:"feed_requests" validate:"min=0"`
	SyncRequests int           `mapstructure:"sync_requests" validate:"min=0"`
	Window       time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver" validate:"oneof=sqlite sqlite3 postgres postgresql mysql mariadb"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig selects the cache backend and the freshness windows.
type CacheConfig struct {
	Backend          string           `mapstructure:"backend" validate:"oneof=database redis none"`
	Redis            RedisCacheConfig `mapstructure:"redis"`
	MediaTTL         time.Duration    `mapstructure:"media_ttl"`
	TokenTTL         time.Duration    `mapstructure:"token_ttl"`
	OperationTimeout time.Duration    `mapstructure:"operation_timeout"`
	RetryInterval    time.Duration    `mapstructure:"retry_interval"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address   string        `mapstructure:"address"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TLS       bool          `mapstructure:"tls"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// ProviderConfig holds the media provider application credentials and endpoints.
type ProviderConfig struct {
	Name          string        `mapstructure:"name" validate:"required"`
	AppID         string        `mapstructure:"app_id" validate:"required"`
	AppSecret     string        `mapstructure:"app_secret" validate:"required"`
	RedirectURI   string        `mapstructure:"redirect_uri" validate:"omitempty,httpurl"`
	AuthURL       string        `mapstructure:"auth_url" validate:"omitempty,httpurl"`
	TokenURL      string        `mapstructure:"token_url" validate:"omitempty,httpurl"`
	GraphURL      string        `mapstructure:"graph_url" validate:"omitempty,httpurl"`
	Scopes        []string      `mapstructure:"scopes"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MediaLimit    int           `mapstructure:"media_limit" validate:"min=0,max=100"`
	RefreshLeeway time.Duration `mapstructure:"refresh_leeway" validate:"min=0"`
}

// SecurityConfig carries the operator secret keys are derived from.
type SecurityConfig struct {
	Secret       string        `mapstructure:"secret"`
	StateTTL     time.Duration `mapstructure:"state_ttl"`
	RequireState bool          `mapstructure:"require_state"`
}

// SiteConfig describes the public site the service redirects administrators back to.
type SiteConfig struct {
	BaseURL         string `mapstructure:"base_url" validate:"omitempty,httpurl"`
	AdminStatusPath string `mapstructure:"admin_status_path" validate:"required,rootpath"`
}

// SyncConfig configures the optional scheduled warm-up sync.
type SyncConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,rootpath"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NotifyConfig configures operator notifications.
type NotifyConfig struct {
	Email EmailConfig `mapstructure:"email"`
}

// EmailConfig describes the SMTP relay used for reconnect notices.
type EmailConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port" validate:"min=0,max=65535"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	To          []string      `mapstructure:"to" validate:"dive,email"`
	ImplicitTLS bool          `mapstructure:"implicit_tls"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules housekeeping jobs.
type MaintenanceConfig struct {
	CachePurgeSchedule string `mapstructure:"cache_purge_schedule"`
}

// LoadConfig reads config.yaml from the first of paths that has one (./config when
// none are given), then MEDIASYNC_* environment overrides. It does not validate; call Validate before wiring anything that talks to the provider.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if len(paths) == 0 {
		paths = []string{"./config"}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("MEDIASYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate reports every configuration problem at once, naming the offending keys.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil configuration")
	}

	err := validator.ValidateStruct(c)
	if err == nil {
		return c.validateDependencies()
	}

	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return fmt.Errorf("config: %w", err)
	}

	var combined error
	for _, f := range failures {
		combined = multierr.Append(combined, fieldError(f))
	}
	return multierr.Append(combined, c.validateDependencies())
}

func (c *Config) validateDependencies() error {
	var errs error
	if c.Cache.Backend == "redis" && strings.TrimSpace(c.Cache.Redis.Address) == "" {
		errs = multierr.Append(errs, errors.New("cache.redis.address must be configured when cache.backend is redis"))
	}
	if email := c.Notify.Email; email.Enabled {
		if strings.TrimSpace(email.Host) == "" {
			errs = multierr.Append(errs, errors.New("notifications.email.host must be configured when email is enabled"))
		}
		if strings.TrimSpace(email.From) == "" {
			errs = multierr.Append(errs, errors.New("notifications.email.from must be configured when email is enabled"))
		}
		if len(email.To) == 0 {
			errs = multierr.Append(errs, errors.New("notifications.email.to must list at least one recipient"))
		}
	}
	return errs
}

func fieldError(f validator.ValidationError) error {
	switch f.Tag {
	case "required":
		return fmt.Errorf("%s must be configured", f.Field)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", f.Field, f.Param)
	case "rootpath":
		return fmt.Errorf("%s must be a site relative path starting with /", f.Field)
	case "httpurl":
		return fmt.Errorf("%s must be an absolute http(s) URL", f.Field)
	default:
		if f.Param != "" {
			return fmt.Errorf("%s is invalid (%s=%s)", f.Field, f.Tag, f.Param)
		}
		return fmt.Errorf("%s is invalid (%s)", f.Field, f.Tag)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.feed_requests", 120)
	v.SetDefault("server.rate_limit.sync_requests", 10)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/mediasync.sqlite")

	v.SetDefault("cache.backend", "database")
	v.SetDefault("cache.media_ttl", "1h")
	v.SetDefault("cache.token_ttl", "2h")
	v.SetDefault("cache.operation_timeout", "2s")
	v.SetDefault("cache.retry_interval", "30s")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.key_prefix", "mediasync:")

	v.SetDefault("provider.name", "instagram")
	v.SetDefault("provider.app_id", "")
	v.SetDefault("provider.app_secret", "")
	v.SetDefault("provider.redirect_uri", "")
	v.SetDefault("provider.auth_url", "https://api.instagram.com/oauth/authorize")
	v.SetDefault("provider.token_url", "https://api.instagram.com/oauth/access_token")
	v.SetDefault("provider.graph_url", "https://graph.instagram.com")
	v.SetDefault("provider.scopes", []string{"instagram_business_basic"})
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.media_limit", 12)
	v.SetDefault("provider.refresh_leeway", "0s")

	v.SetDefault("security.secret", "")
	v.SetDefault("security.state_ttl", "10m")
	v.SetDefault("security.require_state", false)

	v.SetDefault("site.base_url", "")
	v.SetDefault("site.admin_status_path", "/admin/integrations")

	v.SetDefault("sync.schedule", "")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.cache_purge_schedule", "@every 15m")

	v.SetDefault("notifications.email.enabled", false)
	v.SetDefault("notifications.email.port", 587)
	v.SetDefault("notifications.email.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
