// Package config loads client configuration from files and SO24_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Sternrassler/go24so/pkg/auth"
	"github.com/Sternrassler/go24so/pkg/client"
	"github.com/Sternrassler/go24so/pkg/logging"
)

// EnvPrefix prefixes every environment variable, e.g. SO24_AUTH_CLIENT_ID.
const EnvPrefix = "SO24"

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the complete configuration of a client and the CLI.
type Config struct {
	Auth  AuthConfig  `mapstructure:"auth"`
	API   APIConfig   `mapstructure:"api"`
	Cache CacheConfig `mapstructure:"cache"`
	Retry RetryConfig `mapstructure:"retry"`
	Log   LogConfig   `mapstructure:"log"`
	Proxy ProxyConfig `mapstructure:"proxy"`
}

// AuthConfig holds the client-credentials grant.
type AuthConfig struct {
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	OrganizationID string        `mapstructure:"organization_id"`
	TokenURL       string        `mapstructure:"token_url"`
	Scope          string        `mapstructure:"scope"`
	SafetyMargin   time.Duration `mapstructure:"safety_margin"`
}

// APIConfig holds transport settings.
type APIConfig struct {
	BaseURL           string            `mapstructure:"base_url"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	RequestsPerMinute int               `mapstructure:"requests_per_minute"`
	HTTP2             bool              `mapstructure:"http2"`
	ProxyURL          string            `mapstructure:"proxy_url"`
	VerifyTLS         bool              `mapstructure:"verify_tls"`
	Headers           map[string]string `mapstructure:"headers"`
}

// CacheConfig selects and sizes the response cache.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// RetryConfig mirrors client.RetryConfig.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ProxyConfig configures the local proxy server of the CLI.
type ProxyConfig struct {
	Addr string `mapstructure:"addr"`
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	retry := client.DefaultRetryConfig()

	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.organization_id", "")
	v.SetDefault("auth.token_url", auth.DefaultTokenURL)
	v.SetDefault("auth.scope", auth.DefaultScope)
	v.SetDefault("auth.safety_margin", auth.DefaultSafetyMargin)

	v.SetDefault("api.base_url", client.DefaultBaseURL)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.requests_per_minute", client.DefaultRequestsPerMinute)
	v.SetDefault("api.http2", false)
	v.SetDefault("api.proxy_url", "")
	v.SetDefault("api.verify_tls", true)
	v.SetDefault("api.headers", map[string]string{})

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", retry.MaxBackoff)
	v.SetDefault("retry.backoff_multiplier", retry.BackoffMultiplier)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)

	v.SetDefault("proxy.addr", ":8080")
}

// New returns a viper instance with defaults and environment binding.
// Credentials also accept the short names SO24_CLIENT_ID,
// SO24_CLIENT_SECRET and SO24_ORGANIZATION_ID.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("auth.client_id", EnvPrefix+"_AUTH_CLIENT_ID", EnvPrefix+"_CLIENT_ID")
	_ = v.BindEnv("auth.client_secret", EnvPrefix+"_AUTH_CLIENT_SECRET", EnvPrefix+"_CLIENT_SECRET")
	_ = v.BindEnv("auth.organization_id", EnvPrefix+"_AUTH_ORGANIZATION_ID", EnvPrefix+"_ORGANIZATION_ID")
	return v
}

// Load reads path (YAML, JSON or TOML by extension) when set, otherwise
// looks for so24.yaml in the working directory and $HOME/.config/so24.
// A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("so24")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/so24")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes an already prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values a client needs. Credentials are only
// required when requireCredentials is set.
func (c *Config) Validate(requireCredentials bool) error {
	var errs []error

	if requireCredentials {
		if c.Auth.ClientID == "" {
			errs = append(errs, errors.New("auth.client_id is required"))
		}
		if c.Auth.ClientSecret == "" {
			errs = append(errs, errors.New("auth.client_secret is required"))
		}
		if c.Auth.OrganizationID == "" {
			errs = append(errs, errors.New("auth.organization_id is required"))
		}
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	}
	if c.API.Timeout < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("api.timeout must be at least 100ms (got %s)", c.API.Timeout))
	}
	if c.API.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("api.requests_per_minute must be >= 1 (got %d)", c.API.RequestsPerMinute))
	}
	if c.Cache.Enabled {
		if c.Cache.TTL < time.Second {
			errs = append(errs, fmt.Errorf("cache.ttl must be at least 1s (got %s)", c.Cache.TTL))
		}
		if c.Cache.MaxEntries < 1 {
			errs = append(errs, fmt.Errorf("cache.max_entries must be >= 1 (got %d)", c.Cache.MaxEntries))
		}
		switch c.Cache.Backend {
		case BackendMemory:
		case BackendRedis:
			if c.Cache.RedisAddr == "" {
				errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("cache.backend must be %q or %q (got %q)", BackendMemory, BackendRedis, c.Cache.Backend))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// Credentials returns the token manager configuration.
func (c *Config) Credentials() auth.Config {
	return auth.Config{
		ClientID:       c.Auth.ClientID,
		ClientSecret:   c.Auth.ClientSecret,
		OrganizationID: c.Auth.OrganizationID,
		TokenURL:       c.Auth.TokenURL,
		Scope:          c.Auth.Scope,
		SafetyMargin:   c.Auth.SafetyMargin,
	}
}

// NewRedisClient returns a client for the redis cache backend, or nil when
// the cache is disabled or in memory. The caller closes it.
func (c *Config) NewRedisClient() *redis.Client {
	if !c.Cache.Enabled || c.Cache.Backend != BackendRedis {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Cache.RedisAddr,
		Password: c.Cache.RedisPassword,
		DB:       c.Cache.RedisDB,
	})
}

// ClientConfig builds the client configuration. rdb is the redis client
// from NewRedisClient and may be nil.
func (c *Config) ClientConfig(rdb *redis.Client, logger *zerolog.Logger) client.Config {
	cfg := client.DefaultConfig(c.Credentials())
	cfg.BaseURL = c.API.BaseURL
	cfg.Timeout = c.API.Timeout
	cfg.RequestsPerMinute = c.API.RequestsPerMinute
	cfg.HTTP2 = c.API.HTTP2
	cfg.ProxyURL = c.API.ProxyURL
	cfg.SkipTLSVerify = !c.API.VerifyTLS
	for k, v := range c.API.Headers {
		cfg.Headers[k] = v
	}

	cfg.Cache.Enabled = c.Cache.Enabled
	cfg.Cache.TTL = c.Cache.TTL
	cfg.Cache.MaxEntries = c.Cache.MaxEntries
	cfg.Cache.Redis = rdb

	cfg.Retry = client.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialBackoff:    c.Retry.InitialBackoff,
		MaxBackoff:        c.Retry.MaxBackoff,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}
	cfg.Logger = logger
	return cfg
}

// LoggingConfig returns the pkg/logging setup for this configuration.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	lc.Pretty = c.Log.Pretty
	if c.Auth.OrganizationID != "" {
		lc.Fields = map[string]string{"organization_id": c.Auth.OrganizationID}
	}
	return lc
}
