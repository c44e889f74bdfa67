package client

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/go24so/pkg/auth"
	"github.com/Sternrassler/go24so/pkg/cache"
	"github.com/Sternrassler/go24so/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the 24SevenOffice REST API root.
	DefaultBaseURL = "https://rest.api.24sevenoffice.com/v1"

	// DefaultUserAgent is sent unless Config.Headers overrides it.
	DefaultUserAgent = "go24so/1.0"

	// DefaultRequestsPerMinute is the client-side admission rate.
	DefaultRequestsPerMinute = 100
)

// Config holds the client configuration.
type Config struct {
	// Credentials are used to build an auth.Manager when Tokens is nil.
	Credentials auth.Config

	// Tokens supplies access tokens (built from Credentials if nil).
	Tokens TokenSource

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	// Headers are added to every request (User-Agent, Accept, ...).
	Headers map[string]string

	// Rate Limiting
	RequestsPerMinute int
	Limiter           *ratelimit.Limiter // overrides RequestsPerMinute

	// Retry
	Retry RetryConfig

	// Caching
	Cache CacheConfig

	// Transport
	HTTP2         bool
	ProxyURL      string
	SkipTLSVerify bool

	// Transport replaces the built transport (tests, custom dialers).
	Transport http.RoundTripper

	Logger *zerolog.Logger
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool

	// TTL is how long GET responses are served from cache.
	TTL time.Duration

	// MaxEntries bounds the in-memory store.
	MaxEntries int

	// Redis switches the store to Redis when set.
	Redis *redis.Client

	// Store overrides both of the above.
	Store cache.Store

	// Namespace defaults to the organization id.
	Namespace string
}

// DefaultConfig returns a configuration with the library defaults.
func DefaultConfig(credentials auth.Config) Config {
	return Config{
		Credentials:       credentials,
		BaseURL:           DefaultBaseURL,
		Timeout:           30 * time.Second,
		RequestsPerMinute: DefaultRequestsPerMinute,
		Retry:             DefaultRetryConfig(),
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        cache.DefaultTTL,
			MaxEntries: 100,
		},
		Headers: map[string]string{
			"User-Agent": DefaultUserAgent,
			"Accept":     "application/json",
		},
	}
}

// buildTransport creates the network transport shared by API and token
// requests. The cache wraps it separately in New.
func buildTransport(cfg Config) (http.RoundTripper, error) {
	if cfg.Transport != nil {
		return cfg.Transport, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = cfg.HTTP2
	if !cfg.HTTP2 {
		// A non-nil empty map disables the bundled HTTP/2 upgrade.
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	if cfg.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	return transport, nil
}

// buildStore creates the cache store for cfg, or nil when caching is off.
func buildStore(cfg CacheConfig, revalidate time.Duration) (cache.Store, error) {
	switch {
	case !cfg.Enabled:
		return nil, nil
	case cfg.Store != nil:
		return cfg.Store, nil
	case cfg.Redis != nil:
		return cache.NewRedisStore(cfg.Redis), nil
	}

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return cache.NewMemoryStore(maxEntries, cacheTTL(cfg)+revalidate)
}

func cacheTTL(cfg CacheConfig) time.Duration {
	if cfg.TTL <= 0 {
		return cache.DefaultTTL
	}
	return cfg.TTL
}
