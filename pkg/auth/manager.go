package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultTokenURL is the 24SevenOffice OAuth2 token endpoint.
	DefaultTokenURL = "https://rest.api.24sevenoffice.com/oauth2/token"

	// DefaultScope is requested when Config.Scope is empty.
	DefaultScope = "https://api.24sevenoffice.com/rest"

	// DefaultSafetyMargin is how long before expiry a token stops being reused.
	DefaultSafetyMargin = 30 * time.Second

	// HeaderOrganization selects the tenant on the token endpoint.
	HeaderOrganization = "X-Organization-Id"
)

// Prometheus metrics for token handling.
var (
	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_token_refreshes_total",
		Help: "Token exchanges by outcome (success, failure)",
	}, []string{"outcome"})

	tokenReuseTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "so24_token_reuse_total",
		Help: "Token requests answered from the cached token",
	})
)

// Config holds the credentials and endpoint of a Manager.
type Config struct {
	ClientID       string
	ClientSecret   string
	OrganizationID string

	// TokenURL defaults to DefaultTokenURL.
	TokenURL string

	// Scope defaults to DefaultScope.
	Scope string

	// SafetyMargin defaults to DefaultSafetyMargin.
	SafetyMargin time.Duration

	// HTTPClient performs the exchange (http.DefaultClient transport if nil).
	HTTPClient *http.Client

	// Clock defaults to time.Now.
	Clock func() time.Time

	Logger *zerolog.Logger
}

// Manager caches one access token and refreshes it on demand.
//
// Manager is safe for concurrent use. The exchange runs without holding the
// lock, so concurrent refreshers may each perform an exchange; the last one
// to finish wins.
type Manager struct {
	mu    sync.RWMutex
	token *Token

	oauth      clientcredentials.Config
	httpClient *http.Client
	margin     time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewManager validates cfg and creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.OrganizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}

	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger := log.With().Str("component", "auth").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "auth").Logger()
	}

	base := http.DefaultTransport
	timeout := time.Duration(0)
	if cfg.HTTPClient != nil {
		if cfg.HTTPClient.Transport != nil {
			base = cfg.HTTPClient.Transport
		}
		timeout = cfg.HTTPClient.Timeout
	}

	return &Manager{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{cfg.Scope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{
			Transport: &organizationTransport{base: base, organizationID: cfg.OrganizationID},
			Timeout:   timeout,
		},
		margin: cfg.SafetyMargin,
		now:    cfg.Clock,
		logger: logger,
	}, nil
}

// Token returns a usable token, exchanging credentials when the cached one
// is missing, too close to expiry, or forceRefresh is set.
//
// Failures are *apierror.Error of kind KindAuth; a stale token is never
// returned in their place.
func (m *Manager) Token(ctx context.Context, forceRefresh bool) (*Token, error) {
	if !forceRefresh {
		m.mu.RLock()
		current := m.token
		m.mu.RUnlock()

		if current.Valid(m.now(), m.margin) {
			tokenReuseTotal.Inc()
			return current, nil
		}
	}

	tok, err := m.exchange(ctx)
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("failure").Inc()
		m.logger.Error().Err(err).Msg("Token exchange failed")
		return nil, err
	}

	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()

	tokenRefreshesTotal.WithLabelValues("success").Inc()
	m.logger.Debug().
		Time("expires_at", tok.ExpiresAt()).
		Str("scope", tok.Scope).
		Msg("Obtained access token")

	return tok, nil
}

// Invalidate drops the cached token so the next Token call exchanges again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// Cached returns the cached token without validating or refreshing it.
func (m *Manager) Cached() *Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) exchange(ctx context.Context) (*Token, error) {
	issuedAt := m.now()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	raw, err := m.oauth.Token(ctx)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	tok := &Token{
		AccessToken: raw.AccessToken,
		TokenType:   raw.TokenType,
		IssuedAt:    issuedAt,
		Lifetime:    lifetimeOf(raw),
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if scope, ok := raw.Extra("scope").(string); ok {
		tok.Scope = scope
	}
	return tok, nil
}

func classifyExchangeError(err error) *apierror.Error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}

		message := retrieveErr.ErrorDescription
		if message == "" {
			message = retrieveErr.ErrorCode
		}
		if message == "" {
			message = fmt.Sprintf("failed to obtain token: HTTP %d", status)
		}

		return &apierror.Error{
			Kind:       apierror.KindAuth,
			Message:    message,
			StatusCode: status,
			Body:       retrieveErr.Body,
		}
	}
	return apierror.Wrap(apierror.KindAuth, "token request failed", err)
}

// lifetimeOf reads expires_in from the raw token response. The oauth2
// package resolves Expiry against the wall clock, so the lifetime is taken
// from the response itself to stay relative to the Manager's clock.
func lifetimeOf(tok *oauth2.Token) time.Duration {
	var seconds float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = v
	case int64:
		seconds = float64(v)
	case json.Number:
		seconds, _ = v.Float64()
	case string:
		seconds, _ = strconv.ParseFloat(v, 64)
	}
	if seconds <= 0 {
		return DefaultLifetime
	}
	return time.Duration(seconds * float64(time.Second))
}

// organizationTransport adds the tenant header to token requests.
type organizationTransport struct {
	base           http.RoundTripper
	organizationID string
}

func (t *organizationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set(HeaderOrganization, t.organizationID)
	return t.base.RoundTrip(out)
}
