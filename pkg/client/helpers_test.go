package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/go24so/pkg/auth"
	"github.com/rs/zerolog"
)

// staticTokens hands out a fixed token and counts invalidations.
type staticTokens struct {
	token       *auth.Token
	err         error
	requests    atomic.Int32
	invalidated atomic.Int32
}

func newStaticTokens() *staticTokens {
	return &staticTokens{token: &auth.Token{
		AccessToken: "test-token",
		TokenType:   "Bearer",
		IssuedAt:    time.Now(),
		Lifetime:    time.Hour,
	}}
}

func (s *staticTokens) Token(context.Context, bool) (*auth.Token, error) {
	s.requests.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func (s *staticTokens) Invalidate() {
	s.invalidated.Add(1)
}

// testConfig returns a config pointed at baseURL with fast retries and no cache.
func testConfig(baseURL string, tokens TokenSource) Config {
	nop := zerolog.Nop()
	cfg := DefaultConfig(auth.Config{})
	cfg.BaseURL = baseURL
	cfg.Tokens = tokens
	cfg.Timeout = 2 * time.Second
	cfg.Cache.Enabled = false
	cfg.RequestsPerMinute = 6000
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	cfg.Logger = &nop
	return cfg
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *staticTokens) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := newStaticTokens()
	c, err := New(testConfig(server.URL, tokens))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, tokens
}

// statusSequence answers with the given statuses in order, repeating the last.
func statusSequence(calls *atomic.Int32, statuses ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[n])
		if statuses[n] < 400 {
			w.Write([]byte(`{"ok": true}`))
		} else {
			w.Write([]byte(`{"message": "failure"}`))
		}
	}
}
