package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/Sternrassler/go24so/pkg/auth"
	"github.com/Sternrassler/go24so/pkg/ratelimit"
	"github.com/google/uuid"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid config with token source",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name: "valid config with credentials",
			mutate: func(c *Config) {
				c.Tokens = nil
				c.Credentials = auth.Config{ClientID: "id", ClientSecret: "secret", OrganizationID: "4711"}
			},
			expectError: false,
		},
		{
			name: "missing credentials",
			mutate: func(c *Config) {
				c.Tokens = nil
			},
			expectError: true,
		},
		{
			name: "bad proxy url",
			mutate: func(c *Config) {
				c.ProxyURL = "://nope"
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://localhost", newStaticTokens())
			tt.mutate(&cfg)

			client, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			client.Close()
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(auth.Config{OrganizationID: "4711"})

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 5*time.Minute || cfg.Cache.MaxEntries != 100 {
		t.Errorf("Cache = %+v, want enabled, 5m, 100 entries", cfg.Cache)
	}
	if cfg.RequestsPerMinute != 100 {
		t.Errorf("RequestsPerMinute = %d, want 100", cfg.RequestsPerMinute)
	}
	if cfg.SkipTLSVerify {
		t.Error("TLS verification should be on by default")
	}
	if cfg.Headers["Accept"] != "application/json" {
		t.Errorf("Accept header = %q", cfg.Headers["Accept"])
	}
}

func TestExecute_RequestShape(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "1"}`))
	}))

	resp, err := client.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/customers",
		Header: http.Header{"X-Custom": []string{"yes"}},
		Body:   map[string]string{"name": "Acme"},
		Query:  map[string][]string{"dryRun": {"true"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"id": "1"}` {
		t.Errorf("Body = %s", resp.Body)
	}

	if got.Method != http.MethodPost || got.URL.Path != "/customers" {
		t.Errorf("request = %s %s", got.Method, got.URL.Path)
	}
	if got.URL.Query().Get("dryRun") != "true" {
		t.Errorf("query = %v", got.URL.Query())
	}
	if got.Header.Get("Authorization") != "Bearer test-token" {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("User-Agent") != DefaultUserAgent {
		t.Errorf("User-Agent = %q", got.Header.Get("User-Agent"))
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if got.Header.Get("X-Custom") != "yes" {
		t.Errorf("X-Custom = %q", got.Header.Get("X-Custom"))
	}
	if _, err := uuid.Parse(got.Header.Get(HeaderRequestID)); err != nil {
		t.Errorf("X-Request-Id = %q is not a uuid", got.Header.Get(HeaderRequestID))
	}
	if resp.RequestID != got.Header.Get(HeaderRequestID) {
		t.Errorf("RequestID = %q, sent %q", resp.RequestID, got.Header.Get(HeaderRequestID))
	}

	var body map[string]string
	if err := json.Unmarshal(gotBody, &body); err != nil || body["name"] != "Acme" {
		t.Errorf("body = %s", gotBody)
	}
}

func TestExecute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, statusSequence(&calls, 500, 500, 200))

	resp, err := client.Get(context.Background(), "/customers", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls = %d, want 3 (two retries)", calls.Load())
	}
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, statusSequence(&calls, 503))

	_, err := client.Get(context.Background(), "/customers", nil)
	if !errors.Is(err, apierror.ErrServer) {
		t.Fatalf("error = %v, want server error", err)
	}

	apiErr, _ := apierror.As(err)
	if apiErr.StatusCode != 503 || apiErr.Message != "failure" {
		t.Errorf("error = %+v", apiErr)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls = %d, want 3", calls.Load())
	}
}

func TestExecute_NonRetryableStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind apierror.Kind
	}{
		{"bad request", 400, apierror.KindValidation},
		{"not found", 404, apierror.KindNotFound},
		{"conflict", 409, apierror.KindClient},
		{"too many requests", 429, apierror.KindRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, statusSequence(&calls, tt.status))

			_, err := client.Get(context.Background(), "/customers/1", nil)
			if kind := apierror.KindOf(err); kind != tt.wantKind {
				t.Errorf("KindOf(err) = %v, want %v", kind, tt.wantKind)
			}
			if calls.Load() != 1 {
				t.Errorf("server calls = %d, want 1 (no retry)", calls.Load())
			}
		})
	}
}

func TestExecute_UnauthorizedInvalidatesToken(t *testing.T) {
	var calls atomic.Int32
	client, tokens := newTestClient(t, statusSequence(&calls, 401))

	_, err := client.Get(context.Background(), "/customers", nil)
	if !errors.Is(err, apierror.ErrAuth) {
		t.Fatalf("error = %v, want auth error", err)
	}
	if tokens.invalidated.Load() != 1 {
		t.Errorf("Invalidate calls = %d, want 1", tokens.invalidated.Load())
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestExecute_TokenFailureSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	client, tokens := newTestClient(t, statusSequence(&calls, 200))
	tokens.err = apierror.New(apierror.KindAuth, "invalid_client")

	_, err := client.Get(context.Background(), "/customers", nil)
	if !errors.Is(err, apierror.ErrAuth) {
		t.Errorf("error = %v, want auth error", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server calls = %d, want 0", calls.Load())
	}
}

func TestExecute_Timeout(t *testing.T) {
	var calls atomic.Int32
	server := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	})
	client, _ := newTestClient(t, server)
	client.httpClient.Timeout = 20 * time.Millisecond

	_, err := client.Get(context.Background(), "/slow", nil)
	if !errors.Is(err, apierror.ErrTimeout) {
		t.Fatalf("error = %v, want timeout", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls = %d, want 3", calls.Load())
	}
}

func TestExecute_CallerCancellationIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		<-r.Context().Done()
	}))

	_, err := client.Get(ctx, "/customers", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if _, ok := apierror.As(err); ok {
		t.Error("cancellation should not be classified")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestExecute_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := statusSequence(&calls, 200)
	client, _ := newTestClient(t, server)

	limiter, err := ratelimit.New(1, time.Hour,
		ratelimit.WithSleep(func(context.Context, time.Duration) error { return nil }))
	if err != nil {
		t.Fatal(err)
	}
	client.limiter = limiter

	if _, err := client.Get(context.Background(), "/customers", nil); err != nil {
		t.Fatalf("first Get() error = %v", err)
	}

	_, err = client.Get(context.Background(), "/customers", nil)
	if !errors.Is(err, apierror.ErrRateLimit) {
		t.Errorf("error = %v, want rate limit error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestExecute_NoRetry(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, statusSequence(&calls, 500, 200))

	_, err := client.Execute(context.Background(), Request{Method: http.MethodPost, Path: "/batch", NoRetry: true})
	if !errors.Is(err, apierror.ErrServer) {
		t.Errorf("error = %v, want server error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestExecute_Cache(t *testing.T) {
	var calls atomic.Int32
	server := statusSequence(&calls, 200)

	client, _ := newTestClient(t, server)
	cfg := testConfig(client.BaseURL(), newStaticTokens())
	cfg.Cache.Enabled = true
	cfg.Cache.Namespace = "4711"
	cached, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Get(ctx, "/products", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.FromCache() {
		t.Error("first response should come from the server")
	}

	second, err := cached.Get(ctx, "/products", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !second.FromCache() {
		t.Error("second response should come from the cache")
	}
	if string(second.Body) != string(first.Body) {
		t.Errorf("cached body = %s, want %s", second.Body, first.Body)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/customers", "/customers"},
		{"/customers/42", "/customers/:id"},
		{"invoices/1001/send", "/invoices/:id/send"},
		{"/products/3f2504e0-4f89-11d3-9a0c-0305e82c3301", "/products/:id"},
		{"/productcategories", "/productcategories"},
	}
	for _, tt := range tests {
		if got := endpointLabel(tt.path); got != tt.want {
			t.Errorf("endpointLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	cfg := testConfig("http://localhost", newStaticTokens())
	cfg.Cache.Enabled = true
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
