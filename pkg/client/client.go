// Package client provides the 24SevenOffice HTTP client with authentication,
// rate limiting, retries, and response caching.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/Sternrassler/go24so/pkg/auth"
	"github.com/Sternrassler/go24so/pkg/cache"
	"github.com/Sternrassler/go24so/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "so24_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint, including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_errors_total",
		Help: "Total API errors by kind",
	}, []string{"kind"})
)

// HeaderRequestID carries the per-call correlation id.
const HeaderRequestID = "X-Request-Id"

// TokenSource supplies access tokens. *auth.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (*auth.Token, error)
	Invalidate()
}

// Request describes one logical API call.
type Request struct {
	Method string

	// Path is relative to the base URL (e.g., "/customers/42").
	Path string

	Header http.Header

	// Body is sent as JSON. []byte and json.RawMessage are sent verbatim.
	Body any

	Query url.Values

	// NoRetry sends the request with a single attempt.
	NoRetry bool
}

// Response is a successful (status < 400) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// RequestID is the X-Request-Id sent with the call.
	RequestID string
}

// FromCache reports whether the response was served by the cache.
func (r *Response) FromCache() bool {
	return r.Header.Get(cache.HeaderCache) != ""
}

// Client is the 24SevenOffice API client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	transport  http.RoundTripper
	baseURL    string
	headers    http.Header
	tokens     TokenSource
	limiter    *ratelimit.Limiter
	store      cache.Store
	retry      RetryConfig
	logger     zerolog.Logger
	base       zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a client. The returned client owns its transport and cache
// store until Close.
func New(cfg Config) (*Client, error) {
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	logger := base.With().Str("component", "client").Logger()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	tokens := cfg.Tokens
	if tokens == nil {
		creds := cfg.Credentials
		if creds.HTTPClient == nil {
			creds.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.Timeout}
		}
		if creds.Logger == nil {
			creds.Logger = cfg.Logger
		}
		manager, err := auth.NewManager(creds)
		if err != nil {
			return nil, fmt.Errorf("create token manager: %w", err)
		}
		tokens = manager
	}

	limiter := cfg.Limiter
	if limiter == nil {
		rpm := cfg.RequestsPerMinute
		if rpm <= 0 {
			rpm = DefaultRequestsPerMinute
		}
		limiter, err = ratelimit.NewPerMinute(rpm, ratelimit.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
	}

	retry := cfg.Retry.withDefaults()

	store, err := buildStore(cfg.Cache, cacheTTL(cfg.Cache))
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}

	roundTripper := transport
	if store != nil {
		cached := cache.NewTransport(transport, store)
		cached.TTL = cacheTTL(cfg.Cache)
		cached.Revalidate = cached.TTL
		cached.Namespace = cfg.Cache.Namespace
		if cached.Namespace == "" {
			cached.Namespace = cfg.Credentials.OrganizationID
		}
		cached.Logger = logger.With().Str("component", "cache").Logger()
		roundTripper = cached
	}

	headers := make(http.Header)
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", DefaultUserAgent)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: roundTripper,
			Timeout:   cfg.Timeout,
		},
		transport: transport,
		baseURL:   strings.TrimRight(baseURL, "/"),
		headers:   headers,
		tokens:    tokens,
		limiter:   limiter,
		store:     store,
		retry:     retry,
		logger:    logger,
		base:      base,
	}, nil
}

// Execute performs one logical API call: admission, authentication, the
// HTTP exchange with retries, and status classification.
//
// Failures are *apierror.Error, except caller cancellation which is returned
// as the context error.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	endpoint := endpointLabel(req.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Admission
	if err := c.limiter.Wait(ctx); err != nil {
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		recordError(err)
		c.logger.Warn().Str("endpoint", req.Path).Msg("Request denied by rate limiter")
		return nil, err
	}

	// Step 2: Authentication
	token, err := c.tokens.Token(ctx, false)
	if err != nil {
		recordError(err)
		return nil, err
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		recordError(err)
		return nil, err
	}

	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("endpoint", req.Path).
		Logger()

	logger.Debug().Msg("Executing API request")

	// Step 3: Exchange with retries
	var resp *Response
	attempt := func() error {
		r, err := c.do(ctx, req, body, token, requestID)
		if err != nil {
			recordError(err)
			return attemptError(ctx, err)
		}
		resp = r
		return nil
	}

	retry := c.retry
	if req.NoRetry {
		retry.MaxAttempts = 1
	}
	if err := retryWithBackoff(ctx, retry, logger, attempt); err != nil {
		return nil, err
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Bool("cache_hit", resp.FromCache()).
		Dur("duration", time.Since(startTime)).
		Msg("API request completed")

	return resp, nil
}

// do performs a single HTTP attempt.
func (c *Client) do(ctx context.Context, req Request, body []byte, token *auth.Token, requestID string) (*Response, error) {
	endpoint := endpointLabel(req.Path)

	httpReq, err := c.newHTTPRequest(ctx, req, body, token, requestID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, "build request", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, apierror.FromTransport(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, apierror.FromTransport(err)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode >= 400 {
		apiErr := apierror.FromResponse(httpResp.StatusCode, httpResp.Header, data)
		if apiErr.Kind == apierror.KindAuth {
			// The server rejected the token; make the next call re-authenticate.
			c.tokens.Invalidate()
		}
		c.logger.Warn().
			Str("request_id", requestID).
			Str("endpoint", req.Path).
			Int("status", httpResp.StatusCode).
			Str("error_kind", apiErr.Kind.String()).
			Msg("API request error")
		return nil, apiErr
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		RequestID:  requestID,
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, body []byte, token *auth.Token, requestID string) (*http.Request, error) {
	target, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return nil, err
	}
	if len(req.Query) > 0 {
		query := target.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), reader)
	if err != nil {
		return nil, err
	}

	for k, vs := range c.headers {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		httpReq.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	httpReq.Header.Set("Authorization", token.AuthorizationHeader())
	httpReq.Header.Set(HeaderRequestID, requestID)

	return httpReq, nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, "encode request body", err)
	}
	return data, nil
}

var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-fA-F-]{32,36})$`)

// endpointLabel replaces id path segments so metric labels stay bounded.
func endpointLabel(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		if idSegment.MatchString(s) {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodDelete, Path: path})
}

// Limiter returns the admission limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Tokens returns the token source.
func (c *Client) Tokens() TokenSource {
	return c.tokens
}

// Logger returns the logger the client was configured with, without the
// client's component field.
func (c *Client) Logger() zerolog.Logger {
	return c.base
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections and the cache store. Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if closer, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
			closer.CloseIdleConnections()
		}
		if c.store != nil {
			c.closeErr = c.store.Close()
		}
	})
	return c.closeErr
}
