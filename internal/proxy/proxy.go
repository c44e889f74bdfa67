// Package proxy exposes an authenticated, rate-limited and cached view of the
// 24SevenOffice API over plain local HTTP.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/Sternrassler/go24so/pkg/cache"
	"github.com/Sternrassler/go24so/pkg/client"
	"github.com/Sternrassler/go24so/pkg/metrics"
)

// APIPrefix is stripped before a request is forwarded.
const APIPrefix = "/api"

// maxBodySize bounds forwarded request bodies.
const maxBodySize = 10 << 20

// Executor performs API calls. *client.Client implements it.
type Executor interface {
	Execute(ctx context.Context, req client.Request) (*client.Response, error)
}

// Config configures the proxy handler.
type Config struct {
	// Timeout bounds each forwarded call, retries included.
	Timeout time.Duration

	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready func(ctx context.Context) error

	Logger *zerolog.Logger
}

// forwardedHeaders are copied from API responses to proxy responses.
var forwardedHeaders = []string{
	"Content-Type",
	"ETag",
	"Last-Modified",
	"Cache-Control",
	cache.HeaderCache,
	client.HeaderRequestID,
}

// New returns the proxy router.
func New(exec Executor, cfg Config) http.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := log.With().Str("component", "proxy").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "proxy").Logger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg.Ready))
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc(APIPrefix+"/*", apiHandler(exec, cfg.Timeout, logger))

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// apiHandler forwards /api/<path> to <base url>/<path>.
func apiHandler(exec Executor, timeout time.Duration, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := "/" + chi.URLParam(r, "*")

		var body any
		if r.Body != nil {
			data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				writeError(w, http.StatusBadRequest, apierror.KindValidation, "read request body: "+err.Error())
				return
			}
			if len(data) > 0 {
				body = json.RawMessage(data)
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp, err := exec.Execute(ctx, client.Request{
			Method: r.Method,
			Path:   path,
			Query:  r.URL.Query(),
			Body:   body,
		})
		if err != nil {
			logger.Warn().Err(err).Str("method", r.Method).Str("endpoint", path).Msg("Forwarded request failed")
			writeAPIError(w, err)
			return
		}

		for _, key := range forwardedHeaders {
			if v := resp.Header.Get(key); v != "" {
				w.Header().Set(key, v)
			}
		}
		if resp.RequestID != "" {
			w.Header().Set(client.HeaderRequestID, resp.RequestID)
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := w.Write(resp.Body); err != nil {
			logger.Debug().Err(err).Msg("Failed to write response")
		}
	}
}

// writeAPIError passes API error responses through and maps local failures
// to gateway statuses.
func writeAPIError(w http.ResponseWriter, err error) {
	apiErr, ok := apierror.As(err)
	switch {
	case ok && apiErr.StatusCode != 0 && len(apiErr.Body) > 0:
		w.Header().Set("Content-Type", "application/json")
		if apiErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(apiErr.RetryAfter.Seconds())))
		}
		w.WriteHeader(apiErr.StatusCode)
		_, _ = w.Write(apiErr.Body)
	case ok:
		writeError(w, statusFor(apiErr), apiErr.Kind, apiErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, apierror.KindTimeout, err.Error())
	default:
		writeError(w, http.StatusBadGateway, apierror.KindUnknown, err.Error())
	}
}

func statusFor(err *apierror.Error) int {
	if err.StatusCode != 0 {
		return err.StatusCode
	}
	switch err.Kind {
	case apierror.KindRateLimit:
		return http.StatusTooManyRequests
	case apierror.KindValidation:
		return http.StatusBadRequest
	case apierror.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, kind apierror.Kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Kind: kind.String()})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Proxy request")
		})
	}
}
