// Package metrics provides the Prometheus registry and catalogue for the
// 24SevenOffice client. All metrics are defined in their respective packages
// (auth, ratelimit, cache, client, batch) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available
// metrics, plus the HTTP handler that exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry collected.
var Gatherer = prometheus.DefaultGatherer

// Names lists every metric family the client registers.
var Names = []string{
	// pkg/auth
	"so24_token_refreshes_total",
	"so24_token_reuse_total",
	// pkg/ratelimit
	"so24_rate_limit_admissions_total",
	"so24_rate_limit_tokens_available",
	"so24_rate_limit_wait_seconds",
	// pkg/cache
	"so24_cache_hits_total",
	"so24_cache_misses_total",
	"so24_cache_entries",
	"so24_cache_served_total",
	"so24_conditional_requests_total",
	"so24_304_responses_total",
	"so24_cache_errors_total",
	// pkg/client
	"so24_requests_total",
	"so24_request_duration_seconds",
	"so24_errors_total",
	"so24_retries_total",
	"so24_retry_backoff_seconds",
	"so24_retry_exhausted_total",
	// pkg/batch
	"so24_batch_requests_total",
	"so24_batch_size",
	"so24_batch_subrequests_total",
}

// Handler serves the metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Token Metrics (pkg/auth):
//   - so24_token_refreshes_total{outcome} (Counter): Token exchanges (success, failure)
//   - so24_token_reuse_total (Counter): Token requests answered from the cached token
//
// Rate Limit Metrics (pkg/ratelimit):
//   - so24_rate_limit_admissions_total{outcome} (Counter): granted, denied, wait
//   - so24_rate_limit_tokens_available (Gauge): Tokens left after the last decision
//   - so24_rate_limit_wait_seconds (Histogram): Time spent waiting for admission
//
// Cache Metrics (pkg/cache):
//   - so24_cache_hits_total{layer} (Counter): Store hits by layer (memory, redis)
//   - so24_cache_misses_total{layer} (Counter): Store misses by layer
//   - so24_cache_entries{layer} (Gauge): Entries held by the memory store
//   - so24_cache_served_total (Counter): Responses served without a request
//   - so24_conditional_requests_total (Counter): Revalidations sent with If-None-Match/If-Modified-Since
//   - so24_304_responses_total (Counter): 304 Not Modified responses
//   - so24_cache_errors_total{layer, operation} (Counter): Store errors
//
// Request Metrics (pkg/client):
//   - so24_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - so24_request_duration_seconds{endpoint} (Histogram): Duration including retries
//   - so24_errors_total{kind} (Counter): Errors by kind (auth, rate_limit, server, ...)
//
// Retry Metrics (pkg/client):
//   - so24_retries_total{kind} (Counter): Retry attempts by error kind
//   - so24_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - so24_retry_exhausted_total{kind} (Counter): Requests that exhausted max attempts
//
// Batch Metrics (pkg/batch):
//   - so24_batch_requests_total{outcome} (Counter): Physical batch calls
//   - so24_batch_size (Histogram): Sub-requests per batch call
//   - so24_batch_subrequests_total{result} (Counter): success, failure, missing
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(so24_cache_served_total[5m])) / sum(rate(so24_requests_total[5m]))
//
//   # Throttled Admissions
//   rate(so24_rate_limit_admissions_total{outcome="wait"}[5m])
//
//   # Request Error Rate
//   sum by (kind) (rate(so24_errors_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(so24_request_duration_seconds_bucket[5m]))
//
//   # Token Failures
//   increase(so24_token_refreshes_total{outcome="failure"}[1h]) > 0
