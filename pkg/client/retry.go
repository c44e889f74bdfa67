package client

import (
	"context"
	"time"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "so24_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter randomizes each wait by ±Jitter (0 disables).
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration: three attempts
// waiting 500ms then 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// withDefaults fills zero fields from DefaultRetryConfig.
func (rc RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = def.MaxAttempts
	}
	if rc.InitialBackoff <= 0 {
		rc.InitialBackoff = def.InitialBackoff
	}
	if rc.MaxBackoff <= 0 {
		rc.MaxBackoff = def.MaxBackoff
	}
	if rc.BackoffMultiplier < 1 {
		rc.BackoffMultiplier = def.BackoffMultiplier
	}
	return rc
}

// newBackOff builds the backoff schedule for one call.
func (rc RetryConfig) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = rc.InitialBackoff
	exp.MaxInterval = rc.MaxBackoff
	exp.Multiplier = rc.BackoffMultiplier
	exp.RandomizationFactor = rc.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(rc.MaxAttempts-1)), ctx)
}

// retryWithBackoff runs fn until it succeeds, returns a permanent error, or
// the attempts are used up. The last error is returned unchanged; caller
// cancellation surfaces as the context error.
func retryWithBackoff(ctx context.Context, rc RetryConfig, logger zerolog.Logger, fn func() error) error {
	rc = rc.withDefaults()

	attempt := 0
	operation := func() error {
		attempt++
		return fn()
	}

	notify := func(err error, wait time.Duration) {
		kind := apierror.KindOf(err).String()
		retriesTotal.WithLabelValues(kind).Inc()
		retryBackoffSeconds.WithLabelValues(kind).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_kind", kind).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")
	}

	err := backoff.RetryNotify(operation, rc.newBackOff(ctx), notify)
	switch {
	case err == nil:
		if attempt > 1 {
			logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
		}
		return nil
	case ctx.Err() != nil:
		logger.Warn().Int("attempt", attempt).Msg("Context cancelled during retry")
		return err
	case apierror.IsRetryable(err) && attempt >= rc.MaxAttempts:
		kind := apierror.KindOf(err).String()
		retryExhaustedTotal.WithLabelValues(kind).Inc()
		logger.Error().
			Err(err).
			Str("error_kind", kind).
			Int("max_attempts", rc.MaxAttempts).
			Msg("Retry attempts exhausted")
	}
	return err
}
