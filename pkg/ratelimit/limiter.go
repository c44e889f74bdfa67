package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for admission control.
var (
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_rate_limit_admissions_total",
		Help: "Admission decisions by outcome (granted, denied, wait)",
	}, []string{"outcome"})

	tokensAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "so24_rate_limit_tokens_available",
		Help: "Tokens left in the bucket after the last admission decision",
	})

	admissionWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "so24_rate_limit_wait_seconds",
		Help:    "Time spent waiting for admission",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// Limiter is a token bucket safe for concurrent use.
//
// Refill and consumption happen atomically under one mutex, so two callers
// can never consume the same token. Acquire never blocks; the caller decides
// whether to sleep for the returned hint (see Wait).
type Limiter struct {
	mu       sync.Mutex
	bucket   *rate.Limiter
	capacity int
	period   time.Duration

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the context-aware sleep used by Wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a full bucket holding capacity tokens that refills completely
// over period.
func New(capacity int, period time.Duration, opts ...Option) (*Limiter, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be >= 1 (got %d)", capacity)
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive (got %s)", period)
	}

	l := &Limiter{
		capacity: capacity,
		period:   period,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	perSecond := float64(capacity) / period.Seconds()
	l.bucket = rate.NewLimiter(rate.Limit(perSecond), capacity)
	// Anchor the bucket at the configured clock so the first refill
	// measures elapsed time from construction.
	l.bucket.SetBurstAt(l.now(), capacity)

	return l, nil
}

// NewPerMinute creates a limiter admitting rpm requests per minute.
func NewPerMinute(rpm int, opts ...Option) (*Limiter, error) {
	return New(rpm, DefaultPeriod, opts...)
}

// Acquire tries to take one token.
//
// Returns (true, 0) if a token was consumed. Otherwise returns (false, 0) when
// blocking is false, or (false, wait) where wait is how long until one whole
// token is available.
func (l *Limiter) Acquire(blocking bool) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.bucket.AllowN(now, 1) {
		admissionsTotal.WithLabelValues("granted").Inc()
		tokensAvailable.Set(l.bucket.TokensAt(now))
		return true, 0
	}

	admissionsTotal.WithLabelValues("denied").Inc()
	level := l.bucket.TokensAt(now)
	tokensAvailable.Set(level)
	if !blocking {
		return false, 0
	}

	if level < 0 {
		level = 0
	}
	wait := time.Duration((1 - level) * float64(l.period) / float64(l.capacity))
	return false, wait
}

// Wait admits one request, sleeping at most once for the hinted wait.
//
// A blocking Acquire is followed, if denied, by a sleep and one non-blocking
// Acquire. A second denial fails with a KindRateLimit error. Cancelling ctx
// during the sleep returns ctx.Err() without touching the bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	granted, wait := l.Acquire(true)
	if granted {
		return nil
	}

	l.logger.Debug().
		Dur("wait", wait).
		Msg("Rate limit reached, waiting for admission")
	admissionsTotal.WithLabelValues("wait").Inc()
	admissionWaitSeconds.Observe(wait.Seconds())

	if err := l.sleep(ctx, wait); err != nil {
		return err
	}

	if granted, _ := l.Acquire(false); granted {
		return nil
	}

	l.logger.Warn().
		Int("capacity", l.capacity).
		Dur("period", l.period).
		Msg("Rate limit exceeded after waiting")
	return apierror.New(apierror.KindRateLimit,
		fmt.Sprintf("rate limit exceeded (rate: %d requests per %s)", l.capacity, l.period))
}

// Status returns a refilled snapshot of the bucket without consuming tokens.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.bucket.TokensAt(l.now())
	if available < 0 {
		available = 0
	}
	return Status{
		Available: available,
		Capacity:  l.capacity,
		Period:    l.period,
	}
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Period returns the refill period.
func (l *Limiter) Period() time.Duration {
	return l.period
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
