package batch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/Sternrassler/go24so/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPath is the batch endpoint relative to the API root.
const DefaultPath = "/batch"

// Prometheus metrics for batch calls.
var (
	batchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_batch_requests_total",
		Help: "Physical batch calls by outcome",
	}, []string{"outcome"})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "so24_batch_size",
		Help:    "Sub-requests per physical batch call",
		Buckets: []float64{1, 2, 5, 10, 15, 20},
	})

	batchSubrequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "so24_batch_subrequests_total",
		Help: "Sub-request outcomes (success, failure, missing)",
	}, []string{"result"})
)

// Executor performs API calls. *client.Client implements it.
type Executor interface {
	Execute(ctx context.Context, req client.Request) (*client.Response, error)
}

// Coordinator sends envelopes as single physical calls.
type Coordinator struct {
	exec    Executor
	path    string
	maxSize int
	noRetry bool
	logger  zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithPath overrides DefaultPath.
func WithPath(path string) Option {
	return func(c *Coordinator) { c.path = path }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger.With().Str("component", "batch").Logger() }
}

// WithoutRetry sends envelopes that contain writes with a single attempt.
// Read-only envelopes are still retried.
func WithoutRetry() Option {
	return func(c *Coordinator) { c.noRetry = true }
}

// NewCoordinator creates a Coordinator on top of exec.
func NewCoordinator(exec Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		exec:    exec,
		path:    DefaultPath,
		maxSize: DefaultMaxSize,
		logger:  log.With().Str("component", "batch").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxSize returns the largest envelope Send accepts.
func (c *Coordinator) MaxSize() int {
	return c.maxSize
}

// NewEnvelope creates an envelope sized for this coordinator.
func (c *Coordinator) NewEnvelope() *Envelope {
	return NewEnvelope(c.maxSize)
}

// Send performs one physical batch call for env.
//
// An empty or oversized envelope fails with KindValidation before any
// network call. An unparseable response fails with KindBatch. Other errors
// come from the client unchanged.
func (c *Coordinator) Send(ctx context.Context, env *Envelope) (*Results, error) {
	if env == nil || env.IsEmpty() {
		batchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, apierror.New(apierror.KindValidation, "batch envelope is empty")
	}
	if env.Len() > c.maxSize {
		batchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, apierror.New(apierror.KindValidation,
			fmt.Sprintf("batch envelope has %d requests (max size: %d)", env.Len(), c.maxSize))
	}

	noRetry := false
	if env.HasMutations() {
		if c.noRetry {
			noRetry = true
		} else {
			c.logger.Warn().
				Int("size", env.Len()).
				Msg("Batch with write requests may be applied twice if retried")
		}
	}

	batchSize.Observe(float64(env.Len()))
	c.logger.Debug().Int("size", env.Len()).Bool("no_retry", noRetry).Msg("Sending batch")
	if e := c.logger.Trace(); e.Enabled() {
		if payload, err := env.MarshalJSON(); err == nil {
			e.RawJSON("envelope", payload).Msg("Batch payload")
		}
	}

	resp, err := c.exec.Execute(ctx, client.Request{
		Method:  http.MethodPost,
		Path:    c.path,
		Body:    env,
		NoRetry: noRetry,
	})
	if err != nil {
		batchRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	results, err := parseResults(env.IDs(), resp.Body)
	if err != nil {
		batchRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Error().Err(err).Msg("Unparseable batch response")
		return nil, err
	}

	batchRequestsTotal.WithLabelValues("success").Inc()
	c.record(results)
	return results, nil
}

// SendAll splits requests into envelopes of MaxSize and sends them in order.
// The combined Results cover every request; the first failing call aborts.
func (c *Coordinator) SendAll(ctx context.Context, requests []Request) (*Results, error) {
	if len(requests) == 0 {
		return nil, apierror.New(apierror.KindValidation, "batch envelope is empty")
	}

	var combined *Results
	seen := make(map[string]struct{}, len(requests))
	env := c.NewEnvelope()

	flush := func() error {
		results, err := c.Send(ctx, env)
		if err != nil {
			return err
		}
		if combined == nil {
			combined = results
		} else {
			combined.merge(results)
		}
		env = c.NewEnvelope()
		return nil
	}

	for i, r := range requests {
		if r.ID == "" {
			r.ID = fmt.Sprintf("req_%d", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, apierror.New(apierror.KindValidation,
				fmt.Sprintf("duplicate batch request id %q", r.ID))
		}
		seen[r.ID] = struct{}{}

		if env.IsFull() {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		if _, err := env.Add(r.Method, r.Path, WithID(r.ID), WithBody(r.Body), WithQuery(r.Query)); err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return combined, nil
}

func (c *Coordinator) record(results *Results) {
	for _, id := range results.ids {
		res, ok := results.results[id]
		switch {
		case !ok:
			batchSubrequestsTotal.WithLabelValues("missing").Inc()
		case res.IsSuccessful():
			batchSubrequestsTotal.WithLabelValues("success").Inc()
		default:
			batchSubrequestsTotal.WithLabelValues("failure").Inc()
		}
	}

	if missing := results.Missing(); len(missing) > 0 {
		c.logger.Warn().Strs("missing", missing).Msg("Batch response is missing sub-requests")
	}
}
