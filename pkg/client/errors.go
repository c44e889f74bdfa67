package client

import (
	"context"
	"errors"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/cenkalti/backoff/v4"
)

// attemptError decides how one failed attempt feeds the retry loop.
// Retryable kinds are returned as-is; everything else, including caller
// cancellation, stops the loop.
func attemptError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	if apierror.IsRetryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

// recordError counts a classified failure.
func recordError(err error) {
	if err == nil {
		return
	}
	errorsTotal.WithLabelValues(apierror.KindOf(err).String()).Inc()
}
