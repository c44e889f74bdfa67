package client

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/cenkalti/backoff/v4"
)

func TestAttemptError(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name          string
		ctx           context.Context
		err           error
		wantPermanent bool
	}{
		{"nil", context.Background(), nil, false},
		{"server error retries", context.Background(), apierror.New(apierror.KindServer, "x"), false},
		{"connection error retries", context.Background(), apierror.Wrap(apierror.KindConnection, "x", io.EOF), false},
		{"timeout retries", context.Background(), apierror.New(apierror.KindTimeout, "x"), false},
		{"validation stops", context.Background(), apierror.New(apierror.KindValidation, "x"), true},
		{"auth stops", context.Background(), apierror.New(apierror.KindAuth, "x"), true},
		{"rate limit stops", context.Background(), apierror.New(apierror.KindRateLimit, "x"), true},
		{"unclassified stops", context.Background(), io.EOF, true},
		{"cancelled context stops", cancelled, apierror.New(apierror.KindServer, "x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := attemptError(tt.ctx, tt.err)
			if tt.err == nil {
				if got != nil {
					t.Errorf("attemptError(nil) = %v", got)
				}
				return
			}

			var permanent *backoff.PermanentError
			if isPermanent := errors.As(got, &permanent); isPermanent != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v (err %v)", isPermanent, tt.wantPermanent, got)
			}
		})
	}
}

func TestAttemptError_CancelledReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := attemptError(ctx, apierror.New(apierror.KindConnection, "x"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("attemptError() = %v, want context.Canceled", err)
	}
}
