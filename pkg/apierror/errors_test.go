package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestKind_Retryable(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected bool
	}{
		{KindServer, true},
		{KindConnection, true},
		{KindTimeout, true},
		{KindAuth, false},
		{KindRateLimit, false},
		{KindNotFound, false},
		{KindValidation, false},
		{KindClient, false},
		{KindBatch, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Retryable(); got != tt.expected {
				t.Errorf("%s.Retryable() = %v, want %v", tt.kind, got, tt.expected)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "status and cause",
			err: &Error{
				Kind:       KindServer,
				Message:    "internal server error",
				StatusCode: 500,
				Err:        errors.New("connection reset"),
			},
			expected: "internal server error (status 500): connection reset",
		},
		{
			name:     "no status",
			err:      &Error{Kind: KindConnection, Message: "connection error"},
			expected: "connection error",
		},
		{
			name: "retry after",
			err: &Error{
				Kind:       KindRateLimit,
				Message:    "slow down",
				StatusCode: 429,
				RetryAfter: 30 * time.Second,
			},
			expected: "slow down (status 429) (retry after 30s)",
		},
		{
			name:     "empty message falls back to kind",
			err:      &Error{Kind: KindBatch},
			expected: "batch error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_IsAndAs(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("execute: %w", Wrap(KindConnection, "connection error", cause))

	if !errors.Is(err, ErrConnection) {
		t.Error("errors.Is(err, ErrConnection) = false, want true")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = true, want false")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if KindOf(err) != KindConnection {
		t.Errorf("KindOf() = %s, want connection", KindOf(err))
	}
	if !IsRetryable(err) {
		t.Error("connection errors should be retryable")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain errors should be KindUnknown")
	}
}

func TestIsAdmissionDenied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"local denial", New(KindRateLimit, "rate limit exceeded"), true},
		{"wrapped local denial", fmt.Errorf("page 3: %w", New(KindRateLimit, "rate limit exceeded")), true},
		{"server 429", &Error{Kind: KindRateLimit, StatusCode: 429}, false},
		{"other kind", New(KindServer, "boom"), false},
		{"plain error", errors.New("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAdmissionDenied(tt.err); got != tt.want {
				t.Errorf("IsAdmissionDenied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		header      http.Header
		body        string
		wantKind    Kind
		wantMessage string
		wantRetry   time.Duration
	}{
		{
			name:        "401 with message",
			status:      401,
			body:        `{"message": "token expired"}`,
			wantKind:    KindAuth,
			wantMessage: "token expired",
		},
		{
			name:        "429 with retry-after",
			status:      429,
			header:      http.Header{"Retry-After": []string{"12"}},
			body:        `{"message": "too many"}`,
			wantKind:    KindRateLimit,
			wantMessage: "too many",
			wantRetry:   12 * time.Second,
		},
		{
			name:        "429 with garbage retry-after",
			status:      429,
			header:      http.Header{"Retry-After": []string{"soon"}},
			wantKind:    KindRateLimit,
			wantMessage: "HTTP Error 429: Too Many Requests",
		},
		{
			name:        "404 without body",
			status:      404,
			wantKind:    KindNotFound,
			wantMessage: "HTTP Error 404: Not Found",
		},
		{
			name:        "400 with non-json body",
			status:      400,
			body:        "bad input",
			wantKind:    KindValidation,
			wantMessage: "HTTP Error 400: Bad Request",
		},
		{
			name:        "503",
			status:      503,
			body:        `{"message": "maintenance"}`,
			wantKind:    KindServer,
			wantMessage: "maintenance",
		},
		{
			name:        "409 is generic client error",
			status:      409,
			wantKind:    KindClient,
			wantMessage: "HTTP Error 409: Conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			e := FromResponse(tt.status, header, []byte(tt.body))

			if e.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", e.Kind, tt.wantKind)
			}
			if e.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", e.Message, tt.wantMessage)
			}
			if e.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", e.StatusCode, tt.status)
			}
			if e.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %v, want %v", e.RetryAfter, tt.wantRetry)
			}
			if string(e.Body) != tt.body {
				t.Errorf("Body = %q, want %q", e.Body, tt.body)
			}
		})
	}
}

func TestFromResponse_ParsesData(t *testing.T) {
	e := FromResponse(400, http.Header{}, []byte(`{"message": "invalid", "field": "name"}`))
	if e.Data == nil {
		t.Fatal("Data should be parsed")
	}
	if e.Data["field"] != "name" {
		t.Errorf("Data[field] = %v, want name", e.Data["field"])
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFromTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, KindTimeout},
		{"refused", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromTransport(tt.err).Kind; got != tt.want {
				t.Errorf("FromTransport() kind = %s, want %s", got, tt.want)
			}
		})
	}
}
