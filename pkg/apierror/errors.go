// Package apierror defines the error taxonomy shared by the request pipeline.
package apierror

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is any failure that does not fit another kind.
	KindUnknown Kind = iota

	// KindAuth is a 401 or a failed token exchange.
	KindAuth

	// KindRateLimit is a 429 or a local admission denial.
	KindRateLimit

	// KindNotFound is a 404.
	KindNotFound

	// KindValidation is a 400, an undecodable response, or a bad local argument.
	KindValidation

	// KindServer is a 5xx.
	KindServer

	// KindClient is any other 4xx.
	KindClient

	// KindConnection is a transport-level connect failure.
	KindConnection

	// KindTimeout is a transport-level timeout.
	KindTimeout

	// KindBatch is a malformed batch response.
	KindBatch
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindAuth:       "auth",
	KindRateLimit:  "rate_limit",
	KindNotFound:   "not_found",
	KindValidation: "validation",
	KindServer:     "server",
	KindClient:     "client",
	KindConnection: "connection",
	KindTimeout:    "timeout",
	KindBatch:      "batch",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether failures of this kind are plausibly transient.
func (k Kind) Retryable() bool {
	switch k {
	case KindServer, KindConnection, KindTimeout:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrAuth       = errors.New("authentication failed")
	ErrRateLimit  = errors.New("rate limit exceeded")
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
	ErrServer     = errors.New("server error")
	ErrClient     = errors.New("client error")
	ErrConnection = errors.New("connection failed")
	ErrTimeout    = errors.New("request timed out")
	ErrBatch      = errors.New("batch request failed")
)

var kindSentinels = map[Kind]error{
	KindAuth:       ErrAuth,
	KindRateLimit:  ErrRateLimit,
	KindNotFound:   ErrNotFound,
	KindValidation: ErrValidation,
	KindServer:     ErrServer,
	KindClient:     ErrClient,
	KindConnection: ErrConnection,
	KindTimeout:    ErrTimeout,
	KindBatch:      ErrBatch,
}

// Error is a classified API failure.
type Error struct {
	Kind    Kind
	Message string

	// StatusCode is 0 when no response was received.
	StatusCode int

	// Body is the raw error response body, if any.
	Body []byte

	// Data is the parsed JSON error body, if it was an object.
	Data map[string]any

	// RetryAfter is set from the Retry-After header on 429 responses.
	RetryAfter time.Duration

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts *Error.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if apiErr, ok := As(err); ok {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable API failure.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// IsAdmissionDenied reports whether err is the local rate limiter refusing
// a request, as opposed to a 429 from the server.
func IsAdmissionDenied(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Kind == KindRateLimit && apiErr.StatusCode == 0
}
