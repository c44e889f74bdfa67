package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FromResponse classifies a response with status >= 400.
// The body must already be read by the caller.
func FromResponse(statusCode int, header http.Header, body []byte) *Error {
	e := &Error{
		StatusCode: statusCode,
		Body:       body,
		Kind:       KindForStatus(statusCode),
	}

	var data map[string]any
	if len(body) > 0 && json.Unmarshal(body, &data) == nil {
		e.Data = data
		if msg, ok := data["message"].(string); ok {
			e.Message = msg
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("HTTP Error %d: %s", statusCode, http.StatusText(statusCode))
	}

	if statusCode == http.StatusTooManyRequests {
		e.RetryAfter = parseRetryAfter(header)
	}
	return e
}

// KindForStatus maps an HTTP status code onto the taxonomy.
func KindForStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusUnauthorized:
		return KindAuth
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimit
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusBadRequest:
		return KindValidation
	case statusCode >= 500 && statusCode < 600:
		return KindServer
	case statusCode >= 400 && statusCode < 500:
		return KindClient
	default:
		return KindUnknown
	}
}

// FromTransport classifies an error returned by http.Client.Do.
// Timeouts become KindTimeout, everything else KindConnection.
func FromTransport(err error) *Error {
	if isTimeout(err) {
		return Wrap(KindTimeout, "request timed out", err)
	}
	return Wrap(KindConnection, "connection error", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseRetryAfter reads Retry-After as delay seconds; HTTP dates are accepted too.
func parseRetryAfter(header http.Header) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
