// Package cache provides transport-level response caching with ETag and
// Last-Modified revalidation over pluggable stores (in-memory LRU or Redis).
package cache

import (
	"net/http"
	"time"
)

// Entry represents a cached API response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// Expires is when the entry stops being served without revalidation
	Expires time.Time `json:"expires"`

	// RetainUntil is when the store may drop the entry. Between Expires and
	// RetainUntil the entry is only used for conditional requests.
	RetainUntil time.Time `json:"retain_until"`

	// LastModified is when the data was last modified (Last-Modified header)
	LastModified time.Time `json:"last_modified"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry must be revalidated before use.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// IsRetained returns true while the store should keep the entry.
// Entries without RetainUntil are kept until Expires.
func (e *Entry) IsRetained() bool {
	until := e.RetainUntil
	if until.IsZero() {
		until = e.Expires
	}
	return time.Now().Before(until)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// RetentionTTL returns how long a store should keep the entry.
// Returns 0 if the entry should not be stored.
func (e *Entry) RetentionTTL() time.Duration {
	until := e.RetainUntil
	if until.IsZero() {
		until = e.Expires
	}
	ttl := time.Until(until)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Data != nil {
		c.Data = append([]byte(nil), e.Data...)
	}
	if e.Headers != nil {
		c.Headers = e.Headers.Clone()
	}
	return &c
}
