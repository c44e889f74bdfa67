// Package ratelimit implements token-bucket admission control for outbound
// API requests. The bucket refills continuously at capacity/period tokens per
// second and each admitted request consumes one token.
package ratelimit

import (
	"encoding/json"
	"time"
)

// DefaultPeriod is the refill period used for requests-per-minute limits.
const DefaultPeriod = time.Minute

// Status is a snapshot of the bucket.
type Status struct {
	// Available is the fractional number of tokens in the bucket.
	Available float64 `json:"available_tokens"`

	// Capacity is the maximum number of tokens (requests per period).
	Capacity int `json:"max_rate"`

	// Period is the time it takes to refill an empty bucket. It is encoded
	// as period_seconds.
	Period time.Duration `json:"-"`
}

// MarshalJSON encodes the period in seconds.
func (s Status) MarshalJSON() ([]byte, error) {
	type status Status
	return json.Marshal(struct {
		status
		PeriodSeconds float64 `json:"period_seconds"`
	}{status(s), s.Period.Seconds()})
}

// Full returns true if the bucket is at capacity.
func (s Status) Full() bool {
	return s.Available >= float64(s.Capacity)
}

// TimeUntilAvailable returns how long until one whole token is available.
// Returns 0 if a token is available now.
func (s Status) TimeUntilAvailable() time.Duration {
	if s.Available >= 1 || s.Capacity <= 0 {
		return 0
	}
	return time.Duration((1 - s.Available) * float64(s.Period) / float64(s.Capacity))
}
