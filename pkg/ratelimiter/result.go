package ratelimiter

import (
	"math"
	"time"
)

// Result reports the outcome of a single limiter check.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time

	allowed    bool
	retryAfter time.Duration
}

// Allowed reports whether the request was admitted.
func (r *Result) Allowed() bool {
	return r.allowed
}

// RetryAfter returns how long a rejected client should wait, in whole seconds
// and never less than one second. It is zero for admitted requests.
func (r *Result) RetryAfter() time.Duration {
	if r.allowed {
		return 0
	}
	return r.retryAfter
}

// Err returns ErrRateLimitExceeded for rejected requests and nil otherwise.
func (r *Result) Err() error {
	if r.allowed {
		return nil
	}
	return ErrRateLimitExceeded
}

// wholeSeconds rounds d up to whole seconds with a floor of one second.
func wholeSeconds(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds() - 1e-9)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
