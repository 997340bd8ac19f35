package admission

import (
	"net/http"
	"strconv"
	"time"
)

// Reason identifies the check that rejected a request.
type Reason string

const (
	ReasonMinute   Reason = "minute_exceeded"
	ReasonHour     Reason = "hour_exceeded"
	ReasonDay      Reason = "day_exceeded"
	ReasonBurst    Reason = "burst_exceeded"
	ReasonEndpoint Reason = "endpoint_exceeded"
)

// LimitType returns the short limit name reported in violation records.
func (r Reason) LimitType() string {
	switch r {
	case ReasonMinute:
		return "minute"
	case ReasonHour:
		return "hour"
	case ReasonDay:
		return "day"
	case ReasonBurst:
		return "burst"
	case ReasonEndpoint:
		return "endpoint"
	default:
		return ""
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed  bool
	Bypassed bool
	Identity Identity

	// Set on rejection only.
	Reason     Reason
	Message    string
	RetryAfter time.Duration

	// Headers to attach to the response, for both outcomes.
	Headers   http.Header
	Timestamp time.Time
}

// RejectionBody is the JSON body of a 429 response.
type RejectionBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
	Timestamp  string `json:"timestamp"`
}

// StatusCode returns 429 for rejections and 200 otherwise.
func (d Decision) StatusCode() int {
	if d.Allowed {
		return http.StatusOK
	}
	return http.StatusTooManyRequests
}

// RetryAfterSeconds returns the retry delay in whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int(d.RetryAfter / time.Second)
}

// Body returns the rejection payload.
func (d Decision) Body() RejectionBody {
	return RejectionBody{
		Error:      "Rate limit exceeded",
		Message:    d.Message,
		RetryAfter: d.RetryAfterSeconds(),
		Timestamp:  d.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Err returns ErrRejected for rejected decisions.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRejected
}

func admittedHeaders(base TierLimits, remainingMinute int, now time.Time) http.Header {
	h := make(http.Header, 5)
	h.Set("X-RateLimit-Limit-Minute", strconv.Itoa(base.Minute))
	h.Set("X-RateLimit-Limit-Hour", strconv.Itoa(base.Hour))
	h.Set("X-RateLimit-Limit-Day", strconv.Itoa(base.Day))
	h.Set("X-RateLimit-Remaining-Minute", strconv.Itoa(max(remainingMinute, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(time.Minute).Unix(), 10))
	return h
}

func rejectedHeaders(retryAfter time.Duration) http.Header {
	h := make(http.Header, 2)
	h.Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
	h.Set("X-RateLimit-Exceeded", "true")
	return h
}
