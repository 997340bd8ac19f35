package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Helpers that take an error, identifier or key return the zero slog.Attr
// for empty input. slog drops zero attrs, so callers never need nil checks.

// Error logs err under "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil entries of errs under "errors", keyed by their
// position in errs.
func Errors(errs ...error) slog.Attr {
	var as []slog.Attr
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }

// Elapsed is the time since start.
func Elapsed(start time.Time) slog.Attr { return slog.Duration("elapsed", time.Since(start)) }

// ID logs an identifier under a caller-chosen key, e.g. ID("violation_id", v.ID).
func ID(key string, value any) slog.Attr {
	if value == nil {
		return slog.Attr{}
	}
	return slog.Any(key, value)
}

// Key is ID for values that are not identifiers.
func Key(key string, value any) slog.Attr { return ID(key, value) }

func Count(key string, n int) slog.Attr { return slog.Int(key, n) }

// HTTP

func Method(method string) slog.Attr { return slog.String("method", method) }

func Path(path string) slog.Attr { return slog.String("path", path) }

func StatusCode(code int) slog.Attr { return slog.Int("status_code", code) }

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Component, Event and Action tag which part of the service logged and why.

func Component(name string) slog.Attr { return slog.String("component", name) }

func Event(name string) slog.Attr { return slog.String("event", name) }

func Action(action string) slog.Attr { return slog.String("action", action) }

// Admission

// ClientKey is the resolved caller identity, "user:<id>" or "ip:<addr>".
func ClientKey(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("client_key", key)
}

func Tier(tier string) slog.Attr { return slog.String("tier", tier) }

// LimitType names the check that decided: minute, hour, burst or endpoint.
func LimitType(t string) slog.Attr {
	if t == "" {
		return slog.Attr{}
	}
	return slog.String("limit_type", t)
}

func RetryAfter(d time.Duration) slog.Attr { return slog.Duration("retry_after", d) }

func LoadScore(score float64) slog.Attr { return slog.Float64("load_score", score) }

// Cache

func CacheKey(key string) slog.Attr { return slog.String("cache_key", key) }

func CacheLevel(level string) slog.Attr { return slog.String("cache_level", level) }

// Size is a payload size in bytes.
func Size(n int) slog.Attr { return slog.Int("size", n) }
