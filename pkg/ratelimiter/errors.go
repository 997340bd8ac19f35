package ratelimiter

import (
	"errors"

	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

// Package-level error definitions for rate limiter operations.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrStoreUnavailable is returned when the counter store cannot be reached.
	// It is the same value as counterstore.ErrStoreUnavailable.
	ErrStoreUnavailable = counterstore.ErrStoreUnavailable
)
