package counterstore

import (
	"context"
	"time"
)

// WindowResult is the outcome of one sliding-window update.
type WindowResult struct {
	Allowed bool
	// Count is the number of entries inside the window after the call.
	Count int
	// Oldest is the oldest retained entry; zero when the window is empty.
	Oldest time.Time
}

// BucketResult is the outcome of one token-bucket update.
type BucketResult struct {
	Allowed bool
	// Tokens left after the call (refilled, and decremented when allowed).
	Tokens float64
}

// Store is the contract shared by rate limiting and caching.
type Store interface {
	// SlideWindow drops entries at or before now-window, rejects when the
	// remaining count is >= limit, otherwise records now and refreshes ttl.
	SlideWindow(ctx context.Context, key string, now time.Time, window time.Duration, limit int, ttl time.Duration) (WindowResult, error)
	// WindowCount returns the number of entries newer than now-window without modifying state.
	WindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	// TakeToken refills the bucket for the elapsed time and consumes one token if available.
	// The updated state is persisted on both paths.
	TakeToken(ctx context.Context, key string, now time.Time, capacity, refillRate float64, ttl time.Duration) (BucketResult, error)
	// Incr atomically increments a counter, setting ttl when the key is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)
	// Scan lists keys matching a glob pattern (* and ?).
	Scan(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// InfoProvider is implemented by stores that can describe the backing server.
type InfoProvider interface {
	Info(ctx context.Context) (map[string]string, error)
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ Store        = (*RedisStore)(nil)
	_ InfoProvider = (*MemoryStore)(nil)
	_ InfoProvider = (*RedisStore)(nil)
)
