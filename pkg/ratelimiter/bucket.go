package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

// Config holds token bucket parameters.
type Config struct {
	Capacity   float64       `env:"TOKEN_BUCKET_CAPACITY" envDefault:"10"`
	RefillRate float64       `env:"TOKEN_BUCKET_REFILL_RATE" envDefault:"0.1"` // tokens per second
	TTL        time.Duration `env:"TOKEN_BUCKET_TTL" envDefault:"1h"`
}

// DefaultConfig returns a bucket of 10 tokens refilled at one token every ten seconds.
func DefaultConfig() Config {
	return Config{Capacity: 10, RefillRate: 0.1, TTL: time.Hour}
}

// Validate checks that the configuration can describe a bucket.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1, got %v", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %v", ErrInvalidConfig, c.RefillRate)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, c.TTL)
	}
	return nil
}

// Bucket is a continuously refilled token bucket guarding against short bursts.
type Bucket struct {
	store  counterstore.Store
	config Config
	opts   options
}

// NewBucket creates a token bucket limiter over store.
func NewBucket(store counterstore.Store, config Config, opts ...Option) (*Bucket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, config: config, opts: newOptions(opts)}, nil
}

// BucketKey returns the store key holding the bucket state for client.
func BucketKey(client string) string {
	return "token_bucket:" + client
}

// Config returns the bucket parameters.
func (b *Bucket) Config() Config {
	return b.config
}

// Check consumes one token for client if one is available.
func (b *Bucket) Check(ctx context.Context, client string) (*Result, error) {
	now := b.opts.clock()
	res, err := b.store.TakeToken(ctx, BucketKey(client), now, b.config.Capacity, b.config.RefillRate, b.config.TTL)
	if err != nil {
		return nil, err
	}

	tokens := max(res.Tokens, 0)
	untilFull := time.Duration((b.config.Capacity - tokens) / b.config.RefillRate * float64(time.Second))
	out := &Result{
		Limit:     int(b.config.Capacity),
		Remaining: int(math.Floor(tokens)),
		ResetAt:   now.Add(untilFull),
		allowed:   res.Allowed,
	}
	if !res.Allowed {
		out.retryAfter = wholeSeconds(time.Duration((1 - tokens) / b.config.RefillRate * float64(time.Second)))
	}
	return out, nil
}

// Reset refills the bucket for client by dropping its state.
func (b *Bucket) Reset(ctx context.Context, client string) error {
	_, err := b.store.Delete(ctx, BucketKey(client))
	return err
}
