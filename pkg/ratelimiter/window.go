package ratelimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

// SlidingWindow admits at most limit requests in any trailing window.
type SlidingWindow struct {
	store counterstore.Store
	opts  options
}

// NewSlidingWindow creates a sliding window limiter over store.
func NewSlidingWindow(store counterstore.Store, opts ...Option) *SlidingWindow {
	return &SlidingWindow{store: store, opts: newOptions(opts)}
}

// WindowKey returns the store key holding the window record for client.
func WindowKey(client string, window time.Duration) string {
	return "rate_limit:" + client + ":" + strconv.FormatInt(int64(window/time.Second), 10)
}

// Check records one request for client if fewer than limit requests
// were admitted within the trailing window. A request that would reach
// exactly limit+1 is rejected.
func (l *SlidingWindow) Check(ctx context.Context, client string, window time.Duration, limit int) (*Result, error) {
	if limit < 1 || window < time.Second {
		return nil, fmt.Errorf("%w: window %s, limit %d", ErrInvalidConfig, window, limit)
	}

	now := l.opts.clock()
	res, err := l.store.SlideWindow(ctx, WindowKey(client, window), now, window, limit, window+l.opts.windowGrace)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Limit:     limit,
		Remaining: max(limit-res.Count, 0),
		ResetAt:   now.Add(window),
		allowed:   res.Allowed,
	}
	if !res.Oldest.IsZero() {
		out.ResetAt = res.Oldest.Add(window)
	}
	if !res.Allowed {
		out.retryAfter = wholeSeconds(out.ResetAt.Sub(now))
	}
	return out, nil
}

// Remaining returns the unused quota without recording a request.
func (l *SlidingWindow) Remaining(ctx context.Context, client string, window time.Duration, limit int) (int, error) {
	n, err := l.store.WindowCount(ctx, WindowKey(client, window), l.opts.clock(), window)
	if err != nil {
		return 0, err
	}
	return max(limit-n, 0), nil
}

// Reset clears the window record for client.
func (l *SlidingWindow) Reset(ctx context.Context, client string, window time.Duration) error {
	_, err := l.store.Delete(ctx, WindowKey(client, window))
	return err
}
