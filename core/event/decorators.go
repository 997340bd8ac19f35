package event

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy controls WithRetry. Delays double after every failed attempt
// up to MaxDelay.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type wrapped struct {
	name   string
	handle func(ctx context.Context, payload any) error
}

func (w wrapped) EventName() string { return w.name }

func (w wrapped) Handle(ctx context.Context, payload any) error { return w.handle(ctx, payload) }

// WithRetry re-runs h until it succeeds, the retries are exhausted or ctx
// is done.
//
//	h := event.WithRetry(sink.Handler(), event.RetryPolicy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second})
func WithRetry(h Handler, p RetryPolicy) Handler {
	return wrapped{
		name: h.EventName(),
		handle: func(ctx context.Context, payload any) error {
			delay := p.InitialDelay
			err := h.Handle(ctx, payload)
			for attempt := 1; err != nil && attempt <= p.MaxRetries; attempt++ {
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
				if delay *= 2; p.MaxDelay > 0 && delay > p.MaxDelay {
					delay = p.MaxDelay
				}
				err = h.Handle(ctx, payload)
			}
			if err != nil && p.MaxRetries > 0 {
				return fmt.Errorf("event %s: gave up after %d retries: %w", h.EventName(), p.MaxRetries, err)
			}
			return err
		},
	}
}

// WithTimeout bounds every call of h by d.
func WithTimeout(h Handler, d time.Duration) Handler {
	return wrapped{
		name: h.EventName(),
		handle: func(ctx context.Context, payload any) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return h.Handle(ctx, payload)
		},
	}
}
