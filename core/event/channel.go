package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eduplatform/gatekeeper/core/logger"
)

const DefaultChannelBufferSize = 100

// ChannelBus is an in-process bus over a buffered channel. It publishes and
// is the event source a Processor reads from.
type ChannelBus struct {
	queue    chan []byte
	dropFull bool
	logger   *slog.Logger

	// done is closed first on Close so blocked publishers release mu before
	// the queue is closed under the write lock.
	done    chan struct{}
	closing atomic.Bool
	mu      sync.RWMutex
}

type ChannelBusOption func(*ChannelBus)

func WithBufferSize(size int) ChannelBusOption {
	return func(b *ChannelBus) {
		if size > 0 {
			b.queue = make(chan []byte, size)
		}
	}
}

// WithNonBlocking makes a full buffer fail Publish with ErrBufferFull.
// Request handlers that publish should never wait on the bus.
func WithNonBlocking() ChannelBusOption {
	return func(b *ChannelBus) { b.dropFull = true }
}

func WithChannelLogger(l *slog.Logger) ChannelBusOption {
	return func(b *ChannelBus) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewChannelBus(opts ...ChannelBusOption) *ChannelBus {
	b := &ChannelBus{logger: logger.Discard(), done: make(chan struct{})}
	for _, opt := range opts {
		opt(b)
	}
	if b.queue == nil {
		b.queue = make(chan []byte, DefaultChannelBufferSize)
	}
	return b
}

// Publish enqueues an encoded event.
func (b *ChannelBus) Publish(ctx context.Context, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closing.Load() {
		return ErrChannelBusClosed
	}

	if !b.dropFull {
		select {
		case b.queue <- data:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrChannelBusClosed
		}
	}

	select {
	case b.queue <- data:
		return nil
	default:
		b.logger.WarnContext(ctx, "event dropped, bus buffer full", logger.Size(len(data)))
		return ErrBufferFull
	}
}

func (b *ChannelBus) Events() <-chan []byte { return b.queue }

// Close stops publishing. Events already queued are still delivered.
func (b *ChannelBus) Close() error {
	if !b.closing.CompareAndSwap(false, true) {
		return ErrChannelBusClosed
	}
	close(b.done)

	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.queue)
	return nil
}
