package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eduplatform/gatekeeper/core/logger"
)

type eventSource interface {
	Events() <-chan []byte
}

// Processor reads encoded events from a source and fans each one out to the
// handlers registered for its name. Every handler call runs in its own
// goroutine with panic recovery, so one bad handler cannot stall the others.
type Processor struct {
	handlers        map[string][]Handler
	source          eventSource
	sem             chan struct{}
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu       sync.RWMutex
	stop     context.CancelFunc
	inflight sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int32
	lastSeen  atomic.Int64
}

// ProcessorStats is a point-in-time view of a Processor.
type ProcessorStats struct {
	EventsProcessed int64
	EventsFailed    int64
	ActiveEvents    int32
	IsRunning       bool
	LastActivityAt  time.Time
}

// NewProcessor returns an idle processor.
//
//	p := event.NewProcessor(
//		event.WithEventSource(bus),
//		event.WithHandler(sink.Handler(), warmer.SessionRecordedHandler()),
//	)
//	g.Go(p.Run(ctx))
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		handlers:        make(map[string][]Handler),
		shutdownTimeout: 30 * time.Second,
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stop != nil
}

// Start consumes events until ctx is done or the source closes. A closed
// source drains in-flight handlers and returns nil.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.stop != nil:
		p.mu.Unlock()
		return ErrProcessorAlreadyStarted
	case p.source == nil:
		p.mu.Unlock()
		return ErrEventSourceNil
	case len(p.handlers) == 0:
		p.mu.Unlock()
		return ErrNoHandlers
	}
	ctx, p.stop = context.WithCancel(ctx)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "event processor started", logger.Count("event_names", len(p.handlers)))
	return p.consume(ctx, p.source.Events())
}

func (p *Processor) consume(ctx context.Context, events <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-events:
			if !ok {
				p.logger.InfoContext(ctx, "event source closed, draining handlers")
				p.inflight.Wait()
				p.mu.Lock()
				if p.stop != nil {
					p.stop()
					p.stop = nil
				}
				p.mu.Unlock()
				return nil
			}
			p.receive(ctx, data)
		}
	}
}

func (p *Processor) receive(ctx context.Context, data []byte) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		p.failed.Add(1)
		p.logger.ErrorContext(ctx, "dropping undecodable event", logger.Error(err))
		return
	}

	p.mu.RLock()
	handlers := p.handlers[evt.Name]
	p.mu.RUnlock()
	if len(handlers) == 0 {
		p.logger.DebugContext(ctx, "no handlers for event", logger.Event(evt.Name))
		return
	}

	for _, h := range handlers {
		if !p.acquire(ctx) {
			return
		}
		p.inflight.Add(1)
		p.active.Add(1)
		go p.invoke(ctx, h, evt)
	}
}

func (p *Processor) acquire(ctx context.Context) bool {
	if p.sem == nil {
		return true
	}
	select {
	case p.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Processor) invoke(ctx context.Context, h Handler, evt Event) {
	start := time.Now()
	ctx = withMeta(ctx, evt)
	log := p.logger.With(logger.ID("event_id", evt.ID), logger.Event(evt.Name))

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.ErrorContext(ctx, "event handler panicked", slog.Any("panic", r))
		}
		if p.sem != nil {
			<-p.sem
		}
		p.lastSeen.Store(time.Now().Unix())
		p.active.Add(-1)
		p.inflight.Done()
	}()

	if err := h.Handle(ctx, evt.Payload); err != nil {
		p.failed.Add(1)
		log.ErrorContext(ctx, "event handler failed", logger.Elapsed(start), logger.Error(err))
		return
	}
	p.processed.Add(1)
	log.DebugContext(ctx, "event handled", logger.Elapsed(start))
}

// Stop cancels consumption and waits up to the shutdown timeout for
// in-flight handlers. Handlers still running after that are abandoned.
func (p *Processor) Stop() error {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	if stop == nil {
		return ErrProcessorNotStarted
	}
	stop()

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.logger.Info("event processor stopped")
		return nil
	case <-time.After(p.shutdownTimeout):
		p.logger.Warn("event processor abandoned running handlers", logger.Duration(p.shutdownTimeout))
		return fmt.Errorf("event: handlers still running after %s", p.shutdownTimeout)
	}
}

// Run adapts the processor to errgroup. Cancelling ctx stops it gracefully.
func (p *Processor) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- p.Start(ctx) }()

		select {
		case <-ctx.Done():
			_ = p.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (p *Processor) Stats() ProcessorStats {
	s := ProcessorStats{
		EventsProcessed: p.processed.Load(),
		EventsFailed:    p.failed.Load(),
		ActiveEvents:    p.active.Load(),
		IsRunning:       p.running(),
	}
	if ts := p.lastSeen.Load(); ts > 0 {
		s.LastActivityAt = time.Unix(ts, 0)
	}
	return s
}

// Healthcheck reports ErrProcessorNotRunning unless the processor is consuming events.
func (p *Processor) Healthcheck(ctx context.Context) error {
	if !p.running() {
		return ErrProcessorNotRunning
	}
	return nil
}
