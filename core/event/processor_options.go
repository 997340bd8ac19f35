package event

import (
	"log/slog"
	"time"
)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithHandler adds handlers. Several handlers may share an event name; each
// receives every event of that name.
func WithHandler(handlers ...Handler) ProcessorOption {
	return func(p *Processor) {
		for _, h := range handlers {
			p.handlers[h.EventName()] = append(p.handlers[h.EventName()], h)
		}
	}
}

// WithEventSource sets the bus the processor consumes. Required.
func WithEventSource(source eventSource) ProcessorOption {
	return func(p *Processor) {
		if source != nil {
			p.source = source
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight handlers.
func WithShutdownTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.shutdownTimeout = d
		}
	}
}

// WithMaxConcurrentHandlers caps in-flight handler calls across all events.
func WithMaxConcurrentHandlers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}
