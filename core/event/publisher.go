package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eduplatform/gatekeeper/core/logger"
)

type eventBus interface {
	Publish(ctx context.Context, data []byte) error
}

// Publisher wraps payloads into Events and sends them to a bus.
// It has no lifecycle of its own.
type Publisher struct {
	bus    eventBus
	logger *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger for the publisher.
func WithPublisherLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPublisher creates a new event publisher.
func NewPublisher(bus eventBus, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		bus:    bus,
		logger: logger.Discard(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish sends payload as a new Event. The event name is the payload type name.
func (p *Publisher) Publish(ctx context.Context, payload any) error {
	evt := NewEvent(payload)

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.Name, err)
	}

	if err := p.bus.Publish(ctx, data); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event",
			logger.Event(evt.Name),
			logger.ID("event_id", evt.ID),
			logger.Error(err))
		return fmt.Errorf("failed to publish event %s: %w", evt.Name, err)
	}

	p.logger.DebugContext(ctx, "event published",
		logger.Event(evt.Name),
		logger.ID("event_id", evt.ID))
	return nil
}
