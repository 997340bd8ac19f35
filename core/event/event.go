package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope carried by a bus. Payload is decoded into the
// handler's type on delivery.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent wraps payload. Name is the payload's type name, e.g. "Violation".
func NewEvent(payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Name:      getEventName(payload),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Meta identifies the event a handler is processing.
type Meta struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type metaKey struct{}

// MetaFromContext returns the metadata of the event being handled.
// ok is false outside of a Processor handler.
func MetaFromContext(ctx context.Context) (m Meta, ok bool) {
	m, ok = ctx.Value(metaKey{}).(Meta)
	return m, ok
}

func withMeta(ctx context.Context, e Event) context.Context {
	return context.WithValue(ctx, metaKey{}, Meta{ID: e.ID, Name: e.Name, CreatedAt: e.CreatedAt})
}
