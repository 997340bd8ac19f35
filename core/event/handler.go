package event

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// HandlerFunc handles a decoded payload of type T.
type HandlerFunc[T any] func(context.Context, T) error

// Handler is what a Processor dispatches to. Handlers are keyed by EventName.
type Handler interface {
	EventName() string
	Handle(ctx context.Context, payload any) error
}

// NewHandler binds fn to an explicit event name.
func NewHandler[T any](eventName string, fn HandlerFunc[T]) Handler {
	return typed[T]{name: eventName, fn: fn}
}

// NewHandlerFunc binds fn to the name of T.
//
//	h := event.NewHandlerFunc(func(ctx context.Context, v admission.Violation) error {
//		return sink.Index(ctx, v)
//	})
func NewHandlerFunc[T any](fn HandlerFunc[T]) Handler {
	var zero T
	return typed[T]{name: getEventName(zero), fn: fn}
}

type typed[T any] struct {
	name string
	fn   HandlerFunc[T]
}

func (h typed[T]) EventName() string { return h.name }

func (h typed[T]) Handle(ctx context.Context, payload any) error {
	v, err := decodePayload[T](payload)
	if err != nil {
		return fmt.Errorf("event %s: %w", h.name, err)
	}
	return h.fn(ctx, v)
}

// getEventName returns the bare type name of v with pointers stripped.
// Two types with the same name in different packages share handlers.
func getEventName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// decodePayload accepts T itself or any JSON form of it. Payloads read back
// from the bus arrive as map[string]any.
func decodePayload[T any](payload any) (T, error) {
	var out T
	if v, ok := payload.(T); ok {
		return v, nil
	}

	var raw []byte
	switch p := payload.(type) {
	case []byte:
		raw = p
	case json.RawMessage:
		raw = p
	case map[string]any:
		b, err := json.Marshal(p)
		if err != nil {
			return out, fmt.Errorf("re-encode payload: %w", err)
		}
		raw = b
	default:
		return out, fmt.Errorf("unsupported payload %T", payload)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
