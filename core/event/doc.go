// Package event provides in-process domain events with type-safe handlers.
//
// Events carry signals between otherwise independent parts of the service: the
// admission layer publishes a Violation whenever a client is rejected, and the
// cache warmer reacts to SessionRecorded by invalidating and re-warming a user's
// cached aggregates. Handlers run on the processor's goroutines, so slow or
// failing handlers never hold up the request that published the event.
//
// # Core Components
//
// Event wraps a payload with an ID, a name derived from the payload type, and a
// creation time.
//
// Handler processes events of one name. NewHandlerFunc infers the name from the
// type parameter and decodes the payload into it.
//
// Publisher encodes payloads as JSON events and sends them to a bus.
//
// ChannelBus is an in-memory bus; it is both the publishing side and the event
// source of a Processor.
//
// Processor pulls events from the source and runs every registered handler in
// its own goroutine with panic recovery. It follows the Start/Stop/Run lifecycle
// used across the service.
//
// # Usage
//
//	bus := event.NewChannelBus(event.WithBufferSize(256), event.WithNonBlocking())
//	publisher := event.NewPublisher(bus, event.WithPublisherLogger(log))
//
//	processor := event.NewProcessor(
//		event.WithEventSource(bus),
//		event.WithHandler(event.NewHandlerFunc(func(ctx context.Context, v admission.Violation) error {
//			return sink.Index(ctx, v)
//		})),
//		event.WithProcessorLogger(log),
//	)
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(processor.Run(ctx))
//
//	_ = publisher.Publish(ctx, admission.Violation{Client: "ip:203.0.113.7"})
//
// Handler names are bare type names without package path, so keep event type
// names unique across the module.
//
// # Decorators
//
// WithRetry retries a handler with exponential delays and WithTimeout bounds
// its run time. Both keep the wrapped handler's event name.
package event
