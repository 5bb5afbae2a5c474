// Package bus provides the process-wide publish point for session events,
// decoupling producers (providers, registry, router) from consumers (the
// broadcast layer). Delivery is at-most-once and best-effort: events
// published with no handler attached are lost, and there is no replay.
package bus

import (
	"sync"

	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

// Handler consumes published events. Handlers are invoked synchronously in
// publish order and must not block; slow consumers buffer internally.
type Handler func(ev core.Event)

// Options configure a Bus.
type Options struct {
	Logger logging.Logger
}

// Bus is a process-wide event publish point with an explicit lifecycle:
// created at process start, closed at shutdown. Publishes after Close are
// dropped so in-flight producers never write to a torn-down handler set.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool
	logger   logging.Logger
}

// New creates an open Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{
		handlers: make(map[string]Handler),
		logger:   opts.Logger,
	}
}

// Attach registers a handler and returns its detach id.
func (b *Bus) Attach(h Handler) string {
	id := core.NewID()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return id
	}
	b.handlers[id] = h
	return id
}

// Detach removes a handler. Unknown ids are a no-op.
func (b *Bus) Detach(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Publish delivers an event to every attached handler in attach-set order.
// Per-publish ordering is preserved because handlers run synchronously on
// the publisher's goroutine.
func (b *Bus) Publish(ev core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Debug("bus.publish.dropped", "kind", string(ev.Kind), "session_id", ev.SessionID)
		return
	}
	for _, h := range b.handlers {
		h(ev)
	}
}

// Close detaches all handlers and drops subsequent publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string]Handler)
}
