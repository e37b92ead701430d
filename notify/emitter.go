// Package notify provides a small named-event dispatcher. Sessions own an
// Emitter as a field and surface lifecycle notifications (bind, unbind,
// closed) through it; there is no inheritance involved, only composition.
package notify

import "sync"

// Handler receives the arguments passed to Emit for an event it subscribed to.
// Handlers run synchronously on the emitting goroutine; a panicking handler
// propagates to the emitter's caller.
type Handler func(args ...any)

// Emitter dispatches named events to subscribed handlers. Handlers for an
// event are invoked synchronously, in registration order. Safe for concurrent
// use.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewEmitter returns an empty Emitter ready for use.
//
// Returns:
//   - A pointer to a new Emitter
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[string][]Handler),
	}
}

// On subscribes a handler to the named event. The same handler may be
// subscribed more than once; it will then be invoked once per subscription.
// Nil handlers are ignored.
//
// Parameters:
//   - event: The event name to subscribe to
//   - handler: Function invoked with the Emit arguments
func (e *Emitter) On(event string, handler Handler) {
	if handler == nil {
		return
	}

	e.mu.Lock()
	e.handlers[event] = append(e.handlers[event], handler)
	e.mu.Unlock()
}

// Emit invokes every handler subscribed to the named event, in registration
// order, passing args through unchanged. Emitting an event with no
// subscribers is a no-op. Handlers subscribed while Emit is running are not
// invoked for the current emission.
//
// Parameters:
//   - event: The event name to emit
//   - args: Arguments forwarded to each handler
func (e *Emitter) Emit(event string, args ...any) {
	e.mu.RLock()
	subscribed := e.handlers[event]
	handlers := make([]Handler, len(subscribed))
	copy(handlers, subscribed)
	e.mu.RUnlock()

	for _, h := range handlers {
		h(args...)
	}
}

// HandlerCount returns the number of handlers subscribed to the named event.
//
// Parameters:
//   - event: The event name to count subscriptions for
//
// Returns:
//   - The number of subscribed handlers
func (e *Emitter) HandlerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}
