package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/protocol"
)

// Handler handles events pushed by the daemon and the synthetic connect and
// disconnect events.
type Handler interface {
	HandleEvent(ctx context.Context, msg *protocol.Message) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, msg *protocol.Message) error

func (f HandlerFunc) HandleEvent(ctx context.Context, msg *protocol.Message) error {
	return f(ctx, msg)
}

// HandlerID identifies a registered handler so it can be removed again.
type HandlerID uint64

type registeredHandler struct {
	id      HandlerID
	handler Handler
}

// Dispatcher runs the handlers registered for an event.
//
// Handler lists are copied on every change, so a dispatch always iterates
// the list as it was when the dispatch started.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]registeredHandler
	nextID   HandlerID

	metrics Metrics
	log     *zap.Logger
}

func NewDispatcher(log *zap.Logger, metrics Metrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}

	if metrics == nil {
		metrics = NopMetrics{}
	}

	return &Dispatcher{
		handlers: make(map[string][]registeredHandler),
		metrics:  metrics,
		log:      log,
	}
}

// AddHandler appends handler to the handlers for event.
func (d *Dispatcher) AddHandler(event string, handler Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID

	existing := d.handlers[event]
	d.handlers[event] = append(existing[:len(existing):len(existing)], registeredHandler{
		id:      id,
		handler: handler,
	})

	return id
}

// RemoveHandler removes a handler previously added for event. It returns
// false if no such handler was registered.
func (d *Dispatcher) RemoveHandler(event string, id HandlerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.handlers[event]
	kept := make([]registeredHandler, 0, len(existing))

	for _, h := range existing {
		if h.id != id {
			kept = append(kept, h)
		}
	}

	if len(kept) == len(existing) {
		return false
	}

	if len(kept) == 0 {
		delete(d.handlers, event)
	} else {
		d.handlers[event] = kept
	}

	return true
}

// Handlers returns the number of handlers registered for event.
func (d *Dispatcher) Handlers(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.handlers[event])
}

// Dispatch runs every handler registered for event, in registration order.
//
// A failing or panicking handler never stops the rest from running. The
// returned error combines every handler failure. Events with no handlers
// are logged as unhandled and are not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, msg *protocol.Message) error {
	d.mu.RLock()
	handlers := d.handlers[event]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.log.Warn("No handlers for event", zap.String("event", event))
		d.log.Debug("Unhandled event data", zap.ByteString("frame", msg.Raw))
		d.metrics.EventProcessed(event, ResultUnhandled)
		return nil
	}

	var errs error
	for _, h := range handlers {
		if err := invoke(ctx, h.handler, msg); err != nil {
			d.log.Error("Error in event handler",
				zap.String("event", event),
				zap.Uint64("handler", uint64(h.id)),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		d.metrics.EventProcessed(event, ResultError)
	} else {
		d.metrics.EventProcessed(event, ResultSuccess)
	}

	return errs
}

func invoke(ctx context.Context, handler Handler, msg *protocol.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()

	return handler.HandleEvent(ctx, msg)
}
