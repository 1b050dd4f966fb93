package client

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/protocol"
)

// Result is the outcome of a request.
type Result struct {
	Type string
	Data json.RawMessage
	Err  error
}

// Waiter is resolved exactly once with the Result of a request.
type Waiter struct {
	id         uuid.UUID
	generation uint64

	once   sync.Once
	result chan Result
}

func newWaiter(id uuid.UUID, generation uint64) *Waiter {
	return &Waiter{
		id:         id,
		generation: generation,
		result:     make(chan Result, 1),
	}
}

func (w *Waiter) ID() uuid.UUID {
	return w.id
}

// Generation is the connection generation the waiter was registered in.
func (w *Waiter) Generation() uint64 {
	return w.generation
}

// Done receives the Result once the waiter is resolved.
func (w *Waiter) Done() <-chan Result {
	return w.result
}

// settle resolves the waiter, returning false if it was already resolved.
// The result channel is buffered so settling never blocks, even when the
// caller has stopped waiting.
func (w *Waiter) settle(r Result) bool {
	settled := false

	w.once.Do(func() {
		w.result <- r
		settled = true
	})

	return settled
}

// Registry maps in-flight request IDs to their waiters.
type Registry struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]*Waiter

	log *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}

	return &Registry{
		waiters: make(map[uuid.UUID]*Waiter),
		log:     log,
	}
}

// Register returns the waiter for id, creating it if needed. A response
// may therefore be registered for before or after the request is written.
func (r *Registry) Register(id uuid.UUID, generation uint64) *Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.waiters[id]; ok {
		return w
	}

	w := newWaiter(id, generation)
	r.waiters[id] = w

	return w
}

// Resolve settles the waiter for id with msg and removes it. Responses
// nobody is waiting for are logged and discarded.
func (r *Registry) Resolve(id uuid.UUID, msg *protocol.Message) bool {
	w := r.pop(id)
	if w == nil {
		r.log.Debug("Nobody waiting for response",
			zap.Stringer("requestID", id),
			zap.String("type", msg.Type))
		return false
	}

	return w.settle(resolution(msg))
}

// Drop removes the waiter for id without settling it.
func (r *Registry) Drop(id uuid.UUID) bool {
	return r.pop(id) != nil
}

// AbandonAll fails every registered waiter with a NotConnectedError and
// empties the registry. Waiters registered afterwards are left alone.
func (r *Registry) AbandonAll(reason string) int {
	r.mu.Lock()
	abandoned := r.waiters
	r.waiters = make(map[uuid.UUID]*Waiter)
	r.mu.Unlock()

	n := 0
	for id, w := range abandoned {
		if w.settle(Result{Err: &NotConnectedError{Reason: reason}}) {
			r.log.Debug("Abandoning response",
				zap.Stringer("requestID", id),
				zap.Uint64("generation", w.generation))
			n++
		}
	}

	return n
}

// Len returns the number of requests awaiting a response.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.waiters)
}

func (r *Registry) pop(id uuid.UUID) *Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[id]
	if !ok {
		return nil
	}

	delete(r.waiters, id)
	return w
}

// resolution maps a response to the Result its waiter settles with.
func resolution(msg *protocol.Message) Result {
	switch {
	case msg.Type == protocol.UnexpectedErrorType:
		message := defaultUnexpectedMessage
		if m := msg.Get("data.message"); m.Exists() {
			message = m.String()
		}
		return Result{Err: &UnexpectedError{Message: message}}

	// Only the top-level error fails a request, `data.error` does not
	case msg.HasError():
		return Result{Err: newResponseError(msg.Type, msg.Raw, msg.Error)}

	default:
		return Result{Type: msg.Type, Data: msg.Data}
	}
}
