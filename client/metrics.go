package client

import (
	"sync"
	"sync/atomic"
)

// Event dispatch outcomes reported to Metrics.EventProcessed.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultUnhandled = "unhandled"
)

// Metrics receives observability hooks from the client. Implementations
// must be safe for concurrent use.
type Metrics interface {
	// EventProcessed is called once per dispatched event with one of the
	// Result* outcomes
	EventProcessed(event, result string)

	// Reconnected is called every time an established connection is lost
	Reconnected()

	SetConnected(connected bool)
}

type NopMetrics struct{}

func (NopMetrics) EventProcessed(string, string) {}
func (NopMetrics) Reconnected()                  {}
func (NopMetrics) SetConnected(bool)             {}

// Counters is an in-memory Metrics implementation.
type Counters struct {
	mu     sync.Mutex
	events map[string]map[string]uint64

	reconnections atomic.Uint64
	connected     atomic.Bool
}

type CountersSnapshot struct {
	Events        map[string]map[string]uint64 `json:"events"`
	Reconnections uint64                       `json:"reconnections"`
	Connected     bool                         `json:"connected"`
}

func NewCounters() *Counters {
	return &Counters{events: make(map[string]map[string]uint64)}
}

func (c *Counters) EventProcessed(event, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byResult, ok := c.events[event]
	if !ok {
		byResult = make(map[string]uint64)
		c.events[event] = byResult
	}

	byResult[result]++
}

func (c *Counters) Reconnected() {
	c.reconnections.Add(1)
}

func (c *Counters) SetConnected(connected bool) {
	c.connected.Store(connected)
}

// Snapshot returns a copy of the current counter values.
func (c *Counters) Snapshot() CountersSnapshot {
	c.mu.Lock()
	events := make(map[string]map[string]uint64, len(c.events))
	for event, byResult := range c.events {
		copied := make(map[string]uint64, len(byResult))
		for result, n := range byResult {
			copied[result] = n
		}
		events[event] = copied
	}
	c.mu.Unlock()

	return CountersSnapshot{
		Events:        events,
		Reconnections: c.reconnections.Load(),
		Connected:     c.connected.Load(),
	}
}

var _ Metrics = NopMetrics{}
var _ Metrics = (*Counters)(nil)
