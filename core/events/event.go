package events

import "tipchain/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render themselves as a flat
// attribute map for RPC streams and indexers.
type Payload interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Collector buffers events in memory. The node stages events emitted during
// an operation in a Collector and only forwards them once state commits.
type Collector struct {
	events []Event
}

func (c *Collector) Emit(evt Event) {
	if evt == nil {
		return
	}
	c.events = append(c.events, evt)
}

// Events returns the buffered events in emission order.
func (c *Collector) Events() []Event {
	return append([]Event(nil), c.events...)
}
