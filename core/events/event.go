package events

import (
	"sync"

	"metanode/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	// Event converts the payload into its broadcastable form.
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

// Buffer records events in order without forwarding them. The node uses it to
// hold back events until the surrounding state transition commits.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards every buffered event to dst and empties the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if b == nil {
		return
	}
	if dst != nil {
		for _, evt := range b.events {
			dst.Emit(evt)
		}
	}
	b.events = nil
}

// Fanout forwards events to every registered emitter.
type Fanout struct {
	mu      sync.RWMutex
	targets []Emitter
}

// NewFanout constructs a fan-out emitter over the supplied targets.
func NewFanout(targets ...Emitter) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		f.Add(t)
	}
	return f
}

// Add registers an additional target.
func (f *Fanout) Add(target Emitter) {
	if f == nil || target == nil {
		return
	}
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	f.mu.RLock()
	targets := append([]Emitter(nil), f.targets...)
	f.mu.RUnlock()
	for _, t := range targets {
		t.Emit(evt)
	}
}

// Committed wraps an event that has been durably applied, tagging it with the
// ledger-wide sequence number assigned at commit.
type Committed struct {
	Seq   uint64
	Inner Event
}

// EventType implements the Event interface.
func (c Committed) EventType() string {
	if c.Inner == nil {
		return ""
	}
	return c.Inner.EventType()
}

// Event implements the Event interface. The sequence is carried as the "seq"
// attribute.
func (c Committed) Event() *types.Event {
	if c.Inner == nil {
		return nil
	}
	evt := c.Inner.Event().Clone()
	if evt == nil {
		return nil
	}
	if evt.Attributes == nil {
		evt.Attributes = map[string]string{}
	}
	evt.Attributes["seq"] = formatUint(c.Seq)
	return evt
}
