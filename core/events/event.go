package events

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines whose callers do not subscribe.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter retains emitted events in order. Intended for tests and for
// the RPC event tail.
type MemoryEmitter struct {
	events []Event
}

// NewMemoryEmitter returns an empty in-memory emitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(e Event) {
	if m == nil || e == nil {
		return
	}
	m.events = append(m.events, e)
}

// Events returns the emitted events in emission order.
func (m *MemoryEmitter) Events() []Event {
	if m == nil {
		return nil
	}
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Reset drops all retained events.
func (m *MemoryEmitter) Reset() {
	if m == nil {
		return
	}
	m.events = nil
}
