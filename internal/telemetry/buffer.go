package telemetry

import "sync"

// EventBuffer is a fixed-capacity ring of the most recent events.
type EventBuffer struct {
	mu     sync.RWMutex
	events []Event
	start  int
	size   int
}

// NewEventBuffer creates a buffer holding up to capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &EventBuffer{events: make([]Event, capacity)}
}

// AddEvent appends ev, evicting the oldest event when full.
func (b *EventBuffer) AddEvent(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := len(b.events)
	if b.size < c {
		b.events[(b.start+b.size)%c] = ev
		b.size++
		return
	}
	b.events[b.start] = ev
	b.start = (b.start + 1) % c
}

// GetEventsAfter returns buffered events with an ID greater than lastID,
// oldest first.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for i := 0; i < b.size; i++ {
		ev := b.events[(b.start+i)%len(b.events)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return len(b.events)
}

// GetSize returns the number of buffered events.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
