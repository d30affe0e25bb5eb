package command

import "sync"

// Entry is a unit of pending outbound work.
//
// Tick is evaluated once per cycle before rendering. True keeps the entry
// queued and includes it in this cycle; false removes it silently. Command
// renders the AT line for seq and must return the same text for the same
// seq. OnDropped is called when the rendered line is invalid or does not fit
// in the datagram; the entry is removed and never rendered again.
type Entry interface {
	Command(seq uint32) string
	Tick() bool
	OnDropped(reason error)
}

// EntryFuncs adapts plain functions to Entry. A nil TickFunc always
// returns true and a nil DroppedFunc does nothing.
type EntryFuncs struct {
	CommandFunc func(seq uint32) string
	TickFunc    func() bool
	DroppedFunc func(reason error)
}

func (f EntryFuncs) Command(seq uint32) string {
	return f.CommandFunc(seq)
}

func (f EntryFuncs) Tick() bool {
	if f.TickFunc == nil {
		return true
	}
	return f.TickFunc()
}

func (f EntryFuncs) OnDropped(reason error) {
	if f.DroppedFunc != nil {
		f.DroppedFunc(reason)
	}
}

// Once wraps e so that it leaves the queue on the tick after its first
// render. The scheduler never applies this on its own: an entry whose Tick
// keeps returning true is retransmitted every cycle.
func Once(e Entry) Entry {
	return &onceEntry{Entry: e}
}

type onceEntry struct {
	Entry

	mu       sync.Mutex
	rendered bool
}

func (o *onceEntry) Tick() bool {
	o.mu.Lock()
	done := o.rendered
	o.mu.Unlock()

	if done {
		return false
	}
	return o.Entry.Tick()
}

func (o *onceEntry) Command(seq uint32) string {
	o.mu.Lock()
	o.rendered = true
	o.mu.Unlock()

	return o.Entry.Command(seq)
}
