package navdata

import (
	"fmt"
	"sync"
	"time"
)

// Snapshot is a copy of the latest accepted navdata.
type Snapshot struct {
	Mode        Mode            `json:"mode"`
	Flags       StatusFlags     `json:"flags"`
	Demo        TelemetryRecord `json:"demo"`
	HasDemo     bool            `json:"hasDemo"`
	Sequence    uint32          `json:"sequence"`
	HasSequence bool            `json:"hasSequence"`
	Accepted    uint64          `json:"accepted"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// State is the session-wide navdata state. The Receiver is its only
// writer; any goroutine may read it or subscribe to its changes.
//
// Subscribers are invoked from the writer's goroutine after the state lock
// has been released, in registration order. They must not block.
type State struct {
	mu       sync.RWMutex
	mode     Mode
	flags    StatusFlags
	demo     TelemetryRecord
	hasDemo  bool
	lastSeq  uint32
	hasSeq   bool
	accepted uint64
	rejected uint64
	updated  time.Time

	subMu      sync.RWMutex
	nextSub    int
	modeSubs   []subscriber[Transition]
	updateSubs []subscriber[Snapshot]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// NewState creates a state in ModeOffline with no accepted packet.
func NewState() *State {
	return &State{mode: ModeOffline}
}

// Mode returns the current handshake mode.
func (s *State) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Flags returns the state mask of the latest accepted packet.
func (s *State) Flags() StatusFlags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// Telemetry returns the latest demo record and whether one was received.
func (s *State) Telemetry() (TelemetryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.demo, s.hasDemo
}

// LastSequence returns the sequence number of the latest accepted packet.
func (s *State) LastSequence() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq, s.hasSeq
}

// Snapshot returns a consistent copy of the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Mode:        s.mode,
		Flags:       s.flags,
		Demo:        s.demo,
		HasDemo:     s.hasDemo,
		Sequence:    s.lastSeq,
		HasSequence: s.hasSeq,
		Accepted:    s.accepted,
		UpdatedAt:   s.updated,
	}
}

// OnModeChange registers fn for mode transitions. The returned function
// removes the registration.
func (s *State) OnModeChange(fn func(Transition)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.modeSubs = append(s.modeSubs, subscriber[Transition]{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		s.modeSubs = without(s.modeSubs, id)
		s.subMu.Unlock()
	}
}

// OnUpdate registers fn for every accepted packet.
func (s *State) OnUpdate(fn func(Snapshot)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.updateSubs = append(s.updateSubs, subscriber[Snapshot]{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		s.updateSubs = without(s.updateSubs, id)
		s.subMu.Unlock()
	}
}

func without[T any](subs []subscriber[T], id int) []subscriber[T] {
	out := make([]subscriber[T], 0, len(subs))
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}

// Rejected returns how many datagrams were dropped as malformed or stale.
func (s *State) Rejected() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected
}

// Reset returns the state to ModeOffline and forgets the last accepted
// sequence number. Called when the inbound channel is (re)initialized.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = ModeOffline
	s.flags = StatusFlags{}
	s.demo = TelemetryRecord{}
	s.hasDemo = false
	s.lastSeq = 0
	s.hasSeq = false
}

// Decode validates and decodes a datagram without touching any state. The
// demo option is decoded only when the packet's own flags put the session
// in ModeTelemetryActive.
func Decode(buf []byte) (Packet, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h, Flags: DecodeStatusFlags(h.State)}
	if ModeOf(p.Flags) == ModeTelemetryActive {
		rec, err := DecodeTelemetryRecord(buf[DemoOffset:])
		if err != nil {
			return Packet{}, err
		}
		p.Demo = &rec
	}

	return p, nil
}

// Apply decodes buf and, if its sequence number is newer than the last
// accepted one, commits it. A rejected datagram leaves the state untouched.
func (s *State) Apply(buf []byte) (Packet, error) {
	p, err := Decode(buf)
	if err != nil {
		s.countRejected()
		return Packet{}, err
	}

	s.mu.Lock()
	if s.hasSeq && p.Header.Sequence <= s.lastSeq {
		last := s.lastSeq
		s.rejected++
		s.mu.Unlock()
		return Packet{}, fmt.Errorf("%w: %d <= %d", ErrStalePacket, p.Header.Sequence, last)
	}

	s.lastSeq = p.Header.Sequence
	s.hasSeq = true
	s.flags = p.Flags
	s.accepted++
	s.updated = time.Now()

	prev := s.mode
	next, changed := NextMode(prev, p.Flags)
	s.mode = next

	if p.Demo != nil {
		s.demo = *p.Demo
		s.hasDemo = true
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notifyMode(Transition{From: prev, To: next, Sequence: p.Header.Sequence})
	}
	s.notifyUpdate(snap)

	return p, nil
}

func (s *State) countRejected() {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

func (s *State) notifyMode(t Transition) {
	s.subMu.RLock()
	subs := s.modeSubs
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.fn(t)
	}
}

func (s *State) notifyUpdate(snap Snapshot) {
	s.subMu.RLock()
	subs := s.updateSubs
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}
