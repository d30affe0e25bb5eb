package telemetry

import (
	"sync"
	"time"

	"github.com/tabone/drone/internal/navdata"
)

// Watch publishes mode transitions and navdata samples from state. Samples
// are published at most once per interval; a zero interval publishes every
// accepted packet. The returned function stops watching.
func (h *Hub) Watch(state *navdata.State, interval time.Duration) func() {
	stopMode := state.OnModeChange(func(t navdata.Transition) {
		h.Publish(Event{
			Type: EventMode,
			Data: map[string]interface{}{
				"from": t.From.String(),
				"to":   t.To.String(),
				"seq":  t.Sequence,
			},
		})
	})

	var (
		mu   sync.Mutex
		last time.Time
	)
	stopUpdate := state.OnUpdate(func(s navdata.Snapshot) {
		mu.Lock()
		if interval > 0 && s.UpdatedAt.Sub(last) < interval {
			mu.Unlock()
			return
		}
		last = s.UpdatedAt
		mu.Unlock()

		h.Publish(Event{Type: EventNavdata, Data: SnapshotData(s)})
	})

	return func() {
		stopMode()
		stopUpdate()
	}
}

// SnapshotData renders a navdata snapshot as event data.
func SnapshotData(s navdata.Snapshot) map[string]interface{} {
	data := map[string]interface{}{
		"mode":  s.Mode.String(),
		"seq":   s.Sequence,
		"flags": s.Flags,
	}
	if s.HasDemo {
		data["demo"] = s.Demo
		data["flightState"] = s.Demo.State.String()
	}
	return data
}

// LogCommand publishes dropped commands and channel failures as fault
// events. It satisfies command.AuditLogger.
func (h *Hub) LogCommand(action, cmd string, seq uint32, err error) {
	data := map[string]interface{}{
		"action":  action,
		"seq":     seq,
		"command": cmd,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		data["message"] = err.Error()
	}
	h.Publish(Event{Type: EventFault, Data: data})
}
