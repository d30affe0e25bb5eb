package telemetry

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tabone/drone/internal/navdata"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub(Options{})
	defer hub.Stop()

	events, cancel := hub.Subscribe(10)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := hub.Publish(Event{Type: EventMode, Data: map[string]interface{}{"n": i}}); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		ev := recv(t, events)
		if ev.ID != want {
			t.Errorf("event ID = %d, want %d", ev.ID, want)
		}
		if ev.Type != EventMode {
			t.Errorf("event type = %q", ev.Type)
		}
	}
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(Options{})
	defer hub.Stop()

	_, cancel := hub.Subscribe(1)
	defer cancel()

	for i := 0; i < 3; i++ {
		hub.Publish(Event{Type: EventNavdata})
	}

	if got := hub.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestHubCancelAndStop(t *testing.T) {
	hub := NewHub(Options{})

	first, cancel := hub.Subscribe(1)
	second, _ := hub.Subscribe(1)

	cancel()
	cancel()
	if _, ok := <-first; ok {
		t.Error("cancelled subscriber channel still open")
	}

	hub.Stop()
	hub.Stop()
	if _, ok := <-second; ok {
		t.Error("subscriber channel open after Stop")
	}

	if err := hub.Publish(Event{Type: EventFault}); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Publish() after Stop = %v, want ErrHubStopped", err)
	}

	late, _ := hub.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("Subscribe() after Stop returned an open channel")
	}
}

func TestEventBufferRing(t *testing.T) {
	b := NewEventBuffer(3)

	for id := int64(1); id <= 5; id++ {
		b.AddEvent(Event{ID: id})
	}

	if b.GetSize() != 3 || b.GetCapacity() != 3 {
		t.Fatalf("size %d capacity %d, want 3 and 3", b.GetSize(), b.GetCapacity())
	}

	tests := []struct {
		after int64
		want  []int64
	}{
		{0, []int64{3, 4, 5}},
		{3, []int64{4, 5}},
		{5, nil},
	}
	for _, tt := range tests {
		got := b.GetEventsAfter(tt.after)
		if len(got) != len(tt.want) {
			t.Errorf("GetEventsAfter(%d) returned %d events, want %d", tt.after, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("GetEventsAfter(%d)[%d] = %d, want %d", tt.after, i, got[i].ID, tt.want[i])
			}
		}
	}
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	id, event, data string
}

func readSSE(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return ev
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestServeSSEReplay(t *testing.T) {
	hub := NewHub(Options{
		HeartbeatInterval: time.Hour,
		Snapshot:          func() map[string]interface{} { return map[string]interface{}{"mode": "OFFLINE"} },
	})
	defer hub.Stop()

	for i := 0; i < 3; i++ {
		hub.Publish(Event{Type: EventMode, Data: map[string]interface{}{"n": i}})
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	ready := readSSE(t, r)
	if ready.event != EventReady || ready.data != `{"mode":"OFFLINE"}` {
		t.Errorf("first event = %+v, want ready snapshot", ready)
	}

	for _, want := range []string{"2", "3"} {
		if ev := readSSE(t, r); ev.id != want {
			t.Errorf("replayed id = %q, want %q", ev.id, want)
		}
	}

	hub.Publish(Event{Type: EventFault, Data: map[string]interface{}{"message": "x"}})
	if ev := readSSE(t, r); ev.id != "4" || ev.event != EventFault {
		t.Errorf("live event = %+v", ev)
	}
}

func TestServeSSEHeartbeat(t *testing.T) {
	hub := NewHub(Options{HeartbeatInterval: 10 * time.Millisecond})
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readSSE(t, r)
	if ev := readSSE(t, r); ev.event != EventHeartbeat || ev.id != "" {
		t.Errorf("event = %+v, want heartbeat without id", ev)
	}
}

func TestWatchState(t *testing.T) {
	hub := NewHub(Options{})
	defer hub.Stop()

	events, cancel := hub.Subscribe(10)
	defer cancel()

	state := navdata.NewState()
	stop := hub.Watch(state, 0)
	defer stop()

	pkt := navdata.EncodePacket(navdata.Header{State: 1 << navdata.BitNavdataBootstrap, Sequence: 1}, nil)
	if _, err := state.Apply(pkt); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	mode := recv(t, events)
	if mode.Type != EventMode || mode.Data["to"] != "BOOTSTRAP" {
		t.Errorf("first event = %+v, want mode BOOTSTRAP", mode)
	}
	sample := recv(t, events)
	if sample.Type != EventNavdata || sample.Data["mode"] != "BOOTSTRAP" {
		t.Errorf("second event = %+v, want navdata sample", sample)
	}
	if _, ok := sample.Data["demo"]; ok {
		t.Error("bootstrap sample carries a demo record")
	}
}

func TestLogCommandPublishesFault(t *testing.T) {
	hub := NewHub(Options{})
	defer hub.Stop()

	events, cancel := hub.Subscribe(1)
	defer cancel()

	hub.LogCommand("command.dropped", "AT*FTRIM=3\r", 3, errors.New("payload limit exceeded"))

	ev := recv(t, events)
	if ev.Type != EventFault || ev.Data["seq"] != uint32(3) || ev.Data["message"] != "payload limit exceeded" {
		t.Errorf("fault event = %+v", ev)
	}
}
