package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tabone/drone/internal/logging"
)

// Event types.
const (
	EventReady     = "ready"
	EventMode      = "mode"
	EventNavdata   = "navdata"
	EventFault     = "fault"
	EventHeartbeat = "heartbeat"
)

// Defaults for Options.
const (
	DefaultBufferSize        = 50
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultClientBuffer      = 100
)

// ErrHubStopped is returned by Publish after Stop.
var ErrHubStopped = errors.New("telemetry hub stopped")

// Event is one telemetry event. ID is assigned by the hub.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Options configures a Hub.
type Options struct {
	// BufferSize is the number of events kept for Last-Event-ID replay.
	BufferSize int
	// HeartbeatInterval between heartbeat events while SSE clients are
	// connected.
	HeartbeatInterval time.Duration
	// Snapshot, when set, supplies the data of the ready event sent to
	// every new SSE client.
	Snapshot func() map[string]interface{}
	Logger   logrus.FieldLogger
}

// Hub fans out events.
//
// Lock ordering: h.mu before EventBuffer.mu. Subscriber channels are closed
// only while holding h.mu.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int64]*subscriber
	nextSub int64
	sse     int
	stopped bool

	nextID atomic.Int64
	buffer *EventBuffer

	heartbeat time.Duration
	snapshot  func() map[string]interface{}
	logger    logrus.FieldLogger

	stopHeartbeat chan struct{}
	done          chan struct{}
	wg            sync.WaitGroup
}

type subscriber struct {
	events  chan Event
	dropped atomic.Int64
}

// NewHub creates a hub.
func NewHub(opts Options) *Hub {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}

	return &Hub{
		subs:      make(map[int64]*subscriber),
		buffer:    NewEventBuffer(opts.BufferSize),
		heartbeat: opts.HeartbeatInterval,
		snapshot:  opts.Snapshot,
		logger:    logging.Component(opts.Logger, "telemetry"),
		done:      make(chan struct{}),
	}
}

// Publish assigns the next event ID, buffers the event for replay and
// delivers it to every subscriber that has room for it. Slow subscribers
// lose events rather than block the publisher.
func (h *Hub) Publish(ev Event) error {
	return h.publish(ev, true)
}

func (h *Hub) publish(ev Event, buffered bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return ErrHubStopped
	}

	if buffered {
		ev.ID = h.nextID.Add(1)
		h.buffer.AddEvent(ev)
	} else {
		ev.ID = 0
	}

	for _, sub := range h.subs {
		select {
		case sub.events <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers an in-process subscriber with the given channel
// buffer. The channel is closed by cancel or Stop.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	sub := &subscriber{events: make(chan Event, buffer)}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		close(sub.events)
		return sub.events, func() {}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.events)
			}
		})
	}
	return sub.events, cancel
}

// ServeSSE streams events to an HTTP client until the request context is
// done or the hub stops. A Last-Event-ID header replays buffered events
// newer than that ID.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing published in between is lost.
	events, cancel := h.Subscribe(DefaultClientBuffer)
	defer cancel()

	h.clientJoined()
	defer h.clientLeft()

	ready := Event{Type: EventReady, Data: map[string]interface{}{}}
	if h.snapshot != nil {
		ready.Data = h.snapshot()
	}
	if err := writeEvent(w, ready); err != nil {
		return
	}

	var last int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			last = id
			for _, ev := range h.buffer.GetEventsAfter(id) {
				if err := writeEvent(w, ev); err != nil {
					return
				}
				last = ev.ID
			}
		}
	}

	h.stream(r.Context(), w, events, last)
}

func (h *Hub) stream(ctx context.Context, w http.ResponseWriter, events <-chan Event, last int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			// Already sent during replay.
			if ev.ID != 0 && ev.ID <= last {
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.WithError(err).Debug("sse client write failed")
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if ev.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", ev.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// clientJoined starts the heartbeat when the first SSE client connects.
func (h *Hub) clientJoined() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sse++
	if h.sse == 1 && h.stopHeartbeat == nil && !h.stopped {
		h.stopHeartbeat = make(chan struct{})
		h.wg.Add(1)
		go h.runHeartbeat(h.stopHeartbeat)
	}
}

// clientLeft stops the heartbeat when the last SSE client disconnects.
func (h *Hub) clientLeft() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sse--
	if h.sse == 0 && h.stopHeartbeat != nil {
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
}

func (h *Hub) runHeartbeat(stop <-chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.publish(Event{
				Type: EventHeartbeat,
				Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
			}, false)
		case <-stop:
			return
		case <-h.done:
			return
		}
	}
}

// Dropped returns the total number of events lost by slow subscribers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var n int64
	for _, sub := range h.subs {
		n += sub.dropped.Load()
	}
	return n
}

// Stop closes every subscriber and rejects further events.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	close(h.done)
	for id, sub := range h.subs {
		close(sub.events)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
