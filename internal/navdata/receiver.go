package navdata

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tabone/drone/internal/logging"
)

// DefaultReadBufferSize fits the largest NAVDATA datagram the vehicle emits.
const DefaultReadBufferSize = 4096

// Backoff applied between consecutive failed reads. It doubles per failure
// and resets on the next successful read.
const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
)

// Receiver owns the inbound channel. It requests the stream from the
// vehicle and feeds every datagram into a State.
type Receiver struct {
	state      *State
	vehicle    net.Addr
	listenAddr string
	bufSize    int
	logger     logrus.FieldLogger

	mu   sync.Mutex
	conn net.PacketConn
	stop chan struct{}
	wg   sync.WaitGroup
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithListenAddr sets the local address the inbound socket binds to.
// The default ":0" lets the kernel pick a port.
func WithListenAddr(addr string) ReceiverOption {
	return func(r *Receiver) { r.listenAddr = addr }
}

// WithReadBufferSize sets the datagram read buffer size.
func WithReadBufferSize(n int) ReceiverOption {
	return func(r *Receiver) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// WithReceiverLogger sets the logger.
func WithReceiverLogger(log logrus.FieldLogger) ReceiverOption {
	return func(r *Receiver) { r.logger = logging.Component(log, "navdata") }
}

// NewReceiver creates a receiver that requests NAVDATA from vehicle.
func NewReceiver(state *State, vehicle net.Addr, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		state:      state,
		vehicle:    vehicle,
		listenAddr: ":0",
		bufSize:    DefaultReadBufferSize,
		logger:     logging.Component(nil, "navdata"),
	}
	for _, opt := range opts {
		opt(r)
	}

	state.OnModeChange(func(t Transition) {
		r.logger.WithFields(logrus.Fields{
			"from": t.From.String(),
			"to":   t.To.String(),
			"seq":  t.Sequence,
		}).Info("navdata mode changed")
	})

	return r
}

// Initialize binds the inbound socket, resets the session state and sends
// the start request to the vehicle's NAVDATA port. Packets are processed
// asynchronously until Close. Calling Initialize again closes the previous
// channel first.
func (r *Receiver) Initialize(ctx context.Context) error {
	r.Close()

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", r.listenAddr)
	if err != nil {
		return &ChannelError{Op: "bind", Err: err}
	}

	r.state.Reset()

	if _, err := conn.WriteTo(StartRequest, r.vehicle); err != nil {
		conn.Close()
		return &ChannelError{Op: "send", Err: err}
	}

	stop := make(chan struct{})
	r.mu.Lock()
	r.conn = conn
	r.stop = stop
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"local":   conn.LocalAddr().String(),
		"vehicle": r.vehicle.String(),
	}).Info("navdata stream requested")

	r.wg.Add(1)
	go r.readLoop(conn, stop)

	return nil
}

// Request resends the start request on the open channel without resetting
// the session, for use when the stream stalls.
func (r *Receiver) Request() error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return ErrNotInitialized
	}
	if _, err := conn.WriteTo(StartRequest, r.vehicle); err != nil {
		return &ChannelError{Op: "send", Err: err}
	}
	return nil
}

// LocalAddr returns the bound address of the inbound socket, or nil before
// Initialize.
func (r *Receiver) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// State returns the state the receiver writes to.
func (r *Receiver) State() *State {
	return r.state
}

// Close stops the read loop and closes the socket.
func (r *Receiver) Close() error {
	r.mu.Lock()
	conn, stop := r.conn, r.stop
	r.conn, r.stop = nil, nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}

	close(stop)
	err := conn.Close()
	r.wg.Wait()
	return err
}

// readLoop reads until conn is closed or stop is closed. Consecutive read
// errors back off exponentially; only the first of a run is logged at Warn.
func (r *Receiver) readLoop(conn net.PacketConn, stop <-chan struct{}) {
	defer r.wg.Done()

	buf := make([]byte, r.bufSize)
	var backoff time.Duration
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if backoff == 0 {
				backoff = minReadBackoff
				r.logger.WithError(err).Warn("navdata read failed")
			} else {
				backoff = min(backoff*2, maxReadBackoff)
				r.logger.WithError(err).WithField("backoff", backoff).Debug("navdata read failed again")
			}

			t := time.NewTimer(backoff)
			select {
			case <-stop:
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}

		backoff = 0
		r.handle(buf[:n], from)
	}
}

func (r *Receiver) handle(datagram []byte, from net.Addr) {
	p, err := r.state.Apply(datagram)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"from":  from.String(),
			"bytes": len(datagram),
		}).WithError(err).Debug("navdata packet dropped")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"seq":  p.Header.Sequence,
		"demo": p.Demo != nil,
	}).Debug("navdata packet accepted")
}
