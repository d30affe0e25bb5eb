package navdata

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// fakeVehicle is a loopback socket standing in for the vehicle's NAVDATA port.
type fakeVehicle struct {
	t    *testing.T
	conn net.PacketConn
}

func newFakeVehicle(t *testing.T) *fakeVehicle {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &fakeVehicle{t: t, conn: conn}
}

// awaitStart reads the start request and returns the client address.
func (v *fakeVehicle) awaitStart() net.Addr {
	v.t.Helper()
	v.conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 16)
	n, from, err := v.conn.ReadFrom(buf)
	if err != nil {
		v.t.Fatalf("no start request: %v", err)
	}
	if n != 1 || buf[0] != 1 {
		v.t.Fatalf("start request = %x, want 01", buf[:n])
	}
	return from
}

func (v *fakeVehicle) send(to net.Addr, pkt []byte) {
	v.t.Helper()
	if _, err := v.conn.WriteTo(pkt, to); err != nil {
		v.t.Fatalf("send: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestReceiverHandshakeFlow(t *testing.T) {
	vehicle := newFakeVehicle(t)
	state := NewState()
	r := NewReceiver(state, vehicle.conn.LocalAddr(), WithListenAddr("127.0.0.1:0"))

	modes := make(chan Mode, 8)
	state.OnModeChange(func(tr Transition) { modes <- tr.To })

	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer r.Close()

	client := vehicle.awaitStart()
	if client.String() != r.LocalAddr().String() {
		t.Errorf("start request from %v, receiver bound to %v", client, r.LocalAddr())
	}

	rec := TelemetryRecord{Tag: 0, Size: 148, Battery: 91, Altitude: 33, Frames: 4}
	vehicle.send(client, bootstrapPacket(1))
	vehicle.send(client, ackPacket(2))
	vehicle.send(client, []byte("garbage"))
	vehicle.send(client, demoPacket(3, StatusFlags{}, rec))

	for _, want := range []Mode{ModeBootstrap, ModeHandshake, ModeTelemetryActive} {
		select {
		case got := <-modes:
			if got != want {
				t.Fatalf("mode = %v, want %v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}

	waitFor(t, "demo record", func() bool {
		got, ok := state.Telemetry()
		return ok && got == rec
	})
}

func TestReceiverInitializeSendFailure(t *testing.T) {
	// An IPv6 destination cannot be reached from an IPv4 socket.
	vehicle := &net.UDPAddr{IP: net.ParseIP("::1"), Port: 5554}
	r := NewReceiver(NewState(), vehicle, WithListenAddr("127.0.0.1:0"))

	err := r.Initialize(context.Background())
	if err == nil {
		r.Close()
		t.Skip("platform allowed cross-family send")
	}

	var chErr *ChannelError
	if !errors.As(err, &chErr) || chErr.Op != "send" {
		t.Fatalf("err = %v, want send ChannelError", err)
	}
	if r.LocalAddr() != nil {
		t.Error("channel left open after failed initialize")
	}
}

func TestReceiverInitializeBindFailure(t *testing.T) {
	r := NewReceiver(NewState(), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5554},
		WithListenAddr("127.0.0.1:99999"))

	var chErr *ChannelError
	if err := r.Initialize(context.Background()); !errors.As(err, &chErr) || chErr.Op != "bind" {
		t.Fatalf("err = %v, want bind ChannelError", err)
	}
}

func TestReceiverReinitializeResetsSequence(t *testing.T) {
	vehicle := newFakeVehicle(t)
	state := NewState()
	r := NewReceiver(state, vehicle.conn.LocalAddr(), WithListenAddr("127.0.0.1:0"))

	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	client := vehicle.awaitStart()
	vehicle.send(client, bootstrapPacket(500))
	waitFor(t, "first packet", func() bool {
		seq, ok := state.LastSequence()
		return ok && seq == 500
	})

	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() failed: %v", err)
	}
	defer r.Close()

	client = vehicle.awaitStart()
	vehicle.send(client, bootstrapPacket(1))
	waitFor(t, "packet after reconnect", func() bool {
		seq, ok := state.LastSequence()
		return ok && seq == 1
	})
}

func TestReceiverRequest(t *testing.T) {
	vehicle := newFakeVehicle(t)
	r := NewReceiver(NewState(), vehicle.conn.LocalAddr(), WithListenAddr("127.0.0.1:0"))

	if err := r.Request(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Request() before Initialize = %v, want ErrNotInitialized", err)
	}

	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer r.Close()
	vehicle.awaitStart()

	if err := r.Request(); err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	vehicle.awaitStart()
}

func TestReceiverCloseIdempotent(t *testing.T) {
	r := NewReceiver(NewState(), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1})
	if err := r.Close(); err != nil {
		t.Errorf("Close() before Initialize = %v", err)
	}
}

// brokenConn fails every read.
type brokenConn struct {
	net.PacketConn
	reads atomic.Int64
}

func (c *brokenConn) ReadFrom([]byte) (int, net.Addr, error) {
	c.reads.Add(1)
	return 0, nil, errors.New("socket error")
}

func TestReadLoopBacksOffOnErrors(t *testing.T) {
	r := NewReceiver(NewState(), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5554})
	conn := &brokenConn{}
	stop := make(chan struct{})

	r.wg.Add(1)
	go r.readLoop(conn, stop)

	time.Sleep(200 * time.Millisecond)
	close(stop)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read loop did not stop while backing off")
	}

	// 10+20+40+80 ms of backoff fit in the window: about five reads.
	if n := conn.reads.Load(); n < 2 || n > 10 {
		t.Errorf("reads in 200ms = %d, want between 2 and 10", n)
	}
}
