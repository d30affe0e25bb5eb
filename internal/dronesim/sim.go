package dronesim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tabone/drone/internal/command"
	"github.com/tabone/drone/internal/logging"
	"github.com/tabone/drone/internal/navdata"
)

// REF bits interpreted by the simulator.
const (
	refTakeoffBit   = 1 << 9
	refEmergencyBit = 1 << 8
)

// Options configures a Sim. Zero values select the defaults.
type Options struct {
	// CommandAddr is the AT command listen address. Default 127.0.0.1:0.
	CommandAddr string
	// NavdataAddr is the NAVDATA listen address. Default 127.0.0.1:0.
	NavdataAddr string
	// Interval between NAVDATA packets. Default 30ms.
	Interval time.Duration
	// TransitionDelay between a REF command and the matching flag change.
	// Default 100ms.
	TransitionDelay time.Duration
	// Battery is the initial battery percentage. Default 100.
	Battery uint32
	Logger  logrus.FieldLogger
}

// Sim is a running vehicle emulator.
type Sim struct {
	opts   Options
	logger logrus.FieldLogger

	cmdConn net.PacketConn
	navConn net.PacketConn

	mu         sync.Mutex
	sink       net.Addr
	flags      navdata.StatusFlags
	demo       navdata.TelemetryRecord
	navSeq     uint32
	lastCmdSeq uint32
	commands   []command.Parsed
	pending    *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a simulator. Call Start to bind its sockets.
func New(opts Options) *Sim {
	if opts.CommandAddr == "" {
		opts.CommandAddr = "127.0.0.1:0"
	}
	if opts.NavdataAddr == "" {
		opts.NavdataAddr = "127.0.0.1:0"
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Millisecond
	}
	if opts.TransitionDelay <= 0 {
		opts.TransitionDelay = 100 * time.Millisecond
	}
	if opts.Battery == 0 {
		opts.Battery = 100
	}

	s := &Sim{
		opts:   opts,
		logger: logging.Component(opts.Logger, "dronesim"),
	}
	s.resetLocked()
	return s
}

func (s *Sim) resetLocked() {
	s.flags = navdata.StatusFlags{NavdataBootstrap: true, CommunicationWatchdog: true}
	s.demo = navdata.TelemetryRecord{
		Size:    navdata.DemoSize,
		State:   navdata.CtrlLanded,
		Battery: s.opts.Battery,
	}
}

// Start binds both sockets and starts serving.
func (s *Sim) Start(ctx context.Context) error {
	var lc net.ListenConfig

	cmdConn, err := lc.ListenPacket(ctx, "udp", s.opts.CommandAddr)
	if err != nil {
		return fmt.Errorf("bind command socket: %w", err)
	}
	navConn, err := lc.ListenPacket(ctx, "udp", s.opts.NavdataAddr)
	if err != nil {
		cmdConn.Close()
		return fmt.Errorf("bind navdata socket: %w", err)
	}

	s.cmdConn = cmdConn
	s.navConn = navConn
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(3)
	go s.serveCommands()
	go s.serveStartRequests()
	go s.emit()

	s.logger.WithFields(logrus.Fields{
		"command": cmdConn.LocalAddr().String(),
		"navdata": navConn.LocalAddr().String(),
	}).Info("simulator listening")
	return nil
}

// CommandAddr returns the bound AT command address.
func (s *Sim) CommandAddr() net.Addr { return s.cmdConn.LocalAddr() }

// NavdataAddr returns the bound NAVDATA address.
func (s *Sim) NavdataAddr() net.Addr { return s.navConn.LocalAddr() }

// Close stops the simulator and releases its sockets.
func (s *Sim) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	err := errors.Join(s.cmdConn.Close(), s.navConn.Close())
	s.wg.Wait()

	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
	}
	s.mu.Unlock()
	return err
}

// Flags returns the current status word.
func (s *Sim) Flags() navdata.StatusFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// Commands returns every AT command processed so far.
func (s *Sim) Commands() []command.Parsed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]command.Parsed(nil), s.commands...)
}

// Count returns how many processed commands had the given name.
func (s *Sim) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.commands {
		if c.Name == name {
			n++
		}
	}
	return n
}

// SendRaw writes pkt to the registered telemetry sink.
func (s *Sim) SendRaw(pkt []byte) error {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return errors.New("no navdata client registered")
	}
	_, err := s.navConn.WriteTo(pkt, sink)
	return err
}

// CurrentSequence returns the sequence number of the last emitted packet.
func (s *Sim) CurrentSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navSeq
}

func (s *Sim) serveCommands() {
	defer s.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, from, err := s.cmdConn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		cmds, err := command.ParseCommands(buf[:n])
		if err != nil {
			s.logger.WithField("from", from.String()).WithError(err).Warn("malformed AT payload")
		}
		for _, c := range cmds {
			s.process(c)
		}
	}
}

func (s *Sim) serveStartRequests() {
	defer s.wg.Done()

	buf := make([]byte, 64)
	for {
		n, from, err := s.navConn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if n != 1 {
			continue
		}

		// A new client starts a new session.
		s.mu.Lock()
		s.sink = from
		s.lastCmdSeq = 0
		s.resetLocked()
		s.mu.Unlock()

		s.logger.WithField("client", from.String()).Info("navdata client registered")
	}
}

func (s *Sim) emit() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.emitPacket()
		}
	}
}

func (s *Sim) emitPacket() {
	s.mu.Lock()
	sink := s.sink
	if sink == nil {
		s.mu.Unlock()
		return
	}

	s.navSeq++
	h := navdata.Header{State: s.flags.Encode(), Sequence: s.navSeq}

	var demo *navdata.TelemetryRecord
	if navdata.ModeOf(s.flags) == navdata.ModeTelemetryActive {
		s.demo.Frames++
		rec := s.demo
		demo = &rec
	}
	s.mu.Unlock()

	if _, err := s.navConn.WriteTo(navdata.EncodePacket(h, demo), sink); err != nil {
		s.logger.WithError(err).Debug("navdata send failed")
	}
}

func (s *Sim) process(c command.Parsed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Seq <= s.lastCmdSeq {
		return
	}
	s.lastCmdSeq = c.Seq
	s.commands = append(s.commands, c)

	switch c.Name {
	case "REF":
		s.handleRef(c)
	case "CONFIG":
		if len(c.Args) == 2 && c.Args[0] == "general:navdata_demo" && c.Args[1] == "TRUE" && s.flags.NavdataBootstrap {
			s.flags.NavdataBootstrap = false
			s.flags.NavdataDemo = true
			s.flags.ControlCommandAck = true
		}
	case "CTRL":
		if len(c.Args) >= 1 && c.Args[0] == strconv.Itoa(command.AckControlMode) {
			s.flags.ControlCommandAck = false
		}
	case "PCMD":
		s.handlePCMD(c)
	}
}

func (s *Sim) handleRef(c command.Parsed) {
	if len(c.Args) != 1 {
		return
	}
	bits, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return
	}

	switch {
	case bits&refEmergencyBit != 0:
		if !s.flags.EmergencyLanding {
			s.schedule(func() {
				s.flags.EmergencyLanding = true
				s.flags.Fly = false
				s.demo.Flying = false
				s.demo.State = navdata.CtrlDefault
				s.demo.Altitude = 0
			})
		}
	case bits&refTakeoffBit != 0:
		if !s.flags.Fly {
			s.schedule(func() {
				s.flags.Fly = true
				s.demo.Flying = true
				s.demo.State = navdata.CtrlFlying
				s.demo.Altitude = 100
			})
		}
	default:
		if s.flags.Fly {
			s.schedule(func() {
				s.flags.Fly = false
				s.demo.Flying = false
				s.demo.State = navdata.CtrlLanded
				s.demo.Altitude = 0
			})
		}
	}
}

// schedule applies fn after the transition delay. Only one transition is
// pending at a time; repeated REF commands do not restart the timer.
func (s *Sim) schedule(fn func()) {
	if s.pending != nil {
		return
	}
	s.pending = time.AfterFunc(s.opts.TransitionDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		fn()
		s.pending = nil
	})
}

func (s *Sim) handlePCMD(c command.Parsed) {
	if len(c.Args) != 5 || c.Args[0] != "1" || !s.flags.Fly {
		return
	}
	gaz, err := strconv.ParseInt(c.Args[3], 10, 32)
	if err != nil {
		return
	}
	switch {
	case gaz > 0:
		s.demo.Altitude++
	case gaz < 0 && s.demo.Altitude > 0:
		s.demo.Altitude--
	}
}
