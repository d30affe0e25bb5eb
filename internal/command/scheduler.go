package command

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tabone/drone/internal/logging"
)

// DefaultInterval is the cadence of the send cycle.
const DefaultInterval = 30 * time.Millisecond

// Audit actions recorded by the scheduler.
const (
	ActionDropped        = "command.dropped"
	ActionChannelFailure = "channel.failure"
)

// AuditLogger receives dropped commands and fatal channel errors.
type AuditLogger interface {
	LogCommand(action, command string, seq uint32, err error)
}

// AuditLoggers fans every record out to each sink in order.
type AuditLoggers []AuditLogger

// LogCommand implements AuditLogger.
func (a AuditLoggers) LogCommand(action, command string, seq uint32, err error) {
	for _, l := range a {
		if l != nil {
			l.LogCommand(action, command, seq, err)
		}
	}
}

// Scheduler batches queued entries into one datagram per cycle and sends it
// to the vehicle.
type Scheduler struct {
	conn     net.PacketConn
	vehicle  net.Addr
	interval time.Duration
	logger   logrus.FieldLogger
	audit    AuditLogger

	mu    sync.Mutex
	queue []Entry
	err   error

	// cycleMu keeps cycles from overlapping.
	cycleMu sync.Mutex
	payload *Payload
	seq     atomic.Uint32

	startOnce sync.Once
	haltOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the cycle period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithPayloadLimit sets the maximum datagram size in bytes.
func WithPayloadLimit(n int) Option {
	return func(s *Scheduler) { s.payload = NewPayload(n) }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.logger = logging.Component(log, "command") }
}

// WithAuditLogger sets the audit sink.
func WithAuditLogger(a AuditLogger) Option {
	return func(s *Scheduler) { s.audit = a }
}

// NewScheduler creates a scheduler sending on conn to vehicle. The caller
// owns conn and may close it after Shutdown returns.
func NewScheduler(conn net.PacketConn, vehicle net.Addr, opts ...Option) *Scheduler {
	s := &Scheduler{
		conn:     conn,
		vehicle:  vehicle,
		interval: DefaultInterval,
		logger:   logging.Component(nil, "command"),
		payload:  NewPayload(DefaultPayloadLimit),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the send cycle every interval until Shutdown or a send failure.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.WithFields(logrus.Fields{
			"vehicle":  s.vehicle.String(),
			"interval": s.interval.String(),
			"limit":    s.payload.Limit(),
		}).Info("command scheduler started")

		s.wg.Add(1)
		go s.loop()
	})
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	// A ticker drops ticks that fire while a cycle is still running.
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.RunCycle(); err != nil {
				return
			}
		}
	}
}

// Enqueue appends e to the queue. Entries are not deduplicated.
func (s *Scheduler) Enqueue(e Entry) error {
	select {
	case <-s.done:
		return ErrSchedulerStopped
	default:
	}

	s.mu.Lock()
	s.queue = append(s.queue, e)
	n := len(s.queue)
	s.mu.Unlock()

	s.logger.WithField("queued", n).Debug("command enqueued")
	return nil
}

// RunCycle runs one send cycle immediately. It is what the periodic loop
// calls and is safe to call concurrently with it.
func (s *Scheduler) RunCycle() error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	select {
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSchedulerStopped
	default:
	}

	// Entries run without the queue lock so they may enqueue or read shared
	// state. Anything enqueued meanwhile is kept after the survivors.
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	kept := make([]Entry, 0, len(pending))
	for _, e := range pending {
		if !e.Tick() {
			continue
		}

		seq := s.seq.Add(1)
		cmd := e.Command(seq)

		err := ValidateCommand(cmd)
		if err == nil {
			err = s.payload.Append(cmd)
		}
		if err != nil {
			s.drop(e, cmd, seq, err)
			continue
		}
		kept = append(kept, e)
	}

	s.mu.Lock()
	s.queue = append(kept, s.queue...)
	s.mu.Unlock()

	return s.flush()
}

func (s *Scheduler) drop(e Entry, cmd string, seq uint32, err error) {
	reason := &DropError{Command: cmd, Seq: seq, Err: err}

	s.logger.WithFields(logrus.Fields{
		"seq":     seq,
		"command": cmd,
	}).WithError(err).Warn("command dropped")

	if s.audit != nil {
		s.audit.LogCommand(ActionDropped, cmd, seq, err)
	}
	e.OnDropped(reason)
}

func (s *Scheduler) flush() error {
	if s.payload.Len() == 0 {
		return nil
	}
	defer s.payload.Reset()

	s.logger.WithField("bytes", s.payload.Len()).Debug("sending command payload")

	if _, err := s.conn.WriteTo(s.payload.Bytes(), s.vehicle); err != nil {
		chErr := &ChannelError{Op: "send", Err: err}
		s.fail(chErr)
		return chErr
	}
	return nil
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	s.logger.WithError(err).Error("command channel failed, scheduler stopped")
	if s.audit != nil {
		s.audit.LogCommand(ActionChannelFailure, "", s.seq.Load(), err)
	}
	s.halt()
}

func (s *Scheduler) halt() {
	s.haltOnce.Do(func() { close(s.done) })
}

// Shutdown stops future cycles and waits for an in-flight one to finish.
func (s *Scheduler) Shutdown() {
	s.halt()
	s.wg.Wait()

	// Serialize with a RunCycle called outside the loop.
	s.cycleMu.Lock()
	s.cycleMu.Unlock()

	s.logger.WithField("seq", s.seq.Load()).Info("command scheduler stopped")
}

// Done is closed once the scheduler stops cycling.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the channel error that stopped the scheduler, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Len returns the number of queued entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Seq returns the last sequence number handed to an entry.
func (s *Scheduler) Seq() uint32 {
	return s.seq.Load()
}
