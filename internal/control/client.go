package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tabone/drone/internal/command"
	"github.com/tabone/drone/internal/logging"
	"github.com/tabone/drone/internal/navdata"
)

// DefaultMoveSpeed is the magnitude sent for a non-zero movement axis.
const DefaultMoveSpeed = 0.5

// Scheduler is the part of command.Scheduler the client needs.
type Scheduler interface {
	Enqueue(e command.Entry) error
	Done() <-chan struct{}
	Err() error
}

// Client drives the vehicle.
type Client struct {
	sched  Scheduler
	state  *navdata.State
	speed  float32
	once   bool
	logger logrus.FieldLogger

	mu        sync.Mutex
	axes      axes
	timers    [axisCount]*time.Timer
	started   bool
	unsubMode func()
}

// Option configures a Client.
type Option func(*Client)

// WithMoveSpeed sets the value sent for a non-zero axis, in (0, 1].
func WithMoveSpeed(v float32) Option {
	return func(c *Client) {
		if v > 0 && v <= 1 {
			c.speed = v
		}
	}
}

// WithOneShot makes Trim, ResetWatchdog, Config and Ctrl leave the queue
// after they are sent once. By default they are retransmitted every cycle.
func WithOneShot(enabled bool) Option {
	return func(c *Client) { c.once = enabled }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = logging.Component(log, "control") }
}

// NewClient creates a client. Call Start before issuing commands.
func NewClient(sched Scheduler, state *navdata.State, opts ...Option) *Client {
	c := &Client{
		sched:  sched,
		state:  state,
		speed:  DefaultMoveSpeed,
		logger: logging.Component(nil, "control"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers the handshake reactor and enqueues the continuous
// movement command.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	move := command.EntryFuncs{
		CommandFunc: func(seq uint32) string { return command.PCMD(seq, c.Movement()) },
		DroppedFunc: func(reason error) {
			c.logger.WithError(reason).Error("movement command dropped")
		},
	}
	if err := c.sched.Enqueue(move); err != nil {
		return err
	}

	c.unsubMode = c.state.OnModeChange(c.react)
	c.started = true
	return nil
}

// Close removes the handshake reactor and cancels pending movement resets.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubMode != nil {
		c.unsubMode()
		c.unsubMode = nil
	}
	for i, t := range c.timers {
		if t != nil {
			t.Stop()
			c.timers[i] = nil
		}
	}
}

func (c *Client) react(t navdata.Transition) {
	var e command.Entry
	switch t.To {
	case navdata.ModeBootstrap:
		e = c.plain(func(seq uint32) string {
			return command.Config(seq, "general:navdata_demo", "TRUE")
		})
	case navdata.ModeHandshake:
		e = c.plain(func(seq uint32) string {
			return command.Ctrl(seq, command.AckControlMode, 0)
		})
	default:
		return
	}

	c.logger.WithField("mode", t.To.String()).Debug("answering navdata handshake")
	if err := c.sched.Enqueue(e); err != nil {
		c.logger.WithError(err).Warn("handshake command not queued")
	}
}

// Takeoff sends REF takeoff until the vehicle reports it is flying.
func (c *Client) Takeoff(ctx context.Context) error {
	return c.until(ctx, func(seq uint32) string { return command.Ref(seq, command.RefTakeoff) },
		func(f navdata.StatusFlags) bool { return f.Fly })
}

// Land sends REF land until the vehicle reports it is no longer flying.
func (c *Client) Land(ctx context.Context) error {
	return c.until(ctx, func(seq uint32) string { return command.Ref(seq, command.RefLand) },
		func(f navdata.StatusFlags) bool { return !f.Fly })
}

// Mayday sends REF emergency until the vehicle reports an emergency landing.
func (c *Client) Mayday(ctx context.Context) error {
	return c.until(ctx, func(seq uint32) string { return command.Ref(seq, command.RefEmergency) },
		func(f navdata.StatusFlags) bool { return f.EmergencyLanding })
}

// Trim sends FTRIM. The vehicle must be on flat ground.
func (c *Client) Trim(ctx context.Context) error {
	return c.send(ctx, command.FlatTrim, c.once)
}

// TrimOnce sends FTRIM a single time regardless of WithOneShot. Callers that
// may trim repeatedly, such as remote operators, use it so their requests
// do not accumulate in the queue.
func (c *Client) TrimOnce(ctx context.Context) error {
	return c.send(ctx, command.FlatTrim, true)
}

// ResetWatchdog sends COMWDG.
func (c *Client) ResetWatchdog(ctx context.Context) error {
	return c.send(ctx, command.ComWatchdog, c.once)
}

// Config sends a CONFIG key/value pair.
func (c *Client) Config(ctx context.Context, key, value string) error {
	return c.send(ctx, func(seq uint32) string { return command.Config(seq, key, value) }, c.once)
}

// Ctrl sends a CTRL command.
func (c *Client) Ctrl(ctx context.Context, mode, value int) error {
	return c.send(ctx, func(seq uint32) string { return command.Ctrl(seq, mode, value) }, c.once)
}

// Wait blocks for d or until ctx is done.
func (c *Client) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// until enqueues render and keeps it queued until done reports true for
// the latest flags.
func (c *Client) until(ctx context.Context, render func(uint32) string, done func(navdata.StatusFlags) bool) error {
	res := newResult()
	var abandoned atomic.Bool

	e := command.EntryFuncs{
		CommandFunc: render,
		TickFunc: func() bool {
			if abandoned.Load() {
				return false
			}
			if done(c.state.Flags()) {
				res.finish(nil)
				return false
			}
			return true
		},
		DroppedFunc: res.finish,
	}

	return c.enqueueAndWait(ctx, e, res, &abandoned)
}

// send enqueues a command that reports success on its first tick. Unless
// once is set the entry stays queued afterwards.
func (c *Client) send(ctx context.Context, render func(uint32) string, once bool) error {
	res := newResult()
	var abandoned atomic.Bool

	var e command.Entry = command.EntryFuncs{
		CommandFunc: render,
		TickFunc: func() bool {
			if abandoned.Load() {
				return false
			}
			res.finish(nil)
			return true
		},
		DroppedFunc: res.finish,
	}
	if once {
		e = command.Once(e)
	}

	return c.enqueueAndWait(ctx, e, res, &abandoned)
}

// plain builds a fire-and-forget entry, wrapped with command.Once in
// one-shot mode.
func (c *Client) plain(render func(uint32) string) command.Entry {
	var e command.Entry = command.EntryFuncs{CommandFunc: render}
	if c.once {
		e = command.Once(e)
	}
	return e
}

func (c *Client) enqueueAndWait(ctx context.Context, e command.Entry, res *result, abandoned *atomic.Bool) error {
	if err := c.sched.Enqueue(e); err != nil {
		return err
	}

	select {
	case err := <-res.ch:
		return err
	case <-ctx.Done():
		abandoned.Store(true)
		return ctx.Err()
	case <-c.sched.Done():
		if err := c.sched.Err(); err != nil {
			return err
		}
		return command.ErrSchedulerStopped
	}
}

// result delivers the first outcome of an entry.
type result struct {
	once sync.Once
	ch   chan error
}

func newResult() *result {
	return &result{ch: make(chan error, 1)}
}

func (r *result) finish(err error) {
	r.once.Do(func() { r.ch <- err })
}
