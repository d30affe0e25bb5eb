package control

import (
	"time"

	"github.com/tabone/drone/internal/command"
)

type axis int

const (
	axisRoll axis = iota
	axisPitch
	axisGaz
	axisYaw
	axisCount
)

// axes holds the direction of each axis: -1, 0 or +1.
type axes [axisCount]int

// Movement returns the progressive command currently sent every cycle.
func (c *Client) Movement() command.Movement {
	c.mu.Lock()
	a := c.axes
	c.mu.Unlock()

	value := func(dir int) float32 {
		switch {
		case dir > 0:
			return c.speed
		case dir < 0:
			return -c.speed
		}
		return 0
	}
	return command.Movement{
		Roll:  value(a[axisRoll]),
		Pitch: value(a[axisPitch]),
		Gaz:   value(a[axisGaz]),
		Yaw:   value(a[axisYaw]),
	}
}

// set points ax in dir. A positive d resets the axis after d; a later call
// on the same axis replaces the pending reset.
func (c *Client) set(ax axis, dir int, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.axes[ax] = dir
	if t := c.timers[ax]; t != nil {
		t.Stop()
		c.timers[ax] = nil
	}
	if d <= 0 {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.timers[ax] == t {
			c.axes[ax] = 0
			c.timers[ax] = nil
		}
	})
	c.timers[ax] = t
}

// MoveForward tilts forward, for d if d > 0 or until reset.
func (c *Client) MoveForward(d time.Duration) { c.set(axisPitch, -1, d) }

// MoveBack tilts backward.
func (c *Client) MoveBack(d time.Duration) { c.set(axisPitch, 1, d) }

// MoveLeft rolls left.
func (c *Client) MoveLeft(d time.Duration) { c.set(axisRoll, -1, d) }

// MoveRight rolls right.
func (c *Client) MoveRight(d time.Duration) { c.set(axisRoll, 1, d) }

// MoveUp climbs.
func (c *Client) MoveUp(d time.Duration) { c.set(axisGaz, 1, d) }

// MoveDown descends.
func (c *Client) MoveDown(d time.Duration) { c.set(axisGaz, -1, d) }

// SpinLeft yaws counter-clockwise.
func (c *Client) SpinLeft(d time.Duration) { c.set(axisYaw, -1, d) }

// SpinRight yaws clockwise.
func (c *Client) SpinRight(d time.Duration) { c.set(axisYaw, 1, d) }

func (c *Client) ResetPitch() { c.set(axisPitch, 0, 0) }
func (c *Client) ResetRoll()  { c.set(axisRoll, 0, 0) }
func (c *Client) ResetGaz()   { c.set(axisGaz, 0, 0) }
func (c *Client) ResetYaw()   { c.set(axisYaw, 0, 0) }

// Hover resets every axis.
func (c *Client) Hover() {
	for ax := axisRoll; ax < axisCount; ax++ {
		c.set(ax, 0, 0)
	}
}
