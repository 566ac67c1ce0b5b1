package applock

import "time"

// countdown fires expire once timeout has elapsed since Start.
//
// With a tick of zero it wakes up once, at the deadline. With a positive tick it wakes up at
// least every tick and reports the remaining time, but the deadline stays the same: the next
// wake-up is always min(tick, remaining).
//
// Callbacks scheduled by an earlier Start or cancelled by Stop are ignored through gen, as a
// timer callback may already be queued on the executor when it is stopped.
type countdown struct {
	clock   Clock
	timer   Timer
	gen     uint64
	start   time.Time
	timeout time.Duration
	tick    time.Duration

	onTick func(remaining time.Duration)
	expire func()
}

func (c *countdown) active() bool {
	return c.timer != nil
}

// Start cancels any running countdown and starts a new one from now.
func (c *countdown) Start(timeout, tick time.Duration) {
	c.Stop()
	c.start = c.clock.Now()
	c.timeout = timeout
	c.tick = tick
	c.schedule(c.gen)
}

// SetTick changes the granularity of a running countdown without moving its deadline.
func (c *countdown) SetTick(tick time.Duration) {
	c.tick = tick
	if !c.active() {
		return
	}
	c.timer.Stop()
	c.gen++
	c.schedule(c.gen)
}

// Stop cancels the countdown. It returns false if nothing was running.
func (c *countdown) Stop() bool {
	c.gen++
	if c.timer == nil {
		return false
	}
	c.timer.Stop()
	c.timer = nil
	return true
}

func (c *countdown) remaining() time.Duration {
	return c.timeout - c.clock.Now().Sub(c.start)
}

func (c *countdown) schedule(gen uint64) {
	wait := c.remaining()
	if c.tick > 0 && c.tick < wait {
		wait = c.tick
	}
	if wait < 0 {
		wait = 0
	}
	c.timer = c.clock.AfterFunc(wait, func() {
		c.fire(gen)
	})
}

func (c *countdown) fire(gen uint64) {
	if gen != c.gen || c.timer == nil {
		return
	}
	c.timer = nil

	remaining := c.remaining()
	if remaining <= 0 {
		c.gen++
		c.expire()
		return
	}

	if c.tick > 0 && c.onTick != nil {
		c.onTick(remaining)
	}
	c.schedule(gen)
}
