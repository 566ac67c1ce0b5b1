package applock

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultBackgroundTimeout = 60 * time.Second
	DefaultTouchIdleTimeout  = 30 * time.Second

	// TouchDebounce is the minimum spacing between two accepted touch signals. A signal arriving
	// sooner after the last accepted one does not reset the touch-idle timer.
	TouchDebounce = 100 * time.Millisecond

	// debugTick is the countdown granularity used when Config.Debug is set.
	debugTick = time.Second
)

var ErrInvalidTimeout = errors.New("timeout must be greater than zero")

// Config is the complete lock configuration of an Engine.
type Config struct {
	// ScreenLockEnabled locks the application when the screen turns off or the session locks.
	ScreenLockEnabled bool

	// BackgroundLockEnabled locks the application after BackgroundTimeout in the background.
	BackgroundLockEnabled bool
	BackgroundTimeout     time.Duration

	// TouchIdleEnabled locks the application after TouchIdleTimeout without user activity
	// while it is in the foreground.
	TouchIdleEnabled bool
	TouchIdleTimeout time.Duration

	// Debug enables diagnostic logging and a one second countdown granularity.
	// It never changes when a lock happens.
	Debug bool
}

func DefaultConfig() Config {
	return Config{
		BackgroundTimeout: DefaultBackgroundTimeout,
		TouchIdleTimeout:  DefaultTouchIdleTimeout,
	}
}

// Options holds a partial Config. Nil fields keep their current value when passed to
// Engine.Configure.
type Options struct {
	ScreenLockEnabled     *bool
	BackgroundLockEnabled *bool
	BackgroundTimeout     *time.Duration
	TouchIdleEnabled      *bool
	TouchIdleTimeout      *time.Duration
	Debug                 *bool
}

// Validate reports whether the options can be applied as a whole.
func (o Options) Validate() error {
	if o.BackgroundTimeout != nil && *o.BackgroundTimeout <= 0 {
		return fmt.Errorf("background timeout %s: %w", *o.BackgroundTimeout, ErrInvalidTimeout)
	}
	if o.TouchIdleTimeout != nil && *o.TouchIdleTimeout <= 0 {
		return fmt.Errorf("touch timeout %s: %w", *o.TouchIdleTimeout, ErrInvalidTimeout)
	}
	return nil
}

// Merge returns c with every non-nil field of o applied.
func (c Config) Merge(o Options) Config {
	if o.ScreenLockEnabled != nil {
		c.ScreenLockEnabled = *o.ScreenLockEnabled
	}
	if o.BackgroundLockEnabled != nil {
		c.BackgroundLockEnabled = *o.BackgroundLockEnabled
	}
	if o.BackgroundTimeout != nil {
		c.BackgroundTimeout = *o.BackgroundTimeout
	}
	if o.TouchIdleEnabled != nil {
		c.TouchIdleEnabled = *o.TouchIdleEnabled
	}
	if o.TouchIdleTimeout != nil {
		c.TouchIdleTimeout = *o.TouchIdleTimeout
	}
	if o.Debug != nil {
		c.Debug = *o.Debug
	}
	return c
}

// Bool returns a pointer to v, for use in Options.
func Bool(v bool) *bool {
	return &v
}

// Duration returns a pointer to d, for use in Options.
func Duration(d time.Duration) *time.Duration {
	return &d
}

// Seconds converts a number of seconds, as used on the command surface, to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
