package applock

import (
	"log/slog"
	"time"
)

// Timer is a scheduled callback that can be cancelled before it fires.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer already fired or was
	// stopped. Calling Stop more than once is safe.
	Stop() bool
}

// Clock schedules callbacks. Callbacks passed to AfterFunc must run on the engine's goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Executor runs functions on the engine's goroutine. Post may be called from any goroutine.
type Executor interface {
	Post(f func())
}

// Unsubscribe removes a subscription. It may fail, for example when called twice.
type Unsubscribe func() error

// Restore undoes an interception and reinstates the handler chain that existed before it.
type Restore func() error

// Phase is the visibility of the application as reported by a LifecycleSource.
type Phase int

const (
	PhaseForeground Phase = iota
	PhaseBackground
)

func (p Phase) String() string {
	if p == PhaseBackground {
		return "background"
	}
	return "foreground"
}

// LifecycleSource reports foreground/background transitions.
// Handlers may be called from any goroutine.
type LifecycleSource interface {
	SubscribeLifecycle(handler func(Phase)) (Unsubscribe, error)
}

// ScreenSignal is a signal about the state of the screen or the user session.
type ScreenSignal int

const (
	// ScreenOff means the screen was turned off, the session was locked or the system is about
	// to sleep.
	ScreenOff ScreenSignal = iota
	// ScreenOn means the screen was turned on. The session may still be locked.
	ScreenOn
	// UserPresent means the user unlocked the device or session.
	UserPresent
)

func (s ScreenSignal) String() string {
	switch s {
	case ScreenOff:
		return "screen_off"
	case ScreenOn:
		return "screen_on"
	case UserPresent:
		return "user_present"
	default:
		return "unknown"
	}
}

// ScreenSource reports screen and session lock signals.
// Handlers may be called from any goroutine.
type ScreenSource interface {
	SubscribeScreen(handler func(ScreenSignal)) (Unsubscribe, error)
}

// CaptureSource reports whether the screen is being captured or recorded.
// Handlers may be called from any goroutine.
type CaptureSource interface {
	SubscribeCapture(handler func(captured bool)) (Unsubscribe, error)
}

// TouchInterceptor observes user activity without consuming it.
//
// Intercept chains handler in front of the existing activity handling. The returned Restore
// removes exactly this interception. Handlers may be called from any goroutine.
type TouchInterceptor interface {
	Intercept(handler func()) (Restore, error)
}

// Overlay hides the application content while the screen is captured.
type Overlay interface {
	Show(message string) error
	Hide() error
}

// Platform holds the collaborators of an Engine. Clock and Executor are required, everything
// else is optional.
type Platform struct {
	Clock    Clock
	Executor Executor
	Emitter  Emitter
	Overlay  Overlay

	Lifecycle LifecycleSource
	Screen    []ScreenSource
	Capture   CaptureSource
	Touch     TouchInterceptor

	Logger *slog.Logger
}
