package applock

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Engine owns the lock state of an application and is the only authority that changes it.
//
// Create one with New, call Start (or Init) once the host is ready, and Close when the host
// goes away. Engine is not safe for concurrent use, see the package documentation.
type Engine struct {
	platform Platform
	logger   *slog.Logger

	cfg Config

	locked       bool
	inBackground bool
	listening    bool
	closed       bool

	background countdown
	touch      countdown

	touchRestore Restore
	lastTouch    time.Time

	lifecycleUnsub Unsubscribe
	captureUnsub   Unsubscribe
	screenUnsubs   []Unsubscribe

	captureProtection bool
	captureWarning    string
	captured          bool
	overlayShown      bool
}

// New creates an unlocked, foregrounded Engine with DefaultConfig.
// It panics if platform.Clock or platform.Executor is nil.
func New(platform Platform) *Engine {
	if platform.Clock == nil || platform.Executor == nil {
		panic("applock: Platform.Clock and Platform.Executor are required")
	}

	logger := platform.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		platform: platform,
		logger:   logger.With("component", "applock"),
		cfg:      DefaultConfig(),
	}
	e.background = countdown{
		clock:  platform.Clock,
		expire: e.onBackgroundTimeout,
		onTick: func(remaining time.Duration) {
			e.debug("background countdown", "remaining", remaining.Truncate(time.Second))
		},
	}
	e.touch = countdown{
		clock:  platform.Clock,
		expire: e.onTouchTimeout,
		onTick: func(remaining time.Duration) {
			e.debug("touch countdown", "remaining", remaining.Truncate(time.Second))
		},
	}

	return e
}

func (e *Engine) IsLocked() bool {
	return e.locked
}

func (e *Engine) IsInBackground() bool {
	return e.inBackground
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Start subscribes to the lifecycle and capture sources. Calling it again has no effect until
// the engine is closed.
func (e *Engine) Start() {
	if e.listening {
		return
	}
	e.listening = true
	e.closed = false
	e.debug("start listening")

	if e.platform.Lifecycle != nil {
		unsub, err := e.platform.Lifecycle.SubscribeLifecycle(func(p Phase) {
			e.post(func() {
				if p == PhaseBackground {
					e.OnBackground()
				} else {
					e.OnForeground()
				}
			})
		})
		if err != nil {
			e.failure("subscribe to lifecycle signals", err)
		} else {
			e.lifecycleUnsub = unsub
		}
	}

	if e.platform.Capture != nil {
		unsub, err := e.platform.Capture.SubscribeCapture(func(captured bool) {
			e.post(func() {
				e.OnScreenCaptureChanged(captured)
			})
		})
		if err != nil {
			e.failure("subscribe to capture signals", err)
		} else {
			e.captureUnsub = unsub
		}
	}
}

// Init starts listening and applies opts. This is the "init" command of the host.
func (e *Engine) Init(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	e.Start()
	return e.Configure(opts)
}

// Configure merges opts into the configuration and applies the consequences of every changed
// field. Unchanged timeouts leave running timers alone and enabling an already enabled lock does
// not restart its timer. It does not lock or unlock by itself. Nothing is applied when opts is
// invalid.
func (e *Engine) Configure(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	prev, next := e.cfg, e.cfg.Merge(opts)

	e.setDebug(next.Debug)
	if next.BackgroundTimeout != prev.BackgroundTimeout {
		e.setBackgroundTimeout(next.BackgroundTimeout)
	}
	if next.TouchIdleTimeout != prev.TouchIdleTimeout {
		e.setTouchIdleTimeout(next.TouchIdleTimeout)
	}
	if opts.ScreenLockEnabled != nil {
		e.SetScreenLockEnabled(next.ScreenLockEnabled)
	}
	if opts.BackgroundLockEnabled != nil {
		e.SetBackgroundLockEnabled(next.BackgroundLockEnabled)
	}
	if opts.TouchIdleEnabled != nil {
		e.SetTouchIdleEnabled(next.TouchIdleEnabled)
	}

	e.debug("configured",
		"screen_lock", e.cfg.ScreenLockEnabled,
		"background_lock", e.cfg.BackgroundLockEnabled,
		"background_timeout", e.cfg.BackgroundTimeout,
		"touch_idle", e.cfg.TouchIdleEnabled,
		"touch_timeout", e.cfg.TouchIdleTimeout,
	)
	return nil
}

// SetLocked is the explicit, host driven lock transition. Only changes have an effect:
// locking a locked engine or unlocking an unlocked engine emits nothing and resets nothing.
func (e *Engine) SetLocked(locked bool) {
	if locked == e.locked {
		return
	}

	if locked {
		e.lock(ReasonManual)
		return
	}

	e.locked = false
	e.debug("unlocked")
	if e.inBackground {
		e.startBackgroundTimer()
	} else {
		e.startTouchSubsystem()
	}
	e.emit(Event{Name: EventAppUnlocked})
}

// lock moves the engine to the locked state, tears down every timer and the touch listener,
// then tells the host.
func (e *Engine) lock(reason Reason) {
	if e.locked {
		return
	}
	e.locked = true
	e.stopTimers()
	e.removeTouchListener()
	e.debug("locked", "reason", reason)
	e.emit(Event{Name: EventAppLocked, Reason: reason})
}

func (e *Engine) setDebug(enabled bool) {
	if e.cfg.Debug == enabled {
		return
	}
	e.cfg.Debug = enabled
	tick := e.tick()
	e.background.SetTick(tick)
	e.touch.SetTick(tick)
}

func (e *Engine) tick() time.Duration {
	if e.cfg.Debug {
		return debugTick
	}
	return 0
}

func (e *Engine) stopTimers() {
	if e.background.Stop() {
		e.debug("background timer stopped")
	}
	if e.touch.Stop() {
		e.debug("touch timer stopped")
	}
}

// Close stops every timer, removes the touch listener and every subscription. It is safe to
// call Close more than once and before Start. Failing unsubscriptions are logged, not returned.
func (e *Engine) Close() {
	e.stopTimers()
	e.removeTouchListener()
	e.stopScreenDetection()

	var err error
	if e.lifecycleUnsub != nil {
		err = errors.Join(err, wrap("unsubscribe from lifecycle signals", e.lifecycleUnsub()))
		e.lifecycleUnsub = nil
	}
	if e.captureUnsub != nil {
		err = errors.Join(err, wrap("unsubscribe from capture signals", e.captureUnsub()))
		e.captureUnsub = nil
	}
	e.hideOverlay()

	e.listening = false
	e.closed = true
	if err != nil {
		e.failure("close", err)
	}
}

// post schedules f on the executor unless the engine was closed in the meantime.
func (e *Engine) post(f func()) {
	e.platform.Executor.Post(func() {
		if e.closed {
			return
		}
		f()
	})
}

// emit sends event to the host. Failures are dropped.
func (e *Engine) emit(event Event) {
	if e.platform.Emitter == nil {
		return
	}
	if err := e.platform.Emitter.Emit(event); err != nil {
		e.failure("emit "+string(event.Name), err)
	}
}

func (e *Engine) debug(msg string, args ...any) {
	if e.cfg.Debug {
		e.logger.Debug(msg, args...)
	}
}

// failure logs an absorbed collaborator failure.
func (e *Engine) failure(action string, err error) {
	if e.cfg.Debug {
		e.logger.Warn("failed to "+action, "error", err)
	}
}

func wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", action, err)
}
