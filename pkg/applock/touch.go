package applock

import "time"

// The touch subsystem is the touch listener plus the touch-idle timer. It runs only while
// touch-idle locking is enabled, the engine is unlocked and the application is in the
// foreground. When a TouchInterceptor is configured the timer additionally requires the
// listener to be installed; without one the host reports activity through OnTouchSignal.

func (e *Engine) touchEligible() bool {
	return e.cfg.TouchIdleEnabled && !e.locked && !e.inBackground
}

// OnTouchSignal handles user activity. It restarts the touch-idle timer unless the last
// accepted signal arrived less than TouchDebounce ago.
func (e *Engine) OnTouchSignal() {
	if !e.touchEligible() || !e.touch.active() {
		return
	}

	now := e.platform.Clock.Now()
	if !e.lastTouch.IsZero() && now.Sub(e.lastTouch) < TouchDebounce {
		return
	}
	e.lastTouch = now

	e.debug("user interaction, restarting touch timer")
	e.startTouchTimer()
}

// RestartTouchTimer reinstalls the touch listener and restarts the touch-idle timer. Hosts use
// it when their own UI consumed activity the listener could not observe.
func (e *Engine) RestartTouchTimer() {
	if !e.touchEligible() {
		return
	}
	e.debug("restarting touch timer on request")
	e.setupTouchListener()
	e.startTouchTimer()
}

func (e *Engine) SetTouchIdleEnabled(enabled bool) {
	e.cfg.TouchIdleEnabled = enabled
	e.debug("touch idle lock", "enabled", enabled)

	if !e.touchEligible() {
		e.stopTouchSubsystem()
		return
	}
	e.setupTouchListener()
	if !e.touch.active() {
		e.startTouchTimer()
	}
}

// SetTouchIdleTimeout changes the touch-idle timeout. A running touch timer restarts with the
// new timeout, counting from now.
func (e *Engine) SetTouchIdleTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return ErrInvalidTimeout
	}
	e.setTouchIdleTimeout(timeout)
	return nil
}

func (e *Engine) setTouchIdleTimeout(timeout time.Duration) {
	e.cfg.TouchIdleTimeout = timeout
	e.debug("touch timeout", "timeout", timeout)

	if e.touch.active() && e.cfg.TouchIdleEnabled {
		e.startTouchTimer()
	}
}

// AttachTouchInterceptor replaces the TouchInterceptor, for example when the host recreated its
// window. The listener is installed on the new interceptor right away when eligible.
func (e *Engine) AttachTouchInterceptor(t TouchInterceptor) {
	e.removeTouchListener()
	e.platform.Touch = t
	if !e.touchEligible() {
		return
	}
	e.setupTouchListener()
	if !e.touch.active() {
		e.startTouchTimer()
	}
}

// DetachTouchInterceptor removes the listener and forgets the TouchInterceptor. The touch-idle
// timer keeps running.
func (e *Engine) DetachTouchInterceptor() {
	e.removeTouchListener()
	e.platform.Touch = nil
}

func (e *Engine) startTouchSubsystem() {
	if !e.touchEligible() {
		e.stopTouchSubsystem()
		return
	}
	e.setupTouchListener()
	e.startTouchTimer()
}

func (e *Engine) stopTouchSubsystem() {
	if e.touch.Stop() {
		e.debug("touch timer stopped")
	}
	e.removeTouchListener()
}

func (e *Engine) startTouchTimer() {
	e.touch.Stop()
	if !e.touchEligible() {
		return
	}
	if e.platform.Touch != nil && e.touchRestore == nil {
		// The listener failed to install. Without it the timer would lock an active user out.
		return
	}
	e.debug("touch timer started", "timeout", e.cfg.TouchIdleTimeout)
	e.touch.Start(e.cfg.TouchIdleTimeout, e.tick())
}

func (e *Engine) onTouchTimeout() {
	if !e.cfg.TouchIdleEnabled || e.locked || e.inBackground {
		return
	}
	e.debug("touch timeout")
	e.lock(ReasonTouchTimeout)
}

// setupTouchListener installs the touch listener unless it is already installed.
func (e *Engine) setupTouchListener() {
	if e.touchRestore != nil || e.platform.Touch == nil {
		return
	}
	restore, err := e.platform.Touch.Intercept(func() {
		e.post(e.OnTouchSignal)
	})
	if err != nil {
		e.failure("install touch listener", err)
		return
	}
	e.touchRestore = restore
	e.lastTouch = time.Time{}
	e.debug("touch listener installed")
}

func (e *Engine) removeTouchListener() {
	if e.touchRestore == nil {
		return
	}
	restore := e.touchRestore
	e.touchRestore = nil
	if err := restore(); err != nil {
		e.failure("remove touch listener", err)
		return
	}
	e.debug("touch listener removed")
}
