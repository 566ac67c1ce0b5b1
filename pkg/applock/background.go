package applock

import "time"

// OnBackground handles the application leaving the foreground. The touch subsystem is torn
// down and, when enabled, the background timer starts. Repeated calls are ignored.
func (e *Engine) OnBackground() {
	if e.inBackground {
		return
	}
	e.inBackground = true
	e.debug("entered background")

	e.stopTouchSubsystem()
	if e.cfg.BackgroundLockEnabled {
		e.startBackgroundTimer()
	}
	e.emit(Event{Name: EventEnterBackground})
}

// OnForeground handles the application returning to the foreground. The background timer is
// cancelled and the touch subsystem restarts when enabled.
//
// OnForeground never unlocks: a locked engine stays locked until the host calls SetLocked(false).
func (e *Engine) OnForeground() {
	if !e.inBackground {
		return
	}
	e.inBackground = false
	e.debug("entered foreground")

	if e.background.Stop() {
		e.debug("background timer stopped")
	}
	e.startTouchSubsystem()
	e.emit(Event{Name: EventEnterForeground})
}

// SetBackgroundLockEnabled enables or disables the background lock. Enabling it while in the
// background starts the timer unless it is already running.
func (e *Engine) SetBackgroundLockEnabled(enabled bool) {
	e.cfg.BackgroundLockEnabled = enabled
	e.debug("background lock", "enabled", enabled)

	if enabled && e.inBackground {
		if !e.background.active() {
			e.startBackgroundTimer()
		}
	} else if e.background.Stop() {
		e.debug("background timer stopped")
	}
}

// SetBackgroundTimeout changes the background timeout. A running background timer restarts
// with the new timeout, counting from now.
func (e *Engine) SetBackgroundTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return ErrInvalidTimeout
	}
	e.setBackgroundTimeout(timeout)
	return nil
}

func (e *Engine) setBackgroundTimeout(timeout time.Duration) {
	e.cfg.BackgroundTimeout = timeout
	e.debug("background timeout", "timeout", timeout)

	if e.background.active() && e.cfg.BackgroundLockEnabled {
		e.startBackgroundTimer()
	}
}

func (e *Engine) startBackgroundTimer() {
	e.background.Stop()
	if !e.cfg.BackgroundLockEnabled || e.locked || !e.inBackground {
		return
	}
	e.debug("background timer started", "timeout", e.cfg.BackgroundTimeout)
	e.background.Start(e.cfg.BackgroundTimeout, e.tick())
}

func (e *Engine) onBackgroundTimeout() {
	if !e.cfg.BackgroundLockEnabled || e.locked {
		return
	}
	e.debug("background timeout")
	e.lock(ReasonBackgroundTimeout)
}
