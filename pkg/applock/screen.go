package applock

// SetScreenLockEnabled enables or disables the screen-lock detector. While enabled the engine is
// subscribed to every ScreenSource, in the foreground as well as in the background.
func (e *Engine) SetScreenLockEnabled(enabled bool) {
	e.cfg.ScreenLockEnabled = enabled
	e.debug("screen lock", "enabled", enabled)

	if enabled {
		e.startScreenDetection()
	} else {
		e.stopScreenDetection()
	}
}

// StopScreenDetection unsubscribes from the screen sources without changing the configuration.
// SetScreenLockEnabled(true) subscribes again.
func (e *Engine) StopScreenDetection() {
	e.stopScreenDetection()
}

// OnScreenOff locks the engine immediately when screen locking is enabled.
func (e *Engine) OnScreenOff() {
	if !e.cfg.ScreenLockEnabled || e.locked {
		return
	}
	e.debug("screen turned off")
	e.lock(ReasonScreenLock)
}

// OnScreenOn does nothing: turning the screen on never unlocks.
func (e *Engine) OnScreenOn() {
	e.debug("screen turned on")
}

// OnUserPresent does nothing: unlocking the device never unlocks the application.
func (e *Engine) OnUserPresent() {
	e.debug("user unlocked the device")
}

func (e *Engine) onScreenSignal(s ScreenSignal) {
	switch s {
	case ScreenOff:
		e.OnScreenOff()
	case ScreenOn:
		e.OnScreenOn()
	case UserPresent:
		e.OnUserPresent()
	}
}

func (e *Engine) startScreenDetection() {
	if len(e.screenUnsubs) > 0 {
		return
	}
	for _, source := range e.platform.Screen {
		unsub, err := source.SubscribeScreen(func(s ScreenSignal) {
			e.post(func() {
				e.onScreenSignal(s)
			})
		})
		if err != nil {
			e.failure("subscribe to screen signals", err)
			continue
		}
		e.screenUnsubs = append(e.screenUnsubs, unsub)
	}
	if len(e.screenUnsubs) > 0 {
		e.debug("screen detection started", "sources", len(e.screenUnsubs))
	}
}

func (e *Engine) stopScreenDetection() {
	if len(e.screenUnsubs) == 0 {
		return
	}
	for _, unsub := range e.screenUnsubs {
		if err := unsub(); err != nil {
			e.failure("unsubscribe from screen signals", err)
		}
	}
	e.screenUnsubs = nil
	e.debug("screen detection stopped")
}

// OnScreenCaptureChanged shows the privacy overlay while the screen is captured and
// protection is enabled. It has no influence on the lock state.
func (e *Engine) OnScreenCaptureChanged(captured bool) {
	e.captured = captured
	e.debug("screen capture changed", "captured", captured)
	e.updateOverlay()
}

// SetScreenRecordingProtection enables or disables the privacy overlay. warning is the message
// shown on the overlay.
func (e *Engine) SetScreenRecordingProtection(enabled bool, warning string) {
	e.captureProtection = enabled
	e.captureWarning = warning
	e.debug("screen recording protection", "enabled", enabled)
	e.updateOverlay()
}

func (e *Engine) updateOverlay() {
	if e.captureProtection && e.captured {
		e.showOverlay()
	} else {
		e.hideOverlay()
	}
}

func (e *Engine) showOverlay() {
	if e.overlayShown || e.platform.Overlay == nil {
		return
	}
	if err := e.platform.Overlay.Show(e.captureWarning); err != nil {
		e.failure("show overlay", err)
		return
	}
	e.overlayShown = true
}

func (e *Engine) hideOverlay() {
	if !e.overlayShown {
		return
	}
	if err := e.platform.Overlay.Hide(); err != nil {
		e.failure("hide overlay", err)
	}
	e.overlayShown = false
}
