package lock

import (
	"errors"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/godbus/dbus/v5"
)

var (
	ErrClosed        = errors.New("session watcher closed")
	ErrNotSubscribed = errors.New("handler is not subscribed")
)

// translateSessionSignal maps a login1 session signal to a screen signal:
//   - Lock, and LockedHint becoming true, mean the session should be or was locked;
//   - Unlock, and LockedHint becoming false, mean the user unlocked the session.
//
// The second return value is false for signals that carry no lock information.
func translateSessionSignal(s *dbus.Signal) (applock.ScreenSignal, bool) {
	switch s.Name {
	case dbusSessionInterface + ".Lock":
		return applock.ScreenOff, true
	case dbusSessionInterface + ".Unlock":
		return applock.UserPresent, true
	case dbusPropertiesInterface + ".PropertiesChanged":
		if len(s.Body) < 2 {
			return 0, false
		}
		changedProperties, ok := s.Body[1].(map[string]dbus.Variant)
		if !ok {
			return 0, false
		}
		lockedHintProperty, hasLockedHint := changedProperties["LockedHint"]
		if !hasLockedHint {
			return 0, false
		}
		isLocked, ok := lockedHintProperty.Value().(bool)
		if !ok {
			return 0, false
		}
		if isLocked {
			return applock.ScreenOff, true
		}
		return applock.UserPresent, true
	}

	return 0, false
}
