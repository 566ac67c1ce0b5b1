package idle

import (
	"fmt"
	"math"
	"time"
)

type Controller interface {
	AddNotification(notificationInput *CreateIdleNotification) (Notification, error)
	// Close closes any connection the Controller might have. Do not use the Controller after
	// this.
	Close() error
}

type Notification interface {
	// Close destroys this notification.
	// Safe to be called from another goroutine.
	Close() error
}

type CreateIdleNotification struct {
	Duration time.Duration

	// Idle is the channel that will be notified when the system has idled.
	Idle chan<- struct{}

	// Resume is the channel that will be notified when the system has resumed.
	Resume chan<- struct{}
}

func (c *CreateIdleNotification) validate() error {
	if c.Idle == nil && c.Resume == nil {
		return fmt.Errorf("either Idle or Resume is required")
	}
	return nil
}

// timeoutMs converts d to the millisecond timeout of the idle protocol. Negative durations
// become 0.
func timeoutMs(d time.Duration) (uint32, error) {
	durationMs := d.Milliseconds()
	switch {
	case durationMs > math.MaxUint32:
		return 0, fmt.Errorf("duration too large, %d > %d", durationMs, uint32(math.MaxUint32))
	case durationMs < 0:
		return 0, nil
	}
	return uint32(durationMs), nil
}
