package idle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
)

var (
	ErrMonitorClosed   = errors.New("activity monitor closed")
	ErrAlreadyRestored = errors.New("interceptor already restored")
)

// ActivityMonitor turns idle notifications into user activity reports. It implements
// [applock.TouchInterceptor].
//
// The seat is considered active from creation and after every resume, and idle after every idle
// event. Interceptors are called on resume and, while the seat is active, once every threshold.
// The idle protocol only reports input after a period of inactivity, the periodic calls stand in
// for the input that happens in between.
type ActivityMonitor struct {
	threshold    time.Duration
	notification Notification
	idle         chan struct{}
	resume       chan struct{}
	closed       chan struct{}
	closeOnce    sync.Once
	done         chan struct{}

	mu      sync.Mutex
	handler func()
}

// NewActivityMonitor creates an idle notification on controller that fires after threshold of
// inactivity. The notification lives until Close, when the controller requires a dispatch
// goroutine, call this before dispatching starts.
func NewActivityMonitor(controller Controller, threshold time.Duration) (*ActivityMonitor, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("activity threshold must be positive, got %s", threshold)
	}

	m := &ActivityMonitor{
		threshold: threshold,
		idle:      make(chan struct{}),
		resume:    make(chan struct{}),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	notification, err := controller.AddNotification(&CreateIdleNotification{
		Duration: threshold,
		Idle:     m.idle,
		Resume:   m.resume,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add idle notification: %w", err)
	}
	m.notification = notification

	go m.run()

	return m, nil
}

func (m *ActivityMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.threshold)
	defer ticker.Stop()

	active := true
	for {
		select {
		case <-m.closed:
			return
		case <-m.idle:
			active = false
		case <-m.resume:
			active = true
			ticker.Reset(m.threshold)
			m.notify()
		case <-ticker.C:
			if active {
				m.notify()
			}
		}
	}
}

func (m *ActivityMonitor) notify() {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// Intercept chains handler in front of the handlers installed before it. The returned Restore
// puts back the chain that was active when Intercept was called.
func (m *ActivityMonitor) Intercept(handler func()) (applock.Restore, error) {
	if handler == nil {
		return nil, errors.New("Intercept: handler cannot be nil")
	}

	select {
	case <-m.closed:
		return nil, ErrMonitorClosed
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.handler
	m.handler = func() {
		handler()
		if previous != nil {
			previous()
		}
	}

	var restored bool
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if restored {
			return ErrAlreadyRestored
		}
		restored = true
		m.handler = previous
		return nil
	}, nil
}

// Close stops reporting activity and destroys the idle notification.
func (m *ActivityMonitor) Close() error {
	err := ErrMonitorClosed
	m.closeOnce.Do(func() {
		close(m.closed)
		<-m.done

		m.mu.Lock()
		m.handler = nil
		m.mu.Unlock()

		err = m.notification.Close()
	})
	return err
}
