package idle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MatthiasKunnen/go-wayland/wayland/client"
	idleNotify "github.com/MatthiasKunnen/go-wayland/wayland/staging/ext-idle-notify-v1"
)

type waylandIdleController struct {
	close     chan struct{}
	closeOnce sync.Once
	// The dispatch channel exists to synchronize the wayland communication which is not safe to be
	// done over multiple goroutines.
	dispatchChan chan func() error
	display      *client.Display
	notifier     *idleNotify.IdleNotifier
	registry     *client.Registry
	seat         *client.Seat
}

type waylandIdleNotification struct {
	closeOnce    sync.Once
	controller   *waylandIdleController
	notification *idleNotify.IdleNotification
}

func (n *waylandIdleNotification) Close() error {
	n.closeOnce.Do(func() {
		go func() {
			closeFunc := func() error {
				// Destroy must be done in the same goroutine as dispatch and other
				// Wayland interactions.
				if err := n.notification.Destroy(); err != nil {
					return fmt.Errorf("failed to close wayland idle notification: %w", err)
				}

				return nil
			}

			select {
			case <-n.controller.close:
			case n.controller.dispatchChan <- closeFunc:
			}
		}()
	})

	return nil
}

// NewWaylandIdleController sets up a new Wayland connection using ext-idle-notify-v1.
// It returns:
//   - The controller
//   - The dispatch channel, execute the functions received on this channel on the same goroutine as
//     other interactions with the Controller.
//   - Error that occurred when creating the controller.
func NewWaylandIdleController() (Controller, <-chan func() error, error) {
	m := &waylandIdleController{
		close:        make(chan struct{}),
		dispatchChan: make(chan func() error),
	}
	var err error
	m.display, err = client.Connect("")
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to Wayland server: %w", err)
	}

	m.registry, err = m.display.GetRegistry()
	if err != nil {
		return nil, nil, errors.Join(
			fmt.Errorf("error getting Wayland registry: %w", err),
			m.Close(),
		)
	}

	if err := m.bindGlobals(); err != nil {
		return nil, nil, errors.Join(err, m.Close())
	}

	if m.notifier == nil {
		return nil, nil, errors.Join(
			errors.New("no notifier was set, ext-idle-notify might not be supported"),
			m.Close(),
		)
	}
	if m.seat == nil {
		return nil, nil, errors.Join(errors.New("no seat was announced"), m.Close())
	}

	go func() {
		for {
			select {
			case m.dispatchChan <- m.context().GetDispatch():
			case <-m.close:
				return
			}
		}
	}()

	return m, m.dispatchChan, nil
}

// bindGlobals binds the idle notifier and the seat. Two roundtrips are needed, the first one
// announces the globals and the second one completes the binds.
func (m *waylandIdleController) bindGlobals() error {
	var globalHandlerError error
	m.registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		switch e.Interface {
		case idleNotify.IdleNotifierInterfaceName:
			notifier := idleNotify.NewIdleNotifier(m.context())
			err := m.registry.Bind(e.Name, idleNotify.IdleNotifierInterfaceName, e.Version, notifier)
			if err != nil {
				globalHandlerError = errors.Join(
					globalHandlerError,
					fmt.Errorf("unable to bind %s interface: %w", idleNotify.IdleNotifierInterfaceName, err),
				)
				return
			}
			m.notifier = notifier
		case client.SeatInterfaceName:
			if m.seat != nil {
				// Only the first seat is used.
				return
			}
			seat := client.NewSeat(m.context())
			err := m.registry.Bind(e.Name, e.Interface, e.Version, seat)
			if err != nil {
				globalHandlerError = errors.Join(
					globalHandlerError,
					fmt.Errorf("unable to bind %s interface: %w", client.SeatInterfaceName, err),
				)
				return
			}
			m.seat = seat
		}
	})

	for i := 1; i <= 2; i++ {
		if err := m.display.Roundtrip(); err != nil {
			return fmt.Errorf("failed roundtrip %d: %w", i, err)
		}
		if globalHandlerError != nil {
			return fmt.Errorf("error in registry GlobalHandler after roundtrip %d: %w", i, globalHandlerError)
		}
	}

	return nil
}

func (m *waylandIdleController) context() *client.Context {
	return m.display.Context()
}

func (m *waylandIdleController) Close() error {
	var totalError error
	m.closeOnce.Do(func() {
		if m.notifier != nil {
			if err := m.notifier.Destroy(); err != nil {
				totalError = errors.Join(totalError, fmt.Errorf(
					"unable to destroy %s: %w",
					idleNotify.IdleNotifierInterfaceName,
					err,
				))
			}
		}

		if m.seat != nil {
			if err := m.seat.Release(); err != nil {
				totalError = errors.Join(totalError, fmt.Errorf("error releasing seat: %w", err))
			}
		}

		if m.display != nil {
			if err := m.display.Destroy(); err != nil {
				totalError = errors.Join(totalError, fmt.Errorf("error destroying display: %w", err))
			}
		}

		close(m.close)

		if m.display != nil {
			if err := m.context().Close(); err != nil {
				totalError = errors.Join(totalError, fmt.Errorf("error closing wayland connection: %w", err))
			}
		}
	})

	return totalError
}

// AddNotification registers notification handlers on idle and resume.
// Idle will be notified after the session is idle for the given duration.
// Resume will be notified when the session is active again after being idle for the given
// duration.
// One of Idle or Resume must be non-nil.
func (m *waylandIdleController) AddNotification(notificationInput *CreateIdleNotification) (Notification, error) {
	if err := notificationInput.validate(); err != nil {
		return nil, err
	}

	durationMs, err := timeoutMs(notificationInput.Duration)
	if err != nil {
		return nil, err
	}

	notification, err := m.notifier.GetIdleNotification(durationMs, m.seat)
	if err != nil {
		return nil, fmt.Errorf("unable to get idle notification: %w", err)
	}

	if notificationInput.Idle != nil {
		notification.SetIdledHandler(func(event idleNotify.IdleNotificationIdledEvent) {
			m.forward(notificationInput.Idle)
		})
	}

	if notificationInput.Resume != nil {
		notification.SetResumedHandler(func(event idleNotify.IdleNotificationResumedEvent) {
			m.forward(notificationInput.Resume)
		})
	}

	return &waylandIdleNotification{
		controller:   m,
		notification: notification,
	}, nil
}

func (m *waylandIdleController) forward(c chan<- struct{}) {
	go func() {
		// Execute in goroutine to prevent blocking dispatch
		select {
		case c <- struct{}{}:
		case <-m.close:
		}
	}()
}
