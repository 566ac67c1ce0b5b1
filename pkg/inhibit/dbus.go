package inhibit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/godbus/dbus/v5"
)

const (
	dbusDest             = "org.freedesktop.login1"
	dbusManagerInterface = "org.freedesktop.login1.Manager"
	dbusPath             = "/org/freedesktop/login1"

	// flushTimeout bounds the wait for handlers before the delay inhibitor is released. logind
	// stops waiting after InhibitDelayMaxSec, 5s by default.
	flushTimeout = 3 * time.Second
)

var (
	ErrClosed        = errors.New("sleep watcher closed")
	ErrNotSubscribed = errors.New("handler is not subscribed")
)

type What string

const (
	WhatHandleHibernateKey What = "handle-hibernate-key"
	WhatHandleLidSwitch    What = "handle-lid-switch"
	WhatHandlePowerKey     What = "handle-power-key"
	WhatHandleSuspendKey   What = "handle-suspend-key"
	WhatIdle               What = "idle"
	WhatShutdown           What = "shutdown"
	WhatSleep              What = "sleep"
)

type Mode string

const (
	ModeBlock     Mode = "block"
	ModeBlockWeak Mode = "block-weak"
	ModeDelay     Mode = "delay"
)

// SleepWatcher reports system suspend and shutdown as screen signals. It implements
// [applock.ScreenSource].
//
// While subscribed, a delay inhibitor for sleep is held so subscribers get a chance to react
// before the system suspends. The inhibitor is released once PrepareForSleep(true) has been
// dispatched and flushed, see [SleepWatcher.SetFlush], and taken again after resume.
type SleepWatcher struct {
	conn   *dbus.Conn
	login1 dbus.BusObject
	logger *slog.Logger
	who    string
	why    string

	muSignals sync.Mutex
	handlers  map[uint64]func(applock.ScreenSignal)
	nextID    uint64
	delayLock io.Closer
	flush     func(context.Context) error

	signals   chan *dbus.Signal
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSleepWatcher connects to the system bus. who and why are used for the delay inhibitor, see
// [SleepWatcher.Inhibit].
func NewSleepWatcher(who string, why string, logger *slog.Logger) (*SleepWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	w := &SleepWatcher{
		conn:     conn,
		login1:   conn.Object(dbusDest, dbusPath),
		logger:   logger.With("component", "login1_sleep"),
		who:      who,
		why:      why,
		handlers: make(map[uint64]func(applock.ScreenSignal)),
		signals:  make(chan *dbus.Signal, 16),
		closed:   make(chan struct{}),
	}

	conn.Signal(w.signals)
	go w.run()

	return w, nil
}

// Inhibit creates an inhibition lock. It takes four parameters: what, who, why,
// and mode.
//   - what is one or more of actions that should be inhibited.
//   - who should be a short human-readable string identifying the application taking the lock.
//   - why should be a short human-readable string identifying the reason why the lock is taken.
//   - mode determines whether the inhibition shall be considered mandatory ("block") or whether it
//     should just delay the operation to a certain maximum time ("delay"),
//     while "block-weak" will create an inhibitor that is automatically ignored in some
//     circumstances.
//
// The lock is released the moment when the returned object and all its duplicates are closed.
func (w *SleepWatcher) Inhibit(who string, why string, mode Mode, what ...What) (io.Closer, error) {
	if len(what) == 0 {
		return nil, errors.New("Inhibit: at least one action is required")
	}

	var fd dbus.UnixFD

	err := w.login1.
		Call(dbusManagerInterface+".Inhibit", 0, joinWhat(what), who, why, string(mode)).
		Store(&fd)
	if err != nil {
		return nil, fmt.Errorf("failed to create inhibit lock: %w", err)
	}

	return os.NewFile(uintptr(fd), "inhibit"), nil
}

// SetFlush sets the function that is called after going to sleep was dispatched and before the
// delay inhibitor is released. Handlers that hand the signal off to another goroutine should
// pass a flush that returns once that work is done.
func (w *SleepWatcher) SetFlush(flush func(ctx context.Context) error) {
	w.muSignals.Lock()
	defer w.muSignals.Unlock()
	w.flush = flush
}

// SubscribeScreen registers handler to be notified of PrepareForSleep and PrepareForShutdown.
// Going to sleep and shutting down are reported as [applock.ScreenOff], resuming as
// [applock.ScreenOn].
func (w *SleepWatcher) SubscribeScreen(handler func(applock.ScreenSignal)) (applock.Unsubscribe, error) {
	if handler == nil {
		return nil, errors.New("SubscribeScreen: handler cannot be nil")
	}

	w.muSignals.Lock()
	defer w.muSignals.Unlock()

	select {
	case <-w.closed:
		return nil, ErrClosed
	default:
	}

	if len(w.handlers) == 0 {
		if err := w.addMatchSignals(); err != nil {
			return nil, err
		}
		w.acquireDelayLock()
	}

	id := w.nextID
	w.nextID++
	w.handlers[id] = handler

	return func() error {
		return w.unsubscribe(id)
	}, nil
}

func (w *SleepWatcher) unsubscribe(id uint64) error {
	w.muSignals.Lock()
	defer w.muSignals.Unlock()

	if _, ok := w.handlers[id]; !ok {
		return ErrNotSubscribed
	}
	delete(w.handlers, id)

	if len(w.handlers) == 0 {
		return errors.Join(w.removeMatchSignals(), w.releaseDelayLock())
	}

	return nil
}

func matchOptions(member string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(dbusPath),
		dbus.WithMatchInterface(dbusManagerInterface),
		dbus.WithMatchSender(dbusDest),
		dbus.WithMatchMember(member),
	}
}

// Holding the muSignals mutex is required.
func (w *SleepWatcher) addMatchSignals() error {
	if err := w.conn.AddMatchSignal(matchOptions("PrepareForSleep")...); err != nil {
		return fmt.Errorf("failed to register Dbus PrepareForSleep signal: %w", err)
	}
	if err := w.conn.AddMatchSignal(matchOptions("PrepareForShutdown")...); err != nil {
		_ = w.conn.RemoveMatchSignal(matchOptions("PrepareForSleep")...)
		return fmt.Errorf("failed to register Dbus PrepareForShutdown signal: %w", err)
	}
	return nil
}

// Holding the muSignals mutex is required.
func (w *SleepWatcher) removeMatchSignals() error {
	var err error
	if removeErr := w.conn.RemoveMatchSignal(matchOptions("PrepareForSleep")...); removeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to remove Dbus PrepareForSleep signal: %w", removeErr))
	}
	if removeErr := w.conn.RemoveMatchSignal(matchOptions("PrepareForShutdown")...); removeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to remove Dbus PrepareForShutdown signal: %w", removeErr))
	}
	return err
}

// acquireDelayLock takes the sleep delay inhibitor. Failing to do so only costs the head start
// before suspend, so the error is logged.
// Holding the muSignals mutex is required.
func (w *SleepWatcher) acquireDelayLock() {
	if w.delayLock != nil {
		return
	}

	delayLock, err := w.Inhibit(w.who, w.why, ModeDelay, WhatSleep)
	if err != nil {
		w.logger.Warn("Unable to acquire sleep inhibition lock", "error", err)
		return
	}
	w.delayLock = delayLock
}

// Holding the muSignals mutex is required.
func (w *SleepWatcher) releaseDelayLock() error {
	if w.delayLock == nil {
		return nil
	}

	err := w.delayLock.Close()
	w.delayLock = nil
	if err != nil {
		return fmt.Errorf("failed to release inhibitor lock: %w", err)
	}
	return nil
}

func (w *SleepWatcher) run() {
	for {
		select {
		case <-w.closed:
			return
		case s, ok := <-w.signals:
			if !ok {
				return
			}
			w.handleIncomingSignal(s)
		}
	}
}

func (w *SleepWatcher) handleIncomingSignal(s *dbus.Signal) {
	if s == nil {
		// Seems to happen on close
		return
	}

	if s.Path != w.login1.Path() {
		return
	}

	screenSignal, ok := translateManagerSignal(s)
	if !ok {
		return
	}
	w.logger.Debug("manager signal", "name", s.Name, "signal", screenSignal)

	w.dispatch(screenSignal, s.Name == dbusManagerInterface+".PrepareForSleep")
}

// dispatch calls the handlers. For sleep it then moves the delay inhibitor: released after going
// to sleep was flushed, taken again on resume.
func (w *SleepWatcher) dispatch(screenSignal applock.ScreenSignal, sleep bool) {
	w.muSignals.Lock()
	handlers := make([]func(applock.ScreenSignal), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	flush := w.flush
	w.muSignals.Unlock()

	for _, h := range handlers {
		h(screenSignal)
	}

	if !sleep {
		return
	}

	if screenSignal == applock.ScreenOff && flush != nil && len(handlers) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		err := flush(ctx)
		cancel()
		if err != nil {
			w.logger.Warn("Handlers did not finish before sleep", "error", err)
		}
	}

	w.muSignals.Lock()
	defer w.muSignals.Unlock()
	if len(w.handlers) == 0 {
		return
	}
	if screenSignal == applock.ScreenOff {
		if err := w.releaseDelayLock(); err != nil {
			// This shouldn't occur
			w.logger.Warn("Failed to release inhibitor lock", "error", err)
		}
	} else {
		// Get a new inhibition lock for the next sleep attempt
		w.acquireDelayLock()
	}
}

// Close permanently stops processing signals. Discard the watcher afterward.
func (w *SleepWatcher) Close() error {
	err := ErrClosed
	w.closeOnce.Do(func() {
		w.muSignals.Lock()
		defer w.muSignals.Unlock()

		err = nil
		if len(w.handlers) > 0 {
			clear(w.handlers)
			err = errors.Join(err, w.removeMatchSignals())
		}
		err = errors.Join(err, w.releaseDelayLock())
		w.conn.RemoveSignal(w.signals)
		close(w.closed)
		err = errors.Join(err, w.conn.Close())
	})
	return err
}

// translateManagerSignal maps PrepareForSleep and PrepareForShutdown to screen signals.
func translateManagerSignal(s *dbus.Signal) (applock.ScreenSignal, bool) {
	switch s.Name {
	case dbusManagerInterface + ".PrepareForSleep":
		if len(s.Body) == 0 {
			return 0, false
		}
		goingToSleep, ok := s.Body[0].(bool)
		if !ok {
			return 0, false
		}
		if goingToSleep {
			return applock.ScreenOff, true
		}
		return applock.ScreenOn, true
	case dbusManagerInterface + ".PrepareForShutdown":
		if len(s.Body) == 0 {
			return 0, false
		}
		// False is not expected since all programs will have closed after restarting the system.
		shuttingDown, ok := s.Body[0].(bool)
		if !ok || !shuttingDown {
			return 0, false
		}
		return applock.ScreenOff, true
	}

	return 0, false
}

func joinWhat(elems []What) string {
	const sep = ":"
	var n int
	n += len(sep) * (len(elems) - 1)
	for _, elem := range elems {
		n += len(elem)
	}

	var b strings.Builder
	b.Grow(n)
	b.WriteString(string(elems[0]))
	for _, s := range elems[1:] {
		b.WriteString(sep)
		b.WriteString(string(s))
	}
	return b.String()
}
