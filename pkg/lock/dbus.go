package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/godbus/dbus/v5"
)

const (
	dbusDest                = "org.freedesktop.login1"
	dbusPath                = "/org/freedesktop/login1"
	dbusManagerInterface    = "org.freedesktop.login1.Manager"
	dbusSessionInterface    = "org.freedesktop.login1.Session"
	dbusPropertiesInterface = "org.freedesktop.DBus.Properties"
)

// SessionWatcher reports the lock state of a logind session as screen signals.
// It implements [applock.ScreenSource].
//
// It is safe to call SessionWatcher's methods concurrently.
type SessionWatcher struct {
	conn    *dbus.Conn
	session dbus.BusObject
	logger  *slog.Logger

	muHandlers  sync.Mutex
	handlers    map[uint64]func(applock.ScreenSignal)
	nextID      uint64
	matchActive bool

	signals   chan *dbus.Signal
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSessionWatcher connects to the system bus and watches the given session.
//
// sessionId is the ID of the session, usually the XDG_SESSION_ID env var. When empty, the
// session of the current process is used.
func NewSessionWatcher(sessionId string, logger *slog.Logger) (*SessionWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	manager := conn.Object(dbusDest, dbusPath)
	var sessionPath dbus.ObjectPath
	if sessionId == "" {
		err = manager.Call(dbusManagerInterface+".GetSessionByPID", 0, uint32(os.Getpid())).
			Store(&sessionPath)
	} else {
		err = manager.Call(dbusManagerInterface+".GetSession", 0, sessionId).
			Store(&sessionPath)
	}
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to find session object: %w", err),
			conn.Close(),
		)
	}

	w := &SessionWatcher{
		conn:     conn,
		session:  conn.Object(dbusDest, sessionPath),
		logger:   logger.With("component", "login1_session", "session", sessionPath),
		handlers: make(map[uint64]func(applock.ScreenSignal)),
		signals:  make(chan *dbus.Signal, 16),
		closed:   make(chan struct{}),
	}

	conn.Signal(w.signals)
	go w.run()

	return w, nil
}

// Locked returns the LockedHint of the session.
func (w *SessionWatcher) Locked() (bool, error) {
	variant, err := w.session.GetProperty(dbusSessionInterface + ".LockedHint")
	if err != nil {
		return false, fmt.Errorf("could not get locked hint: %w", err)
	}

	lockedHint, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("LockedHint property result is not a boolean")
	}

	return lockedHint, nil
}

// SubscribeScreen registers handler for the Lock and Unlock signals of the session and for
// changes of its LockedHint. The match rules are added for the first subscriber and removed
// after the last one unsubscribed.
//
// The returned function fails with ErrNotSubscribed when called more than once.
func (w *SessionWatcher) SubscribeScreen(handler func(applock.ScreenSignal)) (applock.Unsubscribe, error) {
	if handler == nil {
		return nil, errors.New("SubscribeScreen: handler cannot be nil")
	}

	w.muHandlers.Lock()
	defer w.muHandlers.Unlock()

	select {
	case <-w.closed:
		return nil, ErrClosed
	default:
	}

	if !w.matchActive {
		if err := w.addMatchSignals(); err != nil {
			return nil, err
		}
		w.matchActive = true
	}

	id := w.nextID
	w.nextID++
	w.handlers[id] = handler

	return func() error {
		return w.unsubscribe(id)
	}, nil
}

func (w *SessionWatcher) unsubscribe(id uint64) error {
	w.muHandlers.Lock()
	defer w.muHandlers.Unlock()

	if _, ok := w.handlers[id]; !ok {
		return ErrNotSubscribed
	}
	delete(w.handlers, id)

	if len(w.handlers) == 0 {
		return w.removeMatchSignals()
	}

	return nil
}

func (w *SessionWatcher) matchRules() [][]dbus.MatchOption {
	path := w.session.Path()
	return [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(dbusSessionInterface),
			dbus.WithMatchSender(dbusDest),
			dbus.WithMatchMember("Lock"),
		},
		{
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(dbusSessionInterface),
			dbus.WithMatchSender(dbusDest),
			dbus.WithMatchMember("Unlock"),
		},
		{
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(dbusPropertiesInterface),
			dbus.WithMatchSender(dbusDest),
			dbus.WithMatchMember("PropertiesChanged"),
		},
	}
}

// addMatchSignals registers every match rule, rolling back on failure.
// Holding the muHandlers mutex is required.
func (w *SessionWatcher) addMatchSignals() error {
	rules := w.matchRules()
	for i, rule := range rules {
		if err := w.conn.AddMatchSignal(rule...); err != nil {
			for _, added := range rules[:i] {
				_ = w.conn.RemoveMatchSignal(added...)
			}
			return fmt.Errorf("failed to register Dbus session signals: %w", err)
		}
	}
	return nil
}

// removeMatchSignals removes the match rules if they were registered.
// Holding the muHandlers mutex is required.
func (w *SessionWatcher) removeMatchSignals() error {
	if !w.matchActive {
		return nil
	}

	var err error
	for _, rule := range w.matchRules() {
		if removeErr := w.conn.RemoveMatchSignal(rule...); removeErr != nil {
			err = errors.Join(err, removeErr)
		}
	}
	w.matchActive = false
	if err != nil {
		return fmt.Errorf("failed to remove Dbus session signals: %w", err)
	}

	return nil
}

func (w *SessionWatcher) run() {
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

func (w *SessionWatcher) handleIncomingSignal(s *dbus.Signal) {
	if s == nil {
		// Seems to happen on close
		return
	}

	if s.Path != w.session.Path() {
		return
	}

	screenSignal, ok := translateSessionSignal(s)
	if !ok {
		return
	}
	w.logger.Debug("session signal", "name", s.Name, "signal", screenSignal)

	w.muHandlers.Lock()
	handlers := make([]func(applock.ScreenSignal), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.muHandlers.Unlock()

	for _, h := range handlers {
		h(screenSignal)
	}
}

// Close removes every subscription and closes the bus connection. Calling Close more than once
// returns ErrClosed.
func (w *SessionWatcher) Close() error {
	err := ErrClosed
	w.closeOnce.Do(func() {
		w.muHandlers.Lock()
		defer w.muHandlers.Unlock()

		clear(w.handlers)
		err = w.removeMatchSignals()
		w.conn.RemoveSignal(w.signals)
		close(w.closed)
		err = errors.Join(err, w.conn.Close())
	})
	return err
}
