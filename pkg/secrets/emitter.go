package secrets

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
)

// ErrNoCollections is returned by NewLockingEmitter when there is nothing to lock.
var ErrNoCollections = errors.New("no collections to lock")

// LockTimeout bounds a single call to the secret service.
const LockTimeout = 5 * time.Second

// LockingEmitter passes every event on to the wrapped emitter and locks secret collections in
// the background whenever the application locks.
type LockingEmitter struct {
	next        applock.Emitter
	locker      Locker
	collections []string
	logger      *slog.Logger
	pending     sync.WaitGroup
}

// NewLockingEmitter wraps next. collections are relative to /org/freedesktop/secrets, e.g.
// "collection/login".
func NewLockingEmitter(
	next applock.Emitter,
	locker Locker,
	collections []string,
	logger *slog.Logger,
) (*LockingEmitter, error) {
	if next == nil || locker == nil {
		return nil, errors.New("NewLockingEmitter: next and locker are required")
	}
	if len(collections) == 0 {
		return nil, ErrNoCollections
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &LockingEmitter{
		next:        next,
		locker:      locker,
		collections: slices.Clone(collections),
		logger:      logger.With("component", "secrets"),
	}, nil
}

// Emit delivers event and, on onAppLocked, starts locking the collections. It does not wait for
// the secret service. A failure to lock is logged.
func (l *LockingEmitter) Emit(event applock.Event) error {
	err := l.next.Emit(event)

	if event.Name == applock.EventAppLocked {
		l.pending.Add(1)
		go func() {
			defer l.pending.Done()
			l.lock()
		}()
	}

	return err
}

func (l *LockingEmitter) lock() {
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	if err := l.locker.Lock(ctx, l.collections); err != nil {
		l.logger.Warn("Failed to lock secret collections",
			"collections", l.collections,
			"error", err,
		)
		return
	}
	l.logger.Debug("Locked secret collections", "collections", l.collections)
}

// Wait blocks until every lock started by Emit has finished.
func (l *LockingEmitter) Wait() {
	l.pending.Wait()
}
