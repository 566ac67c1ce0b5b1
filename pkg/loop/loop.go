// Package loop runs functions one at a time on a single goroutine.
//
// It is the event loop an applock.Engine lives on: signal sources post their callbacks with
// Post, timers created with AfterFunc post theirs when they fire, and commands wait for their
// result with Do.
package loop

import (
	"context"
	"errors"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
)

var ErrStopped = errors.New("loop stopped")

type Loop struct {
	funcs   chan func()
	stopped chan struct{}
}

// New creates a Loop whose queue holds up to queue functions before Post blocks.
func New(queue int) *Loop {
	return &Loop{
		funcs:   make(chan func(), queue),
		stopped: make(chan struct{}),
	}
}

// Run executes posted functions until ctx is done. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.funcs:
			f()
		}
	}
}

// Post queues f. It blocks while the queue is full and drops f once the loop stopped.
// Post must not be called from the loop itself when the queue can be full.
func (l *Loop) Post(f func()) {
	select {
	case l.funcs <- f:
	case <-l.stopped:
	}
}

// Do runs f on the loop and waits until it returned.
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		f()
	}

	select {
	case l.funcs <- wrapped:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every function posted before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Do(ctx, func() {})
}

// AfterFunc waits d and then posts f to the loop.
func (l *Loop) AfterFunc(d time.Duration, f func()) applock.Timer {
	return time.AfterFunc(d, func() {
		l.Post(f)
	})
}

func (l *Loop) Now() time.Time {
	return time.Now()
}
