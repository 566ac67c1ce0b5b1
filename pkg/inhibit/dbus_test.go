package inhibit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateManagerSignal(t *testing.T) {
	tests := []struct {
		name   string
		signal *dbus.Signal
		want   applock.ScreenSignal
		ok     bool
	}{
		{
			name:   "going to sleep",
			signal: &dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []interface{}{true}},
			want:   applock.ScreenOff,
			ok:     true,
		},
		{
			name:   "resumed",
			signal: &dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []interface{}{false}},
			want:   applock.ScreenOn,
			ok:     true,
		},
		{
			name:   "shutting down",
			signal: &dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForShutdown", Body: []interface{}{true}},
			want:   applock.ScreenOff,
			ok:     true,
		},
		{
			name:   "shutdown cancelled",
			signal: &dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForShutdown", Body: []interface{}{false}},
		},
		{
			name:   "malformed body",
			signal: &dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []interface{}{"yes"}},
		},
		{
			name:   "empty body",
			signal: &dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep"},
		},
		{
			name:   "unrelated",
			signal: &dbus.Signal{Name: "org.freedesktop.login1.Manager.SessionNew", Body: []interface{}{"2", dbus.ObjectPath("/")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translateManagerSignal(tt.signal)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestJoinWhat(t *testing.T) {
	assert.Equal(t, "sleep", joinWhat([]What{WhatSleep}))
	assert.Equal(t, "sleep:shutdown:idle", joinWhat([]What{WhatSleep, WhatShutdown, WhatIdle}))
}

// deferredExecutor queues posted work until run is called, like an event loop that has not
// caught up yet.
type deferredExecutor struct {
	mu    sync.Mutex
	queue []func()
}

func (e *deferredExecutor) Post(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, f)
}

func (e *deferredExecutor) run(context.Context) error {
	e.mu.Lock()
	queue := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, f := range queue {
		f()
	}
	return nil
}

type fakeCloser struct {
	onClose func()
	closed  int
}

func (c *fakeCloser) Close() error {
	c.closed++
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

func newTestWatcher(delayLock io.Closer) *SleepWatcher {
	return &SleepWatcher{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		handlers:  make(map[uint64]func(applock.ScreenSignal)),
		delayLock: delayLock,
	}
}

func TestSleepReleasesInhibitorAfterHandlersFinished(t *testing.T) {
	executor := &deferredExecutor{}
	var locked, lockedAtRelease bool

	delayLock := &fakeCloser{onClose: func() { lockedAtRelease = locked }}
	w := newTestWatcher(delayLock)
	w.handlers[0] = func(s applock.ScreenSignal) {
		executor.Post(func() { locked = s == applock.ScreenOff })
	}
	w.SetFlush(executor.run)

	w.dispatch(applock.ScreenOff, true)

	assert.Equal(t, 1, delayLock.closed)
	assert.True(t, lockedAtRelease, "the inhibitor was released before the lock was handled")
	assert.Nil(t, w.delayLock)
}

func TestSleepReleasesInhibitorWhenFlushFails(t *testing.T) {
	delayLock := &fakeCloser{}
	w := newTestWatcher(delayLock)
	w.handlers[0] = func(applock.ScreenSignal) {}

	var deadline bool
	w.SetFlush(func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return errors.New("loop closed")
	})

	w.dispatch(applock.ScreenOff, true)

	assert.True(t, deadline, "the wait must be bounded")
	assert.Equal(t, 1, delayLock.closed)
}

func TestShutdownKeepsInhibitor(t *testing.T) {
	delayLock := &fakeCloser{}
	w := newTestWatcher(delayLock)
	var got []applock.ScreenSignal
	w.handlers[0] = func(s applock.ScreenSignal) { got = append(got, s) }

	flushed := false
	w.SetFlush(func(context.Context) error {
		flushed = true
		return nil
	})

	w.dispatch(applock.ScreenOff, false)

	require.Equal(t, []applock.ScreenSignal{applock.ScreenOff}, got)
	assert.False(t, flushed)
	assert.Zero(t, delayLock.closed)
}
