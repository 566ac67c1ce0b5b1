package applock

import (
	"errors"
	"sort"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// manualClock only moves when Advance is called. Due timers run on the calling goroutine in
// deadline order.
type manualClock struct {
	now       time.Time
	timers    []*manualTimer
	scheduled int
}

type manualTimer struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newManualClock() *manualClock {
	return &manualClock{now: epoch}
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{at: c.now.Add(d), seq: c.scheduled, f: f}
	c.scheduled++
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		next := c.nextDue(end)
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = end
}

func (c *manualClock) nextDue(end time.Time) *manualTimer {
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(end) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

func (c *manualClock) pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// elapsed is the time since epoch.
func (c *manualClock) elapsed() time.Duration {
	return c.now.Sub(epoch)
}

type inlineExecutor struct{}

func (inlineExecutor) Post(f func()) {
	f()
}

type recordedEvent struct {
	Event
	At     time.Duration
	Locked bool
}

type recorder struct {
	clock  *manualClock
	engine *Engine
	events []recordedEvent
	err    error
}

func (r *recorder) Emit(event Event) error {
	r.events = append(r.events, recordedEvent{
		Event:  event,
		At:     r.clock.elapsed(),
		Locked: r.engine.IsLocked(),
	})
	return r.err
}

func (r *recorder) named(name EventName) []recordedEvent {
	var out []recordedEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeLifecycle struct {
	handler      func(Phase)
	unsubscribed int
}

func (f *fakeLifecycle) SubscribeLifecycle(handler func(Phase)) (Unsubscribe, error) {
	f.handler = handler
	return func() error {
		f.unsubscribed++
		if f.unsubscribed > 1 {
			return errors.New("lifecycle observer already removed")
		}
		return nil
	}, nil
}

func (f *fakeLifecycle) send(p Phase) {
	if f.handler != nil {
		f.handler(p)
	}
}

type fakeScreen struct {
	handlers     map[int]func(ScreenSignal)
	next         int
	subscribed   int
	unsubscribed int
	subscribeErr error
}

func (f *fakeScreen) SubscribeScreen(handler func(ScreenSignal)) (Unsubscribe, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	if f.handlers == nil {
		f.handlers = make(map[int]func(ScreenSignal))
	}
	id := f.next
	f.next++
	f.handlers[id] = handler
	f.subscribed++
	return func() error {
		if _, ok := f.handlers[id]; !ok {
			return errors.New("receiver not registered")
		}
		delete(f.handlers, id)
		f.unsubscribed++
		return nil
	}, nil
}

func (f *fakeScreen) send(s ScreenSignal) {
	for _, h := range f.handlers {
		h(s)
	}
}

// fakeTouch keeps a chain of handlers in front of a base handler, like a window callback chain.
type fakeTouch struct {
	chain      []func()
	base       int
	installed  int
	restored   int
	installErr error
}

func (f *fakeTouch) Intercept(handler func()) (Restore, error) {
	if f.installErr != nil {
		return nil, f.installErr
	}
	prev := f.chain
	f.chain = append(append([]func(){}, prev...), handler)
	f.installed++
	return func() error {
		f.chain = prev
		f.restored++
		return nil
	}, nil
}

func (f *fakeTouch) touch() {
	for _, h := range f.chain {
		h()
	}
	f.base++
}

type fakeOverlay struct {
	shown    bool
	messages []string
}

func (f *fakeOverlay) Show(message string) error {
	f.shown = true
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeOverlay) Hide() error {
	f.shown = false
	return nil
}
