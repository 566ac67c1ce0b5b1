// Package lifecycle translates application lifecycle stages into foreground and background
// phases for an applock engine.
//
// Stages follow [golang.org/x/mobile/event/lifecycle]: an application is in the foreground
// while it is at least visible.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"golang.org/x/mobile/event/lifecycle"
)

var ErrNotSubscribed = errors.New("handler is not subscribed")

// Tracker follows the lifecycle stage of the host application. It implements
// [applock.LifecycleSource].
//
// It is safe to call Tracker's methods concurrently.
type Tracker struct {
	logger *slog.Logger

	mu       sync.Mutex
	stage    lifecycle.Stage
	handlers map[uint64]func(applock.Phase)
	nextID   uint64
}

// NewTracker returns a Tracker in [lifecycle.StageDead].
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		logger:   logger.With("component", "lifecycle"),
		stage:    lifecycle.StageDead,
		handlers: make(map[uint64]func(applock.Phase)),
	}
}

// Stage returns the last stage the tracker moved to.
func (t *Tracker) Stage() lifecycle.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

func (t *Tracker) SubscribeLifecycle(handler func(applock.Phase)) (applock.Unsubscribe, error) {
	if handler == nil {
		return nil, errors.New("SubscribeLifecycle: handler cannot be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.handlers[id] = handler

	return func() error {
		t.mu.Lock()
		defer t.mu.Unlock()

		if _, ok := t.handlers[id]; !ok {
			return ErrNotSubscribed
		}
		delete(t.handlers, id)
		return nil
	}, nil
}

// SetStage moves the tracker to stage.
func (t *Tracker) SetStage(stage lifecycle.Stage) {
	t.mu.Lock()
	from := t.stage
	t.mu.Unlock()

	t.Send(lifecycle.Event{From: from, To: stage})
}

// Send processes an event of the x/mobile event loop. Anything but a [lifecycle.Event] is
// ignored.
func (t *Tracker) Send(event any) {
	e, ok := event.(lifecycle.Event)
	if !ok {
		return
	}

	t.mu.Lock()
	t.stage = e.To
	handlers := make([]func(applock.Phase), 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	var phase applock.Phase
	switch e.Crosses(lifecycle.StageVisible) {
	case lifecycle.CrossOn:
		phase = applock.PhaseForeground
	case lifecycle.CrossOff:
		phase = applock.PhaseBackground
	default:
		t.logger.Debug("lifecycle stage changed", "from", e.From, "to", e.To)
		return
	}

	t.logger.Debug("lifecycle phase changed", "from", e.From, "to", e.To, "phase", phase)
	for _, h := range handlers {
		h(phase)
	}
}

// ParseStage parses the lower case name of a stage, e.g. "visible".
func ParseStage(s string) (lifecycle.Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dead":
		return lifecycle.StageDead, nil
	case "alive":
		return lifecycle.StageAlive, nil
	case "visible":
		return lifecycle.StageVisible, nil
	case "focused":
		return lifecycle.StageFocused, nil
	}
	return 0, fmt.Errorf("unknown lifecycle stage %q", s)
}
