package applock

// EventName is the name of an event delivered to the host.
type EventName string

const (
	EventAppLocked       EventName = "onAppLocked"
	EventAppUnlocked     EventName = "onAppUnlocked"
	EventEnterForeground EventName = "onEnterForeground"
	EventEnterBackground EventName = "onEnterBackground"
)

// Reason tells the host why the application was locked.
type Reason string

const (
	ReasonManual            Reason = "manual"
	ReasonScreenLock        Reason = "screenLock"
	ReasonBackgroundTimeout Reason = "backgroundTimeout"
	ReasonTouchTimeout      Reason = "touchTimeout"
)

type Event struct {
	Name EventName
	// Reason is only set for EventAppLocked.
	Reason Reason
}

// Args returns the argument payload of the event as sent to the host.
func (e Event) Args() map[string]any {
	if e.Name != EventAppLocked {
		return nil
	}
	return map[string]any{"reason": string(e.Reason)}
}

// Emitter delivers events to the host. Delivery is best-effort: a returned error is logged by
// the engine and the event is dropped.
type Emitter interface {
	Emit(event Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event Event) error

func (f EmitterFunc) Emit(event Event) error {
	return f(event)
}
