package channel

import (
	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/google/uuid"
)

type eventMessage struct {
	Event string         `json:"event"`
	ID    string         `json:"id"`
	Args  map[string]any `json:"args,omitempty"`
}

// Emitter sends engine events to the host. It implements [applock.Emitter].
type Emitter struct {
	w     *Writer
	newID func() string
}

func NewEmitter(w *Writer) *Emitter {
	return &Emitter{
		w:     w,
		newID: uuid.NewString,
	}
}

// Emit writes the event with a fresh id so the host can tell repeated events apart.
func (e *Emitter) Emit(event applock.Event) error {
	return e.w.Write(eventMessage{
		Event: string(event.Name),
		ID:    e.newID(),
		Args:  event.Args(),
	})
}
