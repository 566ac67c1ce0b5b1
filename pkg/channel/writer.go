// Package channel connects an applock engine to its host over a stream of JSON lines, one
// message per line. The host sends commands and lifecycle changes, the daemon answers commands
// and sends events.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrWriterClosed = errors.New("channel writer closed")

// Writer serializes messages to the host. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// Write encodes v as a single line.
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close makes every later Write fail with ErrWriterClosed.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}
