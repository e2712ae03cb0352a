package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrClosed is returned by writes to a closed sink.
var ErrClosed = errors.New("event sink closed")

// SSEWriter frames events as Server-Sent Events and flushes after each one.
type SSEWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closer  io.Closer
	closed  bool
}

// NewSSEWriter wraps w. If w implements http.Flusher every event is flushed immediately.
func NewSSEWriter(w io.Writer) *SSEWriter {
	s := &SSEWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// WithCloser registers c to be closed when the sink is closed.
func (s *SSEWriter) WithCloser(c io.Closer) *SSEWriter {
	s.closer = c
	return s
}

// Write appends one "event: <name>\ndata: <json>\n\n" record.
func (s *SSEWriter) Write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Close releases the sink. Calls after the first are no-ops.
func (s *SSEWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
