package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoFlusher is returned when the ResponseWriter cannot stream.
var ErrNoFlusher = errors.New("sse: response writer does not support flushing")

// Writer emits event frames over an HTTP response, flushing after each one.
type Writer struct {
	w  io.Writer
	fl http.Flusher
}

// NewWriter sets the event-stream headers and writes the status line.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fl.Flush()
	return &Writer{w: w, fl: fl}, nil
}

// Event JSON-encodes payload and writes it as one frame.
func (s *Writer) Event(name string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: encode %s: %w", name, err)
	}
	return s.Raw(name, string(b))
}

// Raw writes data verbatim. Multi-line data is split into data lines.
func (s *Writer) Raw(name, data string) error {
	var b strings.Builder
	if name != "" {
		b.WriteString("event: " + name + "\n")
	}
	for _, ln := range strings.Split(data, "\n") {
		b.WriteString("data: " + ln + "\n")
	}
	b.WriteString("\n")
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return fmt.Errorf("sse: write %s: %w", name, err)
	}
	s.fl.Flush()
	return nil
}

// Comment writes a keep-alive comment line.
func (s *Writer) Comment(text string) error {
	if _, err := io.WriteString(s.w, ": "+text+"\n\n"); err != nil {
		return fmt.Errorf("sse: write comment: %w", err)
	}
	s.fl.Flush()
	return nil
}
