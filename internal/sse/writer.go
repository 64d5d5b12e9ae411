// Package sse writes Server-Sent Events frames to an http.ResponseWriter.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("sse: response writer does not support flushing")

// SetHeaders sets the standard headers for a Server-Sent Events response.
// X-Accel-Buffering stops nginx from buffering the stream.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Writer emits one JSON-encoded frame per call and flushes it immediately.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE headers, writes a 200 status and returns a Writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	SetHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes a frame. An empty event writes a data-only frame, which
// clients treat as a "message" event.
func (s *Writer) Send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: encode %s frame: %w", event, err)
	}

	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteString("\n")
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("sse: write: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteEvent writes a named event frame.
func (s *Writer) WriteEvent(event string, v any) error {
	return s.Send(event, v)
}

// WriteData writes a data-only frame.
func (s *Writer) WriteData(v any) error {
	return s.Send("", v)
}
