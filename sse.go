package luminote

import (
	"encoding/json"
	"strings"
)

const (
	frameDelimiter = "\n\n"
	eventPrefix    = "event: "
	dataPrefix     = "data: "
)

// Frame is one parsed SSE event: its type and raw JSON payload.
type Frame struct {
	EventType string
	Data      json.RawMessage
}

// ParseFrame extracts the event type and JSON payload from the lines of one
// SSE frame. Lines must already be split, trimmed and non-empty.
//
// The last event: and data: lines win. A frame without an event: line is a
// "message". A frame without data, or whose data is not valid JSON, yields
// false: malformed frames are dropped, never reported.
func ParseFrame(lines []string) (Frame, bool) {
	eventType := EventTypeMessage
	var data string
	hasData := false

	for _, line := range lines {
		if rest, ok := strings.CutPrefix(line, eventPrefix); ok {
			eventType = rest
		} else if rest, ok := strings.CutPrefix(line, dataPrefix); ok {
			data = rest
			hasData = true
		}
	}

	if !hasData || !json.Valid([]byte(data)) {
		return Frame{}, false
	}

	return Frame{EventType: eventType, Data: json.RawMessage(data)}, true
}

// splitFrameLines splits a raw frame into trimmed, non-blank lines.
func splitFrameLines(frame string) []string {
	raw := strings.Split(frame, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// nextFrame cuts the first complete frame off buf.
// ok is false when buf holds only a partial frame.
func nextFrame(buf string) (frame, rest string, ok bool) {
	return strings.Cut(buf, frameDelimiter)
}
