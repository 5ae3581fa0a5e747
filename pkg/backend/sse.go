package backend

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is one server-sent event: an optional event name and the joined
// data payload.
type SSEEvent struct {
	Event string
	Data  string
}

// SSEScanner reads server-sent events from a response body. Comment lines are
// skipped; multi-line data fields are joined with newlines per the SSE spec.
type SSEScanner struct {
	scanner *bufio.Scanner
}

// NewSSEScanner creates a scanner over r, sized for large model deltas.
func NewSSEScanner(r io.Reader) *SSEScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEScanner{scanner: sc}
}

// Next returns the next event. ok is false at end of stream or read error;
// call Err afterwards to distinguish.
func (s *SSEScanner) Next() (SSEEvent, bool) {
	var ev SSEEvent
	var data []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line terminates an event.
		if line == "" {
			if len(data) > 0 || ev.Event != "" {
				ev.Data = strings.Join(data, "\n")
				return ev, true
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if name, ok := strings.CutPrefix(line, "event:"); ok {
			ev.Event = strings.TrimSpace(name)
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(payload, " "))
		}
	}

	// Stream ended without a trailing blank line.
	if len(data) > 0 || ev.Event != "" {
		ev.Data = strings.Join(data, "\n")
		return ev, true
	}

	return SSEEvent{}, false
}

// Err returns the first read error the scanner hit, if any.
func (s *SSEScanner) Err() error {
	return s.scanner.Err()
}
