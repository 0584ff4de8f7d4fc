// Package streaming writes and reads the Server-Sent Events stream of a run.
package streaming

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/snow-ghost/assistant/core"
)

// Event names on the wire
const (
	EventStart    = "start"
	EventTimeline = "timeline"
	EventDone     = "done"
	EventError    = "error"
)

// SSEWriter handles Server-Sent Events writing
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	return &SSEWriter{
		w:       w,
		flusher: flusher,
	}, nil
}

// WriteEvent writes an SSE event
func (s *SSEWriter) WriteEvent(event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(string(jsonData), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}

	s.flusher.Flush()
	return nil
}

// StartData opens a stream
type StartData struct {
	RequestID  string          `json:"request_id"`
	Question   string          `json:"question"`
	Difficulty core.Difficulty `json:"difficulty"`
}

// WriteStart writes a start event
func (s *SSEWriter) WriteStart(data StartData) error {
	return s.WriteEvent(EventStart, data)
}

// WriteTimeline writes one timeline event as it happens
func (s *SSEWriter) WriteTimeline(e core.TimelineEvent) error {
	return s.WriteEvent(EventTimeline, e)
}

// WriteDone writes the final state
func (s *SSEWriter) WriteDone(state core.State) error {
	return s.WriteEvent(EventDone, state)
}

// WriteError writes an error event
func (s *SSEWriter) WriteError(err error) error {
	return s.WriteEvent(EventError, map[string]string{"error": err.Error()})
}

// Observer adapts the writer to core.Observer. Write errors after the client
// disconnected are dropped; the run still completes.
func (s *SSEWriter) Observer() core.Observer {
	return func(e core.TimelineEvent) {
		_ = s.WriteTimeline(e)
	}
}

// StreamHandler receives parsed events
type StreamHandler struct {
	OnStart    func(StartData) error
	OnTimeline func(core.TimelineEvent) error
	OnDone     func(core.State) error
	OnError    func(error) error
}

// ParseSSEStream parses an SSE stream from a reader until EOF or a done event
func ParseSSEStream(ctx context.Context, reader *bufio.Reader, handler *StreamHandler) error {
	var currentEvent string
	var currentData strings.Builder

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		// empty line ends the event
		if line == "" {
			if currentData.Len() > 0 {
				done, err := processEvent(currentEvent, currentData.String(), handler)
				if err != nil || done {
					return err
				}
			}
			currentEvent = ""
			currentData.Reset()
			continue
		}

		if after, ok := strings.CutPrefix(line, "event: "); ok {
			currentEvent = after
			continue
		}
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			if currentData.Len() > 0 {
				currentData.WriteString("\n")
			}
			currentData.WriteString(after)
		}
	}
}

func processEvent(eventType, data string, handler *StreamHandler) (bool, error) {
	switch eventType {
	case EventStart:
		var start StartData
		if err := json.Unmarshal([]byte(data), &start); err != nil {
			return false, fmt.Errorf("failed to unmarshal start: %w", err)
		}
		if handler.OnStart != nil {
			return false, handler.OnStart(start)
		}

	case EventTimeline:
		var e core.TimelineEvent
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return false, fmt.Errorf("failed to unmarshal timeline event: %w", err)
		}
		if handler.OnTimeline != nil {
			return false, handler.OnTimeline(e)
		}

	case EventDone:
		var state core.State
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			return true, fmt.Errorf("failed to unmarshal done: %w", err)
		}
		if handler.OnDone != nil {
			return true, handler.OnDone(state)
		}
		return true, nil

	case EventError:
		var payload map[string]string
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return true, fmt.Errorf("failed to unmarshal error: %w", err)
		}
		msg := payload["error"]
		if msg == "" {
			msg = "unknown error"
		}
		if handler.OnError != nil {
			return true, handler.OnError(errors.New(msg))
		}
		return true, nil
	}

	return false, nil
}
