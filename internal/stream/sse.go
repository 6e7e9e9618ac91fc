// Package stream implements the Streaming Sink: serializing Diff
// Controller events as an unbuffered server-sent event stream. Event
// framing follows the diff run's original SSE helper, with a heartbeat
// frame added to keep idle connections alive.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// EventType names the event kinds a diff run can emit.
type EventType string

const (
	EventStatus     EventType = "status"
	EventTestResult EventType = "test_result"
	EventFailed     EventType = "failed"
	EventFinish     EventType = "finish"
	EventError      EventType = "error"
	// EventHeartbeat is a supplemented keep-alive frame, not one of the
	// five terminal/progress event types; clients should ignore it.
	EventHeartbeat EventType = "heartbeat"
)

// terminal reports whether an EventType ends the stream.
func (e EventType) terminal() bool {
	switch e {
	case EventFailed, EventFinish, EventError:
		return true
	default:
		return false
	}
}

// Sink writes one event at a time to a gin ResponseWriter, flushing
// immediately after each frame so no proxy or runtime buffering delays
// delivery to the client.
type Sink struct {
	w      gin.ResponseWriter
	closed bool
}

// NewSink configures w's headers for an SSE response: no caching, a
// persistent connection, and X-Accel-Buffering disabled for proxies that
// respect it.
func NewSink(c *gin.Context) *Sink {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	return &Sink{w: c.Writer}
}

// Emit writes one "event: <type>\ndata: <json>\n\n" frame. data is
// marshaled with a UTC ISO-8601 timestamp field merged in, matching
// "every payload carries a timestamp" requirement. Emit is
// a no-op after a terminal event has been sent.
func (s *Sink) Emit(event EventType, data map[string]interface{}) error {
	if s.closed {
		return nil
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["timestamp"] = nowUTC()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("stream: marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("stream: write event: %w", err)
	}
	s.w.Flush()

	if event.terminal() {
		s.closed = true
	}
	return nil
}

// Heartbeat emits a supplemented keep-alive comment frame so downstream
// proxies and slow clients don't drop an idle-looking but live connection
// (see the original SSE helper's 30s heartbeat interval).
func (s *Sink) Heartbeat() error {
	if s.closed {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, ": heartbeat %s\n\n", nowUTC()); err != nil {
		return fmt.Errorf("stream: write heartbeat: %w", err)
	}
	s.w.Flush()
	return nil
}

// Closed reports whether a terminal event has already been emitted.
func (s *Sink) Closed() bool {
	return s.closed
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
