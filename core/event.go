package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind discriminates the lifecycle/output events emitted for a session.
type EventKind string

const (
	// EventNewSession announces that a session has been accepted and its
	// durable row created.
	EventNewSession EventKind = "new_session"
	// EventEndSession announces that a session reached a terminal state.
	// Data carries the reason: "completed", "error" or "killed".
	EventEndSession EventKind = "end_session"
	// EventOutput carries a text chunk produced by the session's backend.
	EventOutput EventKind = "output"
	// EventStatusChange announces a status transition, optionally carrying
	// an error message.
	EventStatusChange EventKind = "status_change"
	// EventToolStart is emitted immediately before a provider executes a
	// tool invocation.
	EventToolStart EventKind = "tool_start"
	// EventToolEnd is emitted after a tool invocation finished, flagging
	// whether it failed.
	EventToolEnd EventKind = "tool_end"
)

// OutputMode qualifies an output event chunk.
type OutputMode string

const (
	// OutputStreaming marks a partial chunk from a live stream.
	OutputStreaming OutputMode = "streaming"
	// OutputComplete marks a whole assistant reply delivered at once.
	OutputComplete OutputMode = "complete"
	// OutputMeta marks orchestration output such as tool results or
	// failure text, as opposed to assistant prose.
	OutputMeta OutputMode = "meta"
)

// Event is an immutable, timestamped fact about exactly one session.
// Events are fire-and-forget: delivery is at-most-once and nothing beyond
// what a subscriber captures while connected is retained.
type Event struct {
	Kind      EventKind      `json:"kind"`
	SessionID string         `json:"sessionId"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewID generates a unique identifier for sessions and tool calls.
func NewID() string { return uuid.NewString() }

func newEvent(kind EventKind, sessionID string, data map[string]any) Event {
	return Event{
		Kind:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionEvent announces an accepted session.
func NewSessionEvent(s *Session) Event {
	return newEvent(EventNewSession, s.ID, map[string]any{
		"task":    s.Task,
		"backend": string(s.Backend),
	})
}

// EndSessionEvent announces a terminal transition with its reason.
func EndSessionEvent(sessionID, reason string) Event {
	return newEvent(EventEndSession, sessionID, map[string]any{"reason": reason})
}

// OutputEvent carries a text chunk qualified by mode.
func OutputEvent(sessionID, text string, mode OutputMode) Event {
	return newEvent(EventOutput, sessionID, map[string]any{
		"text": text,
		"mode": string(mode),
	})
}

// StatusChangeEvent announces a status transition. The error message is
// included only when non-empty.
func StatusChangeEvent(sessionID string, status Status, errMsg string) Event {
	data := map[string]any{"status": string(status)}
	if errMsg != "" {
		data["error"] = errMsg
	}
	return newEvent(EventStatusChange, sessionID, data)
}

// ToolStartEvent is emitted before a tool invocation runs.
func ToolStartEvent(sessionID, tool, callID, args string) Event {
	return newEvent(EventToolStart, sessionID, map[string]any{
		"tool":   tool,
		"callId": callID,
		"args":   args,
	})
}

// ToolEndEvent is emitted after a tool invocation finished.
func ToolEndEvent(sessionID, tool, callID string, failed bool) Event {
	return newEvent(EventToolEnd, sessionID, map[string]any{
		"tool":   tool,
		"callId": callID,
		"failed": failed,
	})
}
