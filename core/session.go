package core

import "time"

// Status is the lifecycle state of a session. Transitions only move forward:
// running is the sole initial state and completed/error/stopped are final.
type Status string

const (
	// StatusRunning marks a session whose backend is still executing.
	StatusRunning Status = "running"
	// StatusCompleted marks natural completion.
	StatusCompleted Status = "completed"
	// StatusError marks a backend failure after execution started.
	StatusError Status = "error"
	// StatusStopped marks an explicit kill.
	StatusStopped Status = "stopped"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool { return s != StatusRunning }

// Backend identifies the execution family of a session.
type Backend string

const (
	// BackendPrimary is the primary streaming backend.
	BackendPrimary Backend = "primary"
	// BackendTerminal is the terminal-multiplexer fallback backend.
	BackendTerminal Backend = "terminal"
	// BackendOpenAI is the registry-routed OpenAI provider.
	BackendOpenAI Backend = "openai"
	// BackendAnthropic is the registry-routed Anthropic provider.
	BackendAnthropic Backend = "anthropic"
)

// Session is the durable projection of one supervised unit of agent
// execution. The orchestrator writes rows through a SessionStore but never
// reads them back as the source of truth for liveness; that lives in the
// in-memory registry (or, for terminal sessions, in the multiplexer itself).
type Session struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Status     Status    `json:"status"`
	Backend    Backend   `json:"backend"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	MuxSession string    `json:"muxSession,omitempty"`
	Error      string    `json:"error,omitempty"`
	Output     []string  `json:"output"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// NewSession creates a running session row with a fresh id.
func NewSession(task string, backend Backend) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:      NewID(),
		Task:    task,
		Status:  StatusRunning,
		Backend: backend,
		Created: now,
		Updated: now,
	}
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Output = make([]string, len(s.Output))
	copy(clone.Output, s.Output)
	return &clone
}

// SessionUpdate carries partial field updates for a session row. Nil fields
// are left untouched; last write wins on concurrent updates.
type SessionUpdate struct {
	Status     *Status
	Error      *string
	Model      *string
	MuxSession *string
}
