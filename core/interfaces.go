package core

import (
	"context"
	"errors"
)

// ErrUnknownProvider is returned by spawn when the requested provider name
// has no registered implementation. It is rejected synchronously, before any
// row is created or event emitted.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrSessionNotFound is returned when a session id has no durable row.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists session rows. Implementations must be safe for
// concurrent use; field updates are last-write-wins.
type SessionStore interface {
	Insert(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, upd SessionUpdate) error
	AppendOutput(ctx context.Context, id, chunk string) error
}

// Multiplexer is the external terminal-multiplexer collaborator used by the
// fallback backend. A handle names one multiplexer session.
type Multiplexer interface {
	Spawn(ctx context.Context, task, workdir string) (handle string, err error)
	Capture(ctx context.Context, handle string) (string, error)
	Exists(ctx context.Context, handle string) bool
	Kill(ctx context.Context, handle string) error
}

// PrimaryHandle is one live run on the primary streaming backend.
type PrimaryHandle interface {
	// Output streams text chunks until the run ends. The channel is closed
	// on completion or abort.
	Output() <-chan string
	// Wait blocks until the run ends and returns its terminal error, if any.
	Wait() error
	// Send forwards a message into the live prompt stream.
	Send(text string) error
	// Abort interrupts the backend's internal streaming loop.
	Abort()
}

// PrimaryBackend is the capability contract of the primary streaming
// backend. Availability is probed once at startup; deployments without the
// backend report false and the router falls back to the multiplexer.
type PrimaryBackend interface {
	Available() bool
	Start(ctx context.Context, task, workdir, model string) (PrimaryHandle, error)
}
