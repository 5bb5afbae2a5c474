// Package provider defines the execution contract for registry-routed
// backends and the shared turn-bounded tool-calling loop the reference
// providers are built on. A provider never persists or broadcasts anything
// itself; all side effects flow through the sinks supplied in RunInput so
// the router stays the sole owner of persistence and broadcast.
package provider

import (
	"context"

	"github.com/hupe1980/agentdock/core"
)

// ChunkSink receives output text destined for the session's accumulated
// output.
type ChunkSink func(text string)

// EventSink receives structured lifecycle events for broadcast.
type EventSink func(ev core.Event)

// RunInput carries everything a provider needs for one session run.
type RunInput struct {
	SessionID string
	Task      string
	Model     string
	Workdir   string
	Chunks    ChunkSink
	Events    EventSink
}

// Provider executes a task to completion against a remote backend. Run
// returns nil on natural completion and on cancellation; a non-nil error
// means the backend failed after starting.
type Provider interface {
	// Name is the registry key the router resolves spawn requests against.
	Name() string
	// DefaultModel is used when a spawn request leaves the model unset.
	DefaultModel() string
	Run(ctx context.Context, in RunInput) error
}
