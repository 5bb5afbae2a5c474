// Package agentdock provides a high-level façade over the engine, event bus
// and WebSocket broadcast hub for running agent sessions in a single process.
// Most applications interact with this package by:
//  1. Creating an AgentDock via New() (optionally overriding the default
//     in-memory store, the terminal multiplexer or the primary backend)
//  2. Registering one or more API providers (openai, anthropic, custom)
//  3. Spawning tasks and watching them over the hub's WebSocket endpoint
//
// The façade delegates routing and supervision to engine.Engine while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply the SQLite store and a
// structured logger.
package agentdock

import (
	"context"

	"github.com/hupe1980/agentdock/broadcast"
	"github.com/hupe1980/agentdock/bus"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/engine"
	"github.com/hupe1980/agentdock/logging"
	"github.com/hupe1980/agentdock/mux"
	"github.com/hupe1980/agentdock/provider"
	"github.com/hupe1980/agentdock/registry"
	"github.com/hupe1980/agentdock/store"
)

// Options configures the AgentDock instance.
type Options struct {
	// Store persists session rows and output. Defaults to the in-memory
	// store when nil.
	Store core.SessionStore

	// Mux is the terminal multiplexer used for fallback sessions. Defaults
	// to a tmux collaborator when nil.
	Mux core.Multiplexer

	// Primary is the streaming backend tried first for non-provider spawns.
	// Nil means every such spawn uses the multiplexer fallback.
	Primary core.PrimaryBackend

	// Providers are registered on the engine at construction time.
	Providers []provider.Provider

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentDock is the high-level façade aggregating the engine, the event bus
// and the broadcast hub.
type AgentDock struct {
	opts   Options
	events *bus.Bus
	engine *engine.Engine
	hub    *broadcast.Hub
}

// New creates a new AgentDock instance with optional overrides. Any unset
// collaborator is initialized with a local default.
func New(optFns ...func(o *Options)) *AgentDock {
	opts := Options{
		Store:  store.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Mux == nil {
		opts.Mux = mux.New(func(o *mux.Options) { o.Logger = opts.Logger })
	}

	events := bus.New(func(o *bus.Options) { o.Logger = opts.Logger })

	eng := engine.New(opts.Store, opts.Mux, events, func(o *engine.Options) {
		o.Primary = opts.Primary
		o.Logger = opts.Logger
	})
	for _, p := range opts.Providers {
		eng.RegisterProvider(p)
	}

	hub := broadcast.NewHub(events, eng, func(o *broadcast.Options) {
		o.Logger = opts.Logger
	})

	return &AgentDock{opts: opts, events: events, engine: eng, hub: hub}
}

// Spawn launches a task on the backend resolved from the request and returns
// the session row. Execution continues after Spawn returns.
func (d *AgentDock) Spawn(ctx context.Context, req engine.SpawnRequest) (*core.Session, error) {
	return d.engine.Spawn(ctx, req)
}

// Cancel kills a running session. Unknown ids are a no-op.
func (d *AgentDock) Cancel(ctx context.Context, sessionID string) {
	d.engine.Cancel(ctx, sessionID)
}

// SendMessage forwards text into a primary session's prompt stream and
// reports whether it was accepted.
func (d *AgentDock) SendMessage(ctx context.Context, sessionID, text string) bool {
	return d.engine.SendMessage(ctx, sessionID, text)
}

// GetSession returns the stored row for a session id.
func (d *AgentDock) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	return d.opts.Store.Get(ctx, sessionID)
}

// GetOutput returns a session's accumulated output.
func (d *AgentDock) GetOutput(ctx context.Context, sessionID string) (string, error) {
	return d.engine.GetOutput(ctx, sessionID)
}

// IsAlive reports whether a session is still running.
func (d *AgentDock) IsAlive(ctx context.Context, sessionID string) bool {
	return d.engine.IsAlive(ctx, sessionID)
}

// Stats returns live session counts per backend family.
func (d *AgentDock) Stats() registry.Stats {
	return d.engine.Stats()
}

// Events exposes the event bus for in-process observers.
func (d *AgentDock) Events() *bus.Bus { return d.events }

// Hub returns the WebSocket broadcast handler, ready to mount on an HTTP mux.
func (d *AgentDock) Hub() *broadcast.Hub { return d.hub }

// Close disconnects subscribers and shuts the event bus down. Sessions still
// running keep running; callers wanting a hard stop cancel them first.
func (d *AgentDock) Close() {
	d.hub.Close()
	d.events.Close()
}
