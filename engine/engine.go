// Package engine is the dispatch router: it resolves a spawn request to
// exactly one execution path, launches it without blocking the caller, and
// wires completion and failure back into session-state updates and event
// emission. It also exposes the transport surface the boundary layer
// consumes: Spawn, Cancel, SendMessage, GetOutput, IsAlive and Stats.
//
// Failures occurring after a session is registered are never thrown back
// through the original call chain: by then execution is detached, so they
// are converted to session-state transitions and events. Only pre-
// registration failures (unknown provider, multiplexer spawn failure) are
// synchronous errors to the caller.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentdock/bus"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
	"github.com/hupe1980/agentdock/provider"
	"github.com/hupe1980/agentdock/registry"
)

// SpawnRequest describes one spawn call. Provider selects a registry-routed
// backend by name; when empty the primary-backend family is used, falling
// back to the terminal multiplexer if the primary backend is unavailable or
// fails to set up.
type SpawnRequest struct {
	Task     string
	Workdir  string
	Model    string
	Provider string
}

// Options configure an Engine.
type Options struct {
	// Primary is the streaming backend; nil means the capability probe
	// reports unavailable and every primary-family spawn uses the
	// multiplexer fallback.
	Primary core.PrimaryBackend
	Logger  logging.Logger
}

// Engine routes spawns, supervises running sessions and owns all
// persistence and broadcast side effects. Providers emit only through the
// sinks the engine hands them.
type Engine struct {
	store    core.SessionStore
	mux      core.Multiplexer
	primary  core.PrimaryBackend
	events   *bus.Bus
	sessions *registry.Registry
	logger   logging.Logger

	// primaryAvailable is the startup capability probe result.
	primaryAvailable bool

	mu        sync.RWMutex
	providers map[string]provider.Provider
}

// New creates an Engine. The primary backend's availability is probed once
// here, not re-inspected per spawn.
func New(store core.SessionStore, mux core.Multiplexer, events *bus.Bus, optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{
		store:     store,
		mux:       mux,
		primary:   opts.Primary,
		events:    events,
		logger:    opts.Logger,
		providers: make(map[string]provider.Provider),
	}
	e.sessions = registry.New(store, mux, events, func(o *registry.Options) { o.Logger = opts.Logger })
	e.primaryAvailable = opts.Primary != nil && opts.Primary.Available()
	return e
}

// RegisterProvider adds a registry-routed backend, resolvable by its name.
// Registration happens at startup; resolution at spawn time is a map lookup,
// not type inspection.
func (e *Engine) RegisterProvider(p provider.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers[p.Name()] = p
}

// Registry exposes the session registry for liveness and stats queries.
func (e *Engine) Registry() *registry.Registry { return e.sessions }

// Spawn accepts a task and launches it on the resolved backend. The durable
// row is written and the new-session event published before Spawn returns,
// so callers can observe the session immediately even though execution is
// asynchronous.
func (e *Engine) Spawn(ctx context.Context, req SpawnRequest) (*core.Session, error) {
	if req.Provider != "" {
		return e.spawnRouted(ctx, req)
	}
	return e.spawnPrimary(ctx, req)
}

func (e *Engine) spawnRouted(ctx context.Context, req SpawnRequest) (*core.Session, error) {
	e.mu.RLock()
	p, ok := e.providers[req.Provider]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, req.Provider)
	}

	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	sess := core.NewSession(req.Task, core.Backend(p.Name()))
	sess.Provider = p.Name()
	sess.Model = model

	if err := e.store.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	e.events.Publish(core.NewSessionEvent(sess))

	// The run context is detached from the caller's: spawn returns while
	// execution continues, and only a kill cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	e.sessions.RegisterRouted(sess.ID, cancel)

	go e.runRouted(runCtx, cancel, p, sess.ID, req.Task, model, req.Workdir)

	e.logger.Info("engine.spawn.routed", "session_id", sess.ID, "provider", p.Name(), "model", model)
	return sess.Clone(), nil
}

func (e *Engine) runRouted(ctx context.Context, cancel context.CancelFunc, p provider.Provider, sessionID, task, model, workdir string) {
	defer cancel()

	// Both sinks go quiet once the session is no longer registered: a killed
	// session's in-flight turn may still finish, but nothing it produces is
	// recorded or broadcast after the terminal end-session event.
	in := provider.RunInput{
		SessionID: sessionID,
		Task:      task,
		Model:     model,
		Workdir:   workdir,
		Chunks: func(text string) {
			if ctx.Err() != nil {
				return
			}
			if err := e.store.AppendOutput(context.Background(), sessionID, text); err != nil {
				e.logger.Warn("engine.append_output.failed", "session_id", sessionID, "error", err.Error())
			}
		},
		Events: func(ev core.Event) {
			e.sessions.PublishLive(sessionID, ev)
		},
	}

	err := p.Run(ctx, in)

	if ctx.Err() != nil {
		// Killed: the registry already recorded the terminal state and
		// emitted end-session.
		return
	}
	if !e.sessions.RemoveRouted(sessionID) {
		return
	}
	e.finish(sessionID, err)
}

// finish records the terminal transition for a session that ended on its
// own and emits the status-change followed by the end-session event.
func (e *Engine) finish(sessionID string, err error) {
	ctx := context.Background()
	if err != nil {
		msg := err.Error()
		if appendErr := e.store.AppendOutput(ctx, sessionID, msg); appendErr != nil {
			e.logger.Warn("engine.append_output.failed", "session_id", sessionID, "error", appendErr.Error())
		}
		status := core.StatusError
		if updErr := e.store.Update(ctx, sessionID, core.SessionUpdate{Status: &status, Error: &msg}); updErr != nil {
			e.logger.Warn("engine.update.failed", "session_id", sessionID, "error", updErr.Error())
		}
		e.events.Publish(core.StatusChangeEvent(sessionID, core.StatusError, msg))
		e.events.Publish(core.EndSessionEvent(sessionID, "error"))
		e.logger.Warn("engine.session.failed", "session_id", sessionID, "error", msg)
		return
	}

	status := core.StatusCompleted
	if updErr := e.store.Update(ctx, sessionID, core.SessionUpdate{Status: &status}); updErr != nil {
		e.logger.Warn("engine.update.failed", "session_id", sessionID, "error", updErr.Error())
	}
	e.events.Publish(core.StatusChangeEvent(sessionID, core.StatusCompleted, ""))
	e.events.Publish(core.EndSessionEvent(sessionID, "completed"))
	e.logger.Info("engine.session.completed", "session_id", sessionID)
}

// spawnPrimary attempts the primary streaming backend and falls back to the
// terminal multiplexer on any setup failure. The caller never sees the
// primary failure as a spawn failure, only as a backend substitution: the
// primary backend is a superset of the fallback's capability, so failure
// degrades gracefully instead of erroring.
func (e *Engine) spawnPrimary(ctx context.Context, req SpawnRequest) (*core.Session, error) {
	if e.primaryAvailable {
		handle, err := e.primary.Start(ctx, req.Task, req.Workdir, req.Model)
		if err == nil {
			return e.superviseStream(ctx, req, handle)
		}
		e.logger.Warn("engine.primary.setup_failed", "error", err.Error())
	}
	return e.spawnTerminal(ctx, req)
}

func (e *Engine) superviseStream(ctx context.Context, req SpawnRequest, handle core.PrimaryHandle) (*core.Session, error) {
	sess := core.NewSession(req.Task, core.BackendPrimary)
	sess.Model = req.Model

	if err := e.store.Insert(ctx, sess); err != nil {
		handle.Abort()
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	e.events.Publish(core.NewSessionEvent(sess))

	detach := make(chan struct{})
	var detachOnce sync.Once
	e.sessions.RegisterPrimary(sess.ID, &registry.PrimaryEntry{
		Abort:  handle.Abort,
		Detach: func() { detachOnce.Do(func() { close(detach) }) },
		Send:   handle.Send,
	})

	go e.runPrimary(sess.ID, handle, detach, &detachOnce)

	e.logger.Info("engine.spawn.primary", "session_id", sess.ID)
	return sess.Clone(), nil
}

func (e *Engine) runPrimary(sessionID string, handle core.PrimaryHandle, detach chan struct{}, detachOnce *sync.Once) {
	defer detachOnce.Do(func() { close(detach) })

	for {
		select {
		case <-detach:
			return
		case chunk, ok := <-handle.Output():
			if !ok {
				if !e.sessions.RemovePrimary(sessionID) {
					return
				}
				e.finish(sessionID, handle.Wait())
				return
			}
			if err := e.store.AppendOutput(context.Background(), sessionID, chunk); err != nil {
				e.logger.Warn("engine.append_output.failed", "session_id", sessionID, "error", err.Error())
			}
			e.sessions.PublishLive(sessionID, core.OutputEvent(sessionID, chunk, core.OutputStreaming))
		}
	}
}

func (e *Engine) spawnTerminal(ctx context.Context, req SpawnRequest) (*core.Session, error) {
	handle, err := e.mux.Spawn(ctx, req.Task, req.Workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn terminal session: %w", err)
	}

	sess := core.NewSession(req.Task, core.BackendTerminal)
	sess.MuxSession = handle

	if err := e.store.Insert(ctx, sess); err != nil {
		_ = e.mux.Kill(ctx, handle)
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	e.events.Publish(core.NewSessionEvent(sess))

	e.logger.Info("engine.spawn.terminal", "session_id", sess.ID, "mux_session", handle)
	return sess.Clone(), nil
}

// Cancel kills a running session. Unknown or already-terminal ids are a
// silent no-op.
func (e *Engine) Cancel(ctx context.Context, sessionID string) {
	e.sessions.Cancel(ctx, sessionID)
}

// SendMessage forwards a message into a session's live prompt stream. Only
// primary-backend sessions accept messages; the result reports acceptance.
func (e *Engine) SendMessage(ctx context.Context, sessionID, text string) bool {
	row, err := e.store.Get(ctx, sessionID)
	if err != nil || row.Backend != core.BackendPrimary {
		return false
	}
	return e.sessions.Send(sessionID, text)
}

// GetOutput returns a session's accumulated output. Terminal-fallback
// sessions are captured live from the multiplexer pane; all other backends
// return the stored chunks.
func (e *Engine) GetOutput(ctx context.Context, sessionID string) (string, error) {
	row, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if row.Backend == core.BackendTerminal && row.MuxSession != "" {
		return e.mux.Capture(ctx, row.MuxSession)
	}
	return strings.Join(row.Output, "\n"), nil
}

// IsAlive reports backend-dependent liveness for a session id.
func (e *Engine) IsAlive(ctx context.Context, sessionID string) bool {
	row, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return false
	}
	return e.sessions.IsAlive(ctx, row)
}

// Stats returns live session counts per backend family.
func (e *Engine) Stats() registry.Stats {
	return e.sessions.Stats()
}
