// Package registry is the in-memory source of truth for which sessions are
// currently executing in this process. It is split into two registries: one
// for the primary streaming backend, whose entries need a native abort and a
// way to detach its event subscription, and one for registry-routed
// backends, whose entries need only a cancellation handle.
package registry

import (
	"context"
	"sync"

	"github.com/hupe1980/agentdock/bus"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

// PrimaryEntry holds the per-session handles for a primary-backend run.
// Handles live in an explicit struct stored by id, never captured by
// closures, so ownership stays visible.
type PrimaryEntry struct {
	// Abort invokes the backend's native abort, interrupting its internal
	// streaming loop.
	Abort func()
	// Detach unsubscribes the router's forwarding goroutine from the
	// backend's event stream.
	Detach func()
	// Send forwards a message into the session's live prompt stream.
	Send func(text string) error
}

// Stats reports per-family counts of live sessions. Advisory only; used for
// health reporting, not correctness.
type Stats struct {
	Primary int `json:"primary"`
	Routed  int `json:"routed"`
	Total   int `json:"total"`
}

// Options configure a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry tracks live sessions. Its two maps are the only mutable shared
// state in the orchestration core; all access is mutex-guarded.
type Registry struct {
	mu      sync.Mutex
	primary map[string]*PrimaryEntry
	routed  map[string]context.CancelFunc

	store  core.SessionStore
	mux    core.Multiplexer
	events *bus.Bus
	logger logging.Logger
}

// New creates an empty Registry wired to the store, multiplexer and bus it
// needs for kill semantics.
func New(store core.SessionStore, mux core.Multiplexer, events *bus.Bus, optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		primary: make(map[string]*PrimaryEntry),
		routed:  make(map[string]context.CancelFunc),
		store:   store,
		mux:     mux,
		events:  events,
		logger:  opts.Logger,
	}
}

// RegisterPrimary inserts a primary-backend session. Ids are unique per
// spawn; a duplicate insert overwrites without corrupting state.
func (r *Registry) RegisterPrimary(sessionID string, entry *PrimaryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary[sessionID] = entry
}

// RegisterRouted inserts a registry-routed session with its cancellation
// handle.
func (r *Registry) RegisterRouted(sessionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed[sessionID] = cancel
}

// RemovePrimary deletes a primary entry on natural completion, reporting
// whether it was still present. A false return means the session was already
// cancelled and its terminal bookkeeping is done.
func (r *Registry) RemovePrimary(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.primary[sessionID]
	delete(r.primary, sessionID)
	return ok
}

// RemoveRouted deletes a routed entry on natural completion, reporting
// whether it was still present.
func (r *Registry) RemoveRouted(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.routed[sessionID]
	delete(r.routed, sessionID)
	return ok
}

// PublishLive delivers an event for a session only while it is still
// registered in either family, reporting whether it was published.
// Publishing happens under the registry mutex: once Cancel has removed the
// entry no further events for the session can slip out, so the terminal
// end-session event stays last.
func (r *Registry) PublishLive(sessionID string, ev core.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, inPrimary := r.primary[sessionID]
	_, inRouted := r.routed[sessionID]
	if !inPrimary && !inRouted {
		return false
	}
	r.events.Publish(ev)
	return true
}

// Send forwards a message into a live primary session's prompt stream.
func (r *Registry) Send(sessionID, text string) bool {
	r.mu.Lock()
	entry, ok := r.primary[sessionID]
	r.mu.Unlock()
	if !ok || entry.Send == nil {
		return false
	}
	if err := entry.Send(text); err != nil {
		r.logger.Warn("registry.send.failed", "session_id", sessionID, "error", err.Error())
		return false
	}
	return true
}

// Cancel kills a running session: invoke the backend-specific abort path,
// remove the entry, terminate a recorded multiplexer session, mark the row
// stopped and emit a single end-session event with reason "killed". Cancel
// on an unknown or already-terminal session id is a silent no-op.
func (r *Registry) Cancel(ctx context.Context, sessionID string) {
	r.mu.Lock()
	primaryEntry, inPrimary := r.primary[sessionID]
	routedCancel, inRouted := r.routed[sessionID]
	delete(r.primary, sessionID)
	delete(r.routed, sessionID)
	r.mu.Unlock()

	killed := false
	if inPrimary {
		primaryEntry.Abort()
		primaryEntry.Detach()
		killed = true
	}
	if inRouted {
		routedCancel()
		killed = true
	}

	// A session may have both an in-process handle and an external
	// multiplexer process to reap.
	if row, err := r.store.Get(ctx, sessionID); err == nil && row.MuxSession != "" && r.mux != nil {
		if r.mux.Exists(ctx, row.MuxSession) {
			if err := r.mux.Kill(ctx, row.MuxSession); err != nil {
				r.logger.Warn("registry.cancel.mux_kill_failed", "session_id", sessionID, "error", err.Error())
			} else {
				killed = true
			}
		}
	}

	if !killed {
		return
	}

	status := core.StatusStopped
	if err := r.store.Update(ctx, sessionID, core.SessionUpdate{Status: &status}); err != nil {
		r.logger.Warn("registry.cancel.update_failed", "session_id", sessionID, "error", err.Error())
	}
	r.events.Publish(core.EndSessionEvent(sessionID, "killed"))
	r.logger.Info("registry.cancel.killed", "session_id", sessionID)
}

// IsAlive reports backend-dependent liveness: primary sessions are alive
// while present in the primary registry, terminal-fallback sessions while
// their external multiplexer session exists, and routed sessions while
// present in the routed registry. Liveness is never a flag on the row.
func (r *Registry) IsAlive(ctx context.Context, row *core.Session) bool {
	if row == nil {
		return false
	}
	switch row.Backend {
	case core.BackendPrimary:
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.primary[row.ID]
		return ok
	case core.BackendTerminal:
		if row.MuxSession == "" || r.mux == nil {
			return false
		}
		return r.mux.Exists(ctx, row.MuxSession)
	default:
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.routed[row.ID]
		return ok
	}
}

// Stats returns live counts per family and a total.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Primary: len(r.primary),
		Routed:  len(r.routed),
		Total:   len(r.primary) + len(r.routed),
	}
}
