// Package store provides SessionStore implementations: an in-memory store
// suitable for development and testing, and a SQLite-backed store for
// durable deployments.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentdock/core"
)

// InMemoryStore is a thread-safe map-backed SessionStore. Rows are cloned
// on the way in and out so callers never share mutable state with the
// store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Insert implements core.SessionStore.
func (s *InMemoryStore) Insert(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get implements core.SessionStore.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Update implements core.SessionStore. Nil fields are left untouched.
func (s *InMemoryStore) Update(_ context.Context, id string, upd core.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	applyUpdate(sess, upd)
	sess.Updated = time.Now().UTC()
	return nil
}

// AppendOutput implements core.SessionStore.
func (s *InMemoryStore) AppendOutput(_ context.Context, id, chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.Output = append(sess.Output, chunk)
	sess.Updated = time.Now().UTC()
	return nil
}

func applyUpdate(sess *core.Session, upd core.SessionUpdate) {
	if upd.Status != nil {
		sess.Status = *upd.Status
	}
	if upd.Error != nil {
		sess.Error = *upd.Error
	}
	if upd.Model != nil {
		sess.Model = *upd.Model
	}
	if upd.MuxSession != nil {
		sess.MuxSession = *upd.MuxSession
	}
}
