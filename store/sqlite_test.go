package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdock/core"
)

var _ core.SessionStore = (*SQLiteStore)(nil)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sess := core.NewSession("inspect logs", core.BackendAnthropic)
	sess.Provider = "anthropic"
	sess.Model = "claude-test"
	sess.Output = []string{"first", "second"}
	require.NoError(t, s.Insert(ctx, sess))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "inspect logs", got.Task)
	assert.Equal(t, core.StatusRunning, got.Status)
	assert.Equal(t, core.BackendAnthropic, got.Backend)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, []string{"first", "second"}, got.Output)
	assert.True(t, got.Created.Equal(sess.Created))
}

func TestSQLiteStore_GetUnknown(t *testing.T) {
	s := newSQLiteStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestSQLiteStore_PartialUpdate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sess := core.NewSession("task", core.BackendPrimary)
	sess.Model = "keep-me"
	require.NoError(t, s.Insert(ctx, sess))

	status := core.StatusStopped
	mux := "agentdock-x"
	require.NoError(t, s.Update(ctx, sess.ID, core.SessionUpdate{Status: &status, MuxSession: &mux}))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusStopped, got.Status)
	assert.Equal(t, "agentdock-x", got.MuxSession)
	assert.Equal(t, "keep-me", got.Model)
	assert.True(t, got.Updated.After(sess.Updated))

	assert.ErrorIs(t, s.Update(ctx, "nope", core.SessionUpdate{Status: &status}), core.ErrSessionNotFound)
}

func TestSQLiteStore_AppendOutput(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sess := core.NewSession("task", core.BackendOpenAI)
	require.NoError(t, s.Insert(ctx, sess))

	require.NoError(t, s.AppendOutput(ctx, sess.ID, "one"))
	require.NoError(t, s.AppendOutput(ctx, sess.ID, "two"))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got.Output)

	assert.ErrorIs(t, s.AppendOutput(ctx, "nope", "x"), core.ErrSessionNotFound)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	sess := core.NewSession("durable task", core.BackendTerminal)
	require.NoError(t, s.Insert(ctx, sess))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable task", got.Task)
}
