package agentdock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/engine"
	"github.com/hupe1980/agentdock/provider"
)

type stubMux struct{}

func (stubMux) Spawn(context.Context, string, string) (string, error) { return "agentdock-test", nil }
func (stubMux) Capture(context.Context, string) (string, error)       { return "pane", nil }
func (stubMux) Exists(context.Context, string) bool                   { return false }
func (stubMux) Kill(context.Context, string) error                    { return nil }

type stubProvider struct{}

func (stubProvider) Name() string         { return "openai" }
func (stubProvider) DefaultModel() string { return "stub-model" }

func (stubProvider) Run(_ context.Context, in provider.RunInput) error {
	in.Chunks("stub output")
	in.Events(core.OutputEvent(in.SessionID, "stub output", core.OutputComplete))
	return nil
}

func TestAgentDock_EndToEnd(t *testing.T) {
	dock := New(func(o *Options) {
		o.Mux = stubMux{}
		o.Providers = []provider.Provider{stubProvider{}}
	})
	defer dock.Close()

	ended := make(chan core.Event, 1)
	dock.Events().Attach(func(ev core.Event) {
		if ev.Kind == core.EventEndSession {
			ended <- ev
		}
	})

	ctx := context.Background()
	sess, err := dock.Spawn(ctx, engine.SpawnRequest{Task: "do the thing", Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, "stub-model", sess.Model)

	select {
	case ev := <-ended:
		assert.Equal(t, "completed", ev.Data["reason"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	out, err := dock.GetOutput(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "stub output", out)

	row, err := dock.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, row.Status)

	assert.False(t, dock.IsAlive(ctx, sess.ID))
	assert.Equal(t, 0, dock.Stats().Total)
	assert.NotNil(t, dock.Hub())
}

func TestAgentDock_UnknownProvider(t *testing.T) {
	dock := New(func(o *Options) { o.Mux = stubMux{} })
	defer dock.Close()

	_, err := dock.Spawn(context.Background(), engine.SpawnRequest{Task: "t", Provider: "carbon"})
	assert.ErrorIs(t, err, core.ErrUnknownProvider)
}
