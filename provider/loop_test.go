package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdock/core"
)

// scriptedChat replays a fixed sequence of replies and records the
// conversation it was handed on each turn.
type scriptedChat struct {
	replies []Reply
	errs    []error
	calls   int
	convs   [][]Message
	onTurn  func(turn int)
}

func (c *scriptedChat) Complete(_ context.Context, _ string, conv []Message) (Reply, error) {
	turn := c.calls
	c.calls++
	c.convs = append(c.convs, append([]Message(nil), conv...))
	if c.onTurn != nil {
		c.onTurn(turn)
	}
	if turn < len(c.errs) && c.errs[turn] != nil {
		return Reply{}, c.errs[turn]
	}
	if turn < len(c.replies) {
		return c.replies[turn], nil
	}
	return Reply{Text: "done"}, nil
}

type sinkRecorder struct {
	chunks []string
	events []core.Event
}

func (s *sinkRecorder) input(sessionID, task string) RunInput {
	return RunInput{
		SessionID: sessionID,
		Task:      task,
		Model:     "test-model",
		Chunks:    func(text string) { s.chunks = append(s.chunks, text) },
		Events:    func(ev core.Event) { s.events = append(s.events, ev) },
	}
}

func (s *sinkRecorder) kinds() []core.EventKind {
	out := make([]core.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestRunLoop_SingleTurnWithoutTools(t *testing.T) {
	chat := &scriptedChat{replies: []Reply{{Text: "all done"}}}
	rec := &sinkRecorder{}

	err := RunLoop(context.Background(), chat, rec.input("s1", "say hi"))
	require.NoError(t, err)

	assert.Equal(t, 1, chat.calls)
	assert.Equal(t, []string{"all done"}, rec.chunks)
	assert.Equal(t, []core.EventKind{core.EventOutput}, rec.kinds())

	// the seed turn carries the task as the user message
	require.NotEmpty(t, chat.convs)
	assert.Equal(t, Message{Role: "user", Text: "say hi"}, chat.convs[0][0])
}

func TestRunLoop_ToolRoundTrip(t *testing.T) {
	call := ToolCall{ID: "call-1", Name: ShellToolName, Arguments: `{"command":"echo hi"}`}
	chat := &scriptedChat{replies: []Reply{
		{Text: "running it", Calls: []ToolCall{call}},
		{Text: "done"},
	}}
	rec := &sinkRecorder{}

	err := RunLoop(context.Background(), chat, rec.input("s1", "run echo"))
	require.NoError(t, err)

	assert.Equal(t, 2, chat.calls)
	assert.Equal(t, []core.EventKind{
		core.EventOutput,
		core.EventToolStart,
		core.EventToolEnd,
		core.EventOutput,
		core.EventOutput,
	}, rec.kinds())

	// second turn sees assistant call plus the tool result
	conv := chat.convs[1]
	require.Len(t, conv, 3)
	assert.Equal(t, "assistant", conv[1].Role)
	require.Len(t, conv[1].Calls, 1)
	assert.Equal(t, "tool", conv[2].Role)
	assert.Equal(t, "call-1", conv[2].CallID)
	assert.Equal(t, "hi\n", conv[2].Text)
}

func TestRunLoop_FailedToolResultFedBack(t *testing.T) {
	call := ToolCall{ID: "call-1", Name: ShellToolName, Arguments: `{"command":"exit 3"}`}
	chat := &scriptedChat{replies: []Reply{
		{Calls: []ToolCall{call}},
		{Text: "recovered"},
	}}
	rec := &sinkRecorder{}

	err := RunLoop(context.Background(), chat, rec.input("s1", "fail"))
	require.NoError(t, err, "a failed tool is not a session failure")

	var toolEnd *core.Event
	for i := range rec.events {
		if rec.events[i].Kind == core.EventToolEnd {
			toolEnd = &rec.events[i]
		}
	}
	require.NotNil(t, toolEnd)
	assert.Equal(t, true, toolEnd.Data["failed"])

	assert.Contains(t, chat.convs[1][2].Text, "command failed")
}

func TestRunLoop_TurnCap(t *testing.T) {
	// every reply asks for another tool call; the loop must stop at the cap
	call := ToolCall{ID: "c", Name: ShellToolName, Arguments: `{"command":"true"}`}
	replies := make([]Reply, MaxTurns+5)
	for i := range replies {
		replies[i] = Reply{Calls: []ToolCall{call}}
	}
	chat := &scriptedChat{replies: replies}
	rec := &sinkRecorder{}

	err := RunLoop(context.Background(), chat, rec.input("s1", "loop forever"))
	require.NoError(t, err)
	assert.Equal(t, MaxTurns, chat.calls)
}

func TestRunLoop_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chat := &scriptedChat{}
	rec := &sinkRecorder{}

	err := RunLoop(ctx, chat, rec.input("s1", "never runs"))
	require.NoError(t, err, "cancellation is a clean stop")
	assert.Zero(t, chat.calls)
	assert.Empty(t, rec.events)
}

func TestRunLoop_CancelledAtTurnBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	call := ToolCall{ID: "c", Name: ShellToolName, Arguments: `{"command":"true"}`}
	chat := &scriptedChat{replies: []Reply{{Calls: []ToolCall{call}}}}
	chat.onTurn = func(turn int) {
		if turn == 0 {
			cancel()
		}
	}
	rec := &sinkRecorder{}

	err := RunLoop(ctx, chat, rec.input("s1", "stop me"))
	require.NoError(t, err)

	// the in-flight turn finishes before the stop takes effect
	assert.Equal(t, 1, chat.calls)
}

func TestRunLoop_BackendErrorWrapped(t *testing.T) {
	boom := errors.New("rate limited")
	chat := &scriptedChat{
		replies: []Reply{{Calls: []ToolCall{{ID: "c", Name: ShellToolName, Arguments: `{"command":"true"}`}}}},
		errs:    []error{nil, boom},
	}
	rec := &sinkRecorder{}

	err := RunLoop(context.Background(), chat, rec.input("s1", "fail remotely"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "turn 2")
}
