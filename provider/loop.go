package provider

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentdock/core"
)

// MaxTurns bounds the tool-calling loop. Exceeding it terminates the run
// normally; it is a deliberate bound, not a failure condition.
const MaxTurns = 10

// ToolCall is one tool invocation requested by the remote backend.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one turn of conversation state. Role is "user", "assistant" or
// "tool"; CallID correlates a tool result with the assistant call that
// requested it.
type Message struct {
	Role   string
	Text   string
	Calls  []ToolCall
	CallID string
}

// Reply is one assistant turn returned by the remote backend.
type Reply struct {
	Text  string
	Calls []ToolCall
}

// Chat is the seam each reference provider implements: send the full
// conversation plus the declared shell tool, receive one assistant reply.
type Chat interface {
	Complete(ctx context.Context, model string, conv []Message) (Reply, error)
}

// RunLoop drives the shared tool-calling loop: seed the conversation with
// the task, exchange turns with the backend, execute requested shell
// commands, and feed results back until the backend stops asking for tools
// or MaxTurns is reached.
//
// Cancellation is checked at loop boundaries only: an in-flight remote call
// or subprocess finishes its turn before the stop takes effect. A cancelled
// run returns nil; cancellation is a clean stop, not a failure.
func RunLoop(ctx context.Context, c Chat, in RunInput) error {
	conv := []Message{{Role: "user", Text: in.Task}}

	for turn := 0; turn < MaxTurns; turn++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		reply, err := c.Complete(ctx, in.Model, conv)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("turn %d: %w", turn+1, err)
		}

		if reply.Text != "" {
			in.Chunks(reply.Text)
			in.Events(core.OutputEvent(in.SessionID, reply.Text, core.OutputComplete))
		}

		conv = append(conv, Message{Role: "assistant", Text: reply.Text, Calls: reply.Calls})

		if len(reply.Calls) == 0 {
			return nil
		}

		for _, call := range reply.Calls {
			in.Events(core.ToolStartEvent(in.SessionID, call.Name, call.ID, call.Arguments))
			result, execErr := ExecShell(ctx, call.Arguments, in.Workdir)
			in.Events(core.ToolEndEvent(in.SessionID, call.Name, call.ID, execErr != nil))

			in.Chunks(result)
			in.Events(core.OutputEvent(in.SessionID, result, core.OutputMeta))

			conv = append(conv, Message{Role: "tool", CallID: call.ID, Text: result})
		}
	}

	return nil
}
