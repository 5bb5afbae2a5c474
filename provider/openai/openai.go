// Package openai implements the registry-routed reference provider backed by
// the OpenAI Chat Completions API with function calling.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentdock/provider"
)

// Options configure the OpenAI provider. Fields mirror a minimal subset of
// Chat Completion parameters; extend via functional options without breaking
// callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Provider drives the shared tool-calling loop against OpenAI chat
// completions.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a provider using the official client with ambient credentials.
func New(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "openai" }

// DefaultModel implements provider.Provider.
func (p *Provider) DefaultModel() string { return p.opts.Model }

// Run implements provider.Provider via the shared loop.
func (p *Provider) Run(ctx context.Context, in provider.RunInput) error {
	return provider.RunLoop(ctx, p, in)
}

// Complete implements provider.Chat: one conversation exchange with the
// shell tool declared.
func (p *Provider) Complete(ctx context.Context, model string, conv []provider.Message) (provider.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(conv),
		Model:               model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
		Tools: []openai.ChatCompletionToolParam{{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        provider.ShellToolName,
				Description: openai.String(provider.ShellToolDescription),
				Parameters:  provider.ShellToolSchema(),
			},
		}},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return provider.Reply{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return provider.Reply{}, fmt.Errorf("no choices returned")
	}

	msg := resp.Choices[0].Message
	reply := provider.Reply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.Calls = append(reply.Calls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

// buildMessages converts loop conversation state into OpenAI chat messages.
// Assistant turns with tool calls carry the calls inline; tool turns become
// tool messages correlated by call id.
func buildMessages(conv []provider.Message) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, m := range conv {
		switch m.Role {
		case "user":
			messages = append(messages, openai.UserMessage(m.Text))
		case "assistant":
			if len(m.Calls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Text))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.Calls))
			for i, c := range m.Calls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   c.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      c.Name,
						Arguments: c.Arguments,
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case "tool":
			messages = append(messages, openai.ToolMessage(m.Text, m.CallID))
		}
	}
	return messages
}
