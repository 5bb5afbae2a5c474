// Package anthropic implements the registry-routed reference provider backed
// by the Anthropic Messages API with tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentdock/provider"
)

// Options configure the Anthropic provider (model id, temperature, max
// tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Provider drives the shared tool-calling loop against the Anthropic
// Messages API.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates a provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "anthropic" }

// DefaultModel implements provider.Provider.
func (p *Provider) DefaultModel() string { return string(p.opts.Model) }

// Run implements provider.Provider via the shared loop.
func (p *Provider) Run(ctx context.Context, in provider.RunInput) error {
	return provider.RunLoop(ctx, p, in)
}

// Complete implements provider.Chat: one conversation exchange with the
// shell tool declared.
func (p *Provider) Complete(ctx context.Context, model string, conv []provider.Message) (provider.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    buildMessages(conv),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		Tools:       []anthropic.ToolUnionParam{shellTool()},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return provider.Reply{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var reply provider.Reply
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			reply.Text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			reply.Calls = append(reply.Calls, provider.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}
	return reply, nil
}

// buildMessages converts loop conversation state into Anthropic messages.
// Tool results travel as tool_result blocks inside user messages, per the
// Messages API contract.
func buildMessages(conv []provider.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range conv {
		switch m.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		case "assistant":
			var content []anthropic.ContentBlockParamUnion
			if m.Text != "" {
				content = append(content, anthropic.NewTextBlock(m.Text))
			}
			for _, c := range m.Calls {
				var input any
				if c.Arguments != "" {
					if err := json.Unmarshal([]byte(c.Arguments), &input); err != nil {
						input = c.Arguments
					}
				}
				content = append(content, anthropic.NewToolUseBlock(c.ID, input, c.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.CallID, m.Text, false),
			))
		}
	}
	return messages
}

func shellTool() anthropic.ToolUnionParam {
	schema := provider.ShellToolSchema()
	inputSchema := anthropic.ToolInputSchemaParam{
		Type:       constant.Object("object"),
		Properties: schema["properties"],
	}
	if required, ok := schema["required"].([]string); ok {
		inputSchema.Required = required
	}
	return anthropic.ToolUnionParamOfTool(inputSchema, provider.ShellToolName)
}
