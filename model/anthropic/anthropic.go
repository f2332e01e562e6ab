// Package anthropic adapts the Anthropic Messages API (streaming and
// non-streaming, including tool use) to the generic model.Model interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/model"
)

// Options configures the Anthropic model adapter (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client. Without
// an explicit APIKey option the client reads ANTHROPIC_API_KEY from the
// environment.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := applyOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: applyOptions(optFns)}
}

// Generate implements unified streaming / non-streaming generation. In
// streaming mode, text deltas are forwarded as partial responses while the
// SDK accumulates the full message; the final response always carries the
// complete content, so callers can persist it without reassembly.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    m.buildMessages(req.Contents),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}

		if systemBlocks := m.buildSystemBlocks(req); len(systemBlocks) > 0 {
			params.System = systemBlocks
		}

		if len(req.Tools) > 0 {
			params.Tools = m.buildTools(req.Tools)
		}

		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}

		m.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

func (m *Model) handleNonStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("anthropic api error: %w", err)
		return
	}

	out <- m.finalResponse(resp)
}

// handleStreaming forwards text deltas as partial responses and emits the
// accumulated message as the final one.
func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			errCh <- fmt.Errorf("anthropic stream accumulate: %w", err)
			return
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- model.Response{
					ID:      message.ID,
					Partial: true,
					Content: *core.NewTextContent("model", deltaVariant.Text),
				}:
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic stream error: %w", err)
		return
	}

	out <- m.finalResponse(&message)
}

// finalResponse converts a completed API message into the normalized shape.
func (m *Model) finalResponse(msg *anthropic.Message) model.Response {
	finishReason := "stop"
	if msg.StopReason != "" {
		finishReason = string(msg.StopReason)
	}

	return model.Response{
		ID:           msg.ID,
		Partial:      false,
		Content:      core.Content{Role: "model", Parts: m.buildParts(msg.Content)},
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// buildParts converts API content blocks (text + tool use) to content parts.
func (m *Model) buildParts(blocks []anthropic.ContentBlockUnion) []core.Part {
	var parts []core.Part

	for _, block := range blocks {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			parts = append(parts, core.FunctionCallPart{
				FunctionCall: core.FunctionCall{
					ID:        toolBlock.ID,
					Name:      toolBlock.Name,
					Arguments: args,
				},
			})
		}
	}

	return parts
}

// buildMessages converts normalized contents to the Anthropic message format.
// Tool results are embedded directly after the assistant turn that issued the
// matching call, as the Messages API requires.
func (m *Model) buildMessages(contents []core.Content) []anthropic.MessageParam {
	results := indexToolResults(contents)

	var messages []anthropic.MessageParam
	for _, c := range contents {
		switch c.Role {
		case "system", "tool":
			// System text is sent via params.System; tool results are
			// embedded after their call.
		case "model", "assistant":
			if blocks := m.buildAssistantContent(c.Parts, results); len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if blocks := m.buildUserContent(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		}
	}

	return messages
}

// indexToolResults collects function responses by call id, rendered as text.
func indexToolResults(contents []core.Content) map[string]string {
	results := make(map[string]string)

	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if s, ok := fr.FunctionResponse.Response.(string); ok {
				results[fr.FunctionResponse.ID] = s
			} else {
				results[fr.FunctionResponse.ID] = fmt.Sprint(fr.FunctionResponse.Response)
			}
		}
	}

	return results
}

// buildSystemBlocks merges the request instructions with any system-role
// contents into the system prompt.
func (m *Model) buildSystemBlocks(req model.Request) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: req.Instructions})
	}

	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		for _, p := range c.Parts {
			if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: tp.Text})
			}
		}
	}

	return systemBlocks
}

// buildUserContent builds content blocks for user messages.
func (m *Model) buildUserContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(tp.Text))
		}
	}

	return blocks
}

// buildAssistantContent builds content blocks for model turns, embedding the
// matching tool results right after each tool call.
func (m *Model) buildAssistantContent(
	parts []core.Part,
	results map[string]string,
) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	var callIDs []string

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			blocks = append(blocks, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				toolUseInput(part.FunctionCall.Arguments),
				part.FunctionCall.Name,
			))
			callIDs = append(callIDs, part.FunctionCall.ID)
		}
	}

	for _, id := range callIDs {
		if result, ok := results[id]; ok {
			blocks = append(blocks, anthropic.NewToolResultBlock(id, result, false))
			delete(results, id)
		}
	}

	return blocks
}

// toolUseInput decodes the argument JSON of a tool call. Arguments that do
// not parse are passed through as the raw string.
func toolUseInput(arguments string) any {
	if arguments == "" {
		return nil
	}

	var input any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return arguments
	}

	return input
}

// buildTools converts normalized tool definitions to the Anthropic format.
func (m *Model) buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, ok := params["properties"]; ok {
				schema.Properties = properties
			}
			if required, ok := params["required"]; ok {
				schema.Required = requiredNames(required)
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
	}

	return anthropicTools
}

// requiredNames normalizes the required list of a parameter schema, which
// arrives as []string from CreateSchema and []any from decoded JSON.
func requiredNames(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		var names []string
		for _, r := range req {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

// Interface compliance (compile-time assertion)
var _ model.Model = (*Model)(nil)
