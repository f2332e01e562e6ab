// Package openai adapts the OpenAI Chat Completions API (streaming and
// non-streaming, including function/tool calling) to the generic model.Model
// interface.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/model"
)

// Options configure the OpenAI model adapter. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client, configured
// from the environment (OPENAI_API_KEY).
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation. Text
// deltas stream as partial responses; tool call deltas are aggregated
// silently and surface only in the final response, so consumers never see
// half-assembled argument JSON.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := openai.ChatCompletionNewParams{
			Messages:            buildMessages(req),
			Model:               m.opts.Model,
			Temperature:         openai.Float(m.opts.Temperature),
			MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
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

// buildMessages rebuilds the OpenAI-legal message sequence from the request.
// Request instructions become the leading system message.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	return newTranscript(req.Contents).assemble(req.Instructions, req.Contents)
}

// transcript converts normalized contents into chat messages. The Chat
// Completions API requires each tool message to directly follow the assistant
// message carrying the matching tool call, so function results are indexed by
// call id up front and spliced in as the model turns are emitted.
type transcript struct {
	msgs    []openai.ChatCompletionMessageParamUnion
	results map[string]string
	order   []string
}

// newTranscript indexes the function responses of all tool-role contents,
// keeping first-seen order and dropping duplicate call ids.
func newTranscript(contents []core.Content) *transcript {
	t := &transcript{results: make(map[string]string)}

	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, seen := t.results[fr.FunctionResponse.ID]; seen {
				continue
			}
			t.results[fr.FunctionResponse.ID] = resultText(fr.FunctionResponse.Response)
			t.order = append(t.order, fr.FunctionResponse.ID)
		}
	}

	return t
}

// resultText renders a function response payload as the tool message body.
func resultText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

// assemble emits the full message sequence. Function results that never
// matched a call are appended at the end in first-seen order, so no tool
// output is lost from the model's view of the conversation.
func (t *transcript) assemble(instructions string, contents []core.Content) []openai.ChatCompletionMessageParamUnion {
	if instructions != "" {
		t.msgs = append(t.msgs, openai.SystemMessage(instructions))
	}

	for _, c := range contents {
		if c.Role == "tool" {
			continue
		}
		t.addTurn(c)
	}

	for _, id := range t.order {
		if result, ok := t.results[id]; ok {
			t.msgs = append(t.msgs, openai.ToolMessage(result, id))
		}
	}

	return t.msgs
}

func (t *transcript) addTurn(c core.Content) {
	var sb strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(core.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	text := sb.String()

	switch c.Role {
	case "system":
		t.msgs = append(t.msgs, openai.SystemMessage(text))
	case "user":
		t.msgs = append(t.msgs, openai.UserMessage(text))
	case "model", "assistant":
		t.addModelTurn(c, text)
	default:
		if text != "" {
			t.msgs = append(t.msgs, openai.UserMessage(text))
		}
	}
}

// addModelTurn emits the assistant message and splices in the recorded result
// for every tool call it carries. A turn without tool calls collapses to a
// plain assistant text message.
func (t *transcript) addModelTurn(c core.Content, text string) {
	var calls []openai.ChatCompletionMessageToolCallParam
	var ids []string

	for _, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok {
			continue
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.FunctionCall.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.FunctionCall.Name,
				Arguments: fc.FunctionCall.Arguments,
			},
		})
		ids = append(ids, fc.FunctionCall.ID)
	}

	if len(calls) == 0 {
		t.msgs = append(t.msgs, openai.AssistantMessage(text))
		return
	}

	t.msgs = append(t.msgs, openai.ChatCompletionMessageParamUnion{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Role:      "assistant",
			ToolCalls: calls,
		},
	})

	for _, id := range ids {
		if id == "" {
			continue
		}
		if result, ok := t.results[id]; ok {
			t.msgs = append(t.msgs, openai.ToolMessage(result, id))
			delete(t.results, id)
		}
	}
}

// buildTools converts normalized tool definitions to the OpenAI format.
func (m *Model) buildTools(tools []model.ToolDefinition) []openai.ChatCompletionToolParam {
	openaiTools := make([]openai.ChatCompletionToolParam, len(tools))

	for i, tool := range tools {
		openaiTools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Function.Name,
				Description: openai.String(tool.Function.Description),
				Parameters:  tool.Function.Parameters,
			},
		}
	}

	return openaiTools
}

// callAccum collects the id, name and argument fragments of one streamed
// tool call until the finish reason arrives.
type callAccum struct {
	id   string
	name string
	args strings.Builder
}

// callAccums indexes accumulators by the choice-local tool call index.
type callAccums map[int64]*callAccum

// fold merges the tool call deltas of one chunk choice into the accumulators.
func (a callAccums) fold(choice openai.ChatCompletionChunkChoice) {
	for _, tc := range choice.Delta.ToolCalls {
		ac := a[tc.Index]
		if ac == nil {
			ac = &callAccum{}
			a[tc.Index] = ac
		}

		if tc.ID != "" {
			ac.id = tc.ID
		}
		if tc.Function.Name != "" {
			ac.name = tc.Function.Name
		}
		ac.args.WriteString(tc.Function.Arguments)
	}
}

// parts returns the reassembled function call parts in tool call index order.
func (a callAccums) parts() []core.Part {
	idxs := make([]int64, 0, len(a))
	for idx := range a {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	parts := make([]core.Part, 0, len(a))
	for _, idx := range idxs {
		ac := a[idx]
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: ac.args.String(),
		}})
	}

	return parts
}

// handleStreaming forwards text deltas as partial responses, aggregates tool
// call deltas, and emits one complete final response per choice finish.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)

	var text strings.Builder
	accums := callAccums{}

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)

				out <- model.Response{
					Partial: true,
					Content: *core.NewTextContent("model", choice.Delta.Content),
				}
			}

			accums.fold(choice)

			if choice.FinishReason != "" {
				parts := make([]core.Part, 0, len(accums)+1)
				if text.Len() > 0 {
					parts = append(parts, core.TextPart{Text: text.String()})
				}
				parts = append(parts, accums.parts()...)

				out <- model.Response{
					ID:           chunk.ID,
					Partial:      false,
					Content:      core.Content{Role: "model", Parts: parts},
					FinishReason: choice.FinishReason,
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}

	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}

	choice := resp.Choices[0]

	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	out <- model.Response{
		ID:           resp.ID,
		Partial:      false,
		Content:      core.Content{Role: "model", Parts: parts},
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

// Interface compliance (compile-time assertion)
var _ model.Model = (*Model)(nil)
