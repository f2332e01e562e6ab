package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentruntime/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider
// branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // always "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // encoded JSON object
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // always "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by agents: the
// resolved instructions, the conversation so far, the exposed tools, and
// whether partial chunks are wanted.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is one chunk emitted by a model. Partial marks an incremental
// fragment; the final response of a generation has Partial false and carries
// the complete content.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // e.g. "stop" or "tool_calls"
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "anthropic", "openai", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface agents need to drive generation.
type Model interface {
	// Generate starts one completion and returns its response and error
	// streams. Both channels close when the generation finishes.
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info describes the implementation and its capabilities.
	Info() Info
}

// MockModel is a deterministic in-process Model for tests and examples.
//
// Two scripting mechanisms are supported. AddResponse maps an exact input
// text to a canned completion; EnqueueResponse queues full Response values
// that are served FIFO regardless of input, which lets multi-turn tests
// (tool call then answer, loop iterations) differ per call. Queued responses
// win over mapped ones. Every request passed to Generate is recorded and
// retrievable via Requests, so tests can assert what the model actually saw.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	queue     []Response
	requests  []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an exact input text.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// EnqueueResponse appends a scripted response served before any mapped ones.
func (m *MockModel) EnqueueResponse(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resp)
}

// EnqueueTextResponse is shorthand for queueing a plain text final response.
func (m *MockModel) EnqueueTextResponse(text string) {
	m.EnqueueResponse(Response{
		Content:      *core.NewTextContent("model", text),
		FinishReason: "stop",
	})
}

// Generate implements Model. When streaming is requested, text responses are
// chunked word by word before the final response; scripted responses that
// carry non-text parts (function calls) are emitted whole.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if scripted, ok := m.dequeue(); ok {
			m.serve(ctx, req, scripted, respCh, errCh)
			return
		}

		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}

		inputText := req.Contents[len(req.Contents)-1].Text()

		m.mu.Lock()
		full := m.responses[inputText]
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}

		m.serve(ctx, req, Response{
			Content:      *core.NewTextContent("model", full),
			FinishReason: "stop",
		}, respCh, errCh)
	}()

	return respCh, errCh
}

func (m *MockModel) dequeue() (Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return Response{}, false
	}
	resp := m.queue[0]
	m.queue = m.queue[1:]

	return resp, true
}

// serve emits the response, preceded by word-level partial chunks when the
// request asked for streaming and the response is plain text.
func (m *MockModel) serve(ctx context.Context, req Request, final Response, respCh chan<- Response, errCh chan<- error) {
	text := final.Content.Text()
	if req.Stream && text != "" && len(final.Content.Parts) == 1 {
		words := strings.Fields(text)
		for i, word := range words {
			chunk := word
			if i < len(words)-1 {
				chunk += " "
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{
				Partial: true,
				Content: *core.NewTextContent("model", chunk),
			}:
			}
		}
	}

	select {
	case <-ctx.Done():
		errCh <- ctx.Err()
	case respCh <- final:
	}
}

// Requests returns the requests Generate received so far, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Interface compliance (compile-time assertion)
var _ Model = (*MockModel)(nil)
