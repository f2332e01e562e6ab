package agent

import (
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/internal/util"
	"github.com/hupe1980/agentruntime/model"
	"github.com/hupe1980/agentruntime/tool"
)

// Helper functions for pointer types used throughout the agent implementations.

// boolPtr creates a pointer to a boolean value.
// This is useful for optional fields in structs where nil indicates "not set".
func boolPtr(b bool) *bool {
	return &b
}

// RunCallback can observe or short-circuit an agent run. Returning non-nil
// Content replaces (BeforeRun) or extends (AfterRun) the model interaction
// with an event carrying that content.
type RunCallback func(runCtx *core.RunContext) (*core.Content, error)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	// Instruction produces the system prompt. Static by default; use
	// NewInstructionFromFunc for state-dependent prompts.
	Instruction Instruction
	// OutputKey, when set, stages the final response text into session state
	// under this key on the final event's state delta.
	OutputKey string
	// MaxHistoryMessages caps how many conversation events are replayed into
	// each model request. Zero means no cap.
	MaxHistoryMessages int
	// MaxToolParallel limits concurrent tool executions within one model
	// turn. Zero means one goroutine per call.
	MaxToolParallel int
	// ToolTimeout bounds each tool call through its ToolContext. Zero
	// disables the bound.
	ToolTimeout time.Duration
	// Tools registered at construction time.
	Tools []tool.Tool
	// BeforeRun runs before the first model call. Non-nil Content skips the
	// model entirely and is emitted as the agent's response.
	BeforeRun RunCallback
	// AfterRun runs after the final response. Non-nil Content is emitted as
	// an additional event.
	AfterRun RunCallback
}

// ModelAgent integrates with language models to provide conversational and
// tool-calling behavior.
//
// One Run executes model turns until a final response is produced: each turn
// replays the session conversation into a request, streams the model output
// as events (partials when streaming is enabled), executes any requested
// tools and feeds their results into the next turn. Every non-partial event
// passes through the dispatcher's append-then-resume handshake before the
// agent proceeds, so the session log always reflects what the model saw.
type ModelAgent struct {
	BaseAgent
	llm         model.Model
	instruction Instruction
	tools       map[string]tool.Tool
	outputKey   string
	maxHistory  int
	executor    toolExecutor
	beforeRun   RunCallback
	afterRun    RunCallback
}

// NewModelAgent creates a new model-based agent with sensible defaults.
//
// The agent is initialized with:
//   - A generic helpful-assistant instruction
//   - An empty tool registry for function calling
//   - A 20-message conversation history window
//
// Parameters:
//   - name: Human-readable name used as event author
//   - llm: Language model implementation for text generation
//
// Returns a fully configured ModelAgent ready for conversation.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		MaxHistoryMessages: 20,
		ToolTimeout:        15 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:   NewBaseAgent(name),
		llm:         llm,
		instruction: opts.Instruction,
		tools:       make(map[string]tool.Tool),
		outputKey:   opts.OutputKey,
		maxHistory:  opts.MaxHistoryMessages,
		executor:    toolExecutor{maxParallel: opts.MaxToolParallel, preserveOrder: true, toolTimeout: opts.ToolTimeout},
		beforeRun:   opts.BeforeRun,
		afterRun:    opts.AfterRun,
	}

	a.RegisterTools(opts.Tools...)

	return a
}

// RegisterTool adds a function tool to the agent's capability set.
//
// Registered tools become available for the language model to call during
// conversations. Tools should implement the tool.Tool interface with proper
// JSON schema definitions.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// ListTools returns the names of all registered tools in sorted order.
func (a *ModelAgent) ListTools() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTool retrieves a specific tool by name.
func (a *ModelAgent) GetTool(name string) (tool.Tool, bool) {
	t, exists := a.tools[name]
	return t, exists
}

// Run implements core.Agent. It drives model turns until a final response is
// emitted, executing requested tools between turns.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "invocation", runCtx.InvocationID)

	if a.beforeRun != nil {
		content, err := a.beforeRun(runCtx)
		if err != nil {
			return fmt.Errorf("before-run callback: %w", err)
		}
		if content != nil {
			// Callback short-circuits the model interaction entirely.
			return a.emitContent(runCtx, content)
		}
	}

	for {
		last, err := a.runTurn(runCtx)
		if err != nil {
			runCtx.LogError("agent.run.error", "agent", a.Name(), "error", err.Error())
			return err
		}
		if last == nil {
			return fmt.Errorf("model %s produced no response", a.llm.Info().Name)
		}

		// Checked before the tool-response case: a tool marked
		// skip-summarization makes its response the final one.
		if last.IsFinalResponse() {
			break
		}

		// A turn that ended in tool responses feeds them into another turn.
		if len(last.GetFunctionResponses()) > 0 {
			continue
		}

		runCtx.LogWarn("agent.run.incomplete_turn", "agent", a.Name(), "event_id", last.ID)
		break
	}

	if a.afterRun != nil {
		content, err := a.afterRun(runCtx)
		if err != nil {
			return fmt.Errorf("after-run callback: %w", err)
		}
		if content != nil {
			if err := a.emitContent(runCtx, content); err != nil {
				return err
			}
		}
	}

	runCtx.LogDebug("agent.run.complete", "agent", a.Name(), "model_calls", runCtx.ModelCallsUsed())

	return nil
}

// emitContent wraps callback-produced content in a turn-complete event and
// pushes it through the append handshake.
func (a *ModelAgent) emitContent(runCtx *core.RunContext, content *core.Content) error {
	ev := core.NewEvent(runCtx.InvocationID, a.Name())
	ev.Content = content
	ev.TurnComplete = boolPtr(true)

	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}

	return runCtx.WaitForResume()
}

// runTurn performs one model call including any tool executions it requests
// and returns the last emitted event. The returned event tells the caller
// whether another turn is needed.
func (a *ModelAgent) runTurn(runCtx *core.RunContext) (*core.Event, error) {
	// Refresh the session snapshot so the request includes everything
	// appended so far, in particular the tool responses of the previous turn.
	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			runCtx.LogWarn("agent.session.refresh_failed", "agent", a.Name(), "error", err.Error())
		}
	}

	req, err := a.buildRequest(runCtx)
	if err != nil {
		return nil, err
	}

	if err := runCtx.ConsumeModelCall(); err != nil {
		return nil, err
	}

	respCh, errCh := a.llm.Generate(runCtx.Context, *req)

	var lastEvent *core.Event
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			ev, err := a.emitResponse(runCtx, resp)
			if err != nil {
				return nil, err
			}
			lastEvent = ev

			if fnCalls := ev.GetFunctionCalls(); !ev.IsPartial() && len(fnCalls) > 0 {
				last, err := a.executeCalls(runCtx, fnCalls)
				if err != nil {
					return nil, err
				}
				lastEvent = last
			}
		case genErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if genErr != nil {
				return nil, fmt.Errorf("model generate: %w", genErr)
			}
		case <-runCtx.Done():
			return nil, runCtx.Err()
		}
	}

	return lastEvent, nil
}

// buildRequest assembles the model request from the resolved instruction,
// the windowed conversation history and the registered tool schemas.
func (a *ModelAgent) buildRequest(runCtx *core.RunContext) (*model.Request, error) {
	instructions, err := a.instruction.Resolve(runCtx)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}

	if runCtx.Session != nil {
		rendered, err := util.RenderTemplate(instructions, runCtx.Session.StateSnapshot())
		if err != nil {
			return nil, fmt.Errorf("render instruction template: %w", err)
		}
		instructions = rendered
	}

	req := &model.Request{
		Instructions: instructions,
		Stream:       runCtx.Streaming,
	}

	if runCtx.Session != nil {
		events := runCtx.Session.GetConversationHistory()
		if a.maxHistory > 0 && len(events) > a.maxHistory {
			events = events[len(events)-a.maxHistory:]
		}
		contents := make([]core.Content, 0, len(events))
		for _, ev := range events {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				contents = append(contents, *ev.Content)
			}
		}
		req.Contents = contents
	}

	// Without a session snapshot the request still needs the triggering input.
	if len(req.Contents) == 0 && len(runCtx.UserContent.Parts) > 0 {
		req.Contents = append(req.Contents, runCtx.UserContent)
	}

	if len(a.tools) > 0 {
		defs := make([]model.ToolDefinition, 0, len(a.tools))
		for _, name := range a.ListTools() {
			t := a.tools[name]
			defs = append(defs, model.ToolDefinition{
				Type: "function",
				Function: model.FunctionDefinition{
					Name:        t.Name(),
					Description: t.Description(),
					Parameters:  t.Parameters(),
				},
			})
		}
		req.Tools = defs
	}

	return req, nil
}

// emitResponse converts a model response into an event and emits it. Partial
// events skip the resume handshake because the dispatcher never persists them.
func (a *ModelAgent) emitResponse(runCtx *core.RunContext, resp model.Response) (*core.Event, error) {
	ev := core.NewEvent(runCtx.InvocationID, a.Name())
	content := resp.Content
	ev.Content = &content
	partial := resp.Partial
	ev.Partial = &partial

	if !resp.Partial && len(ev.GetFunctionCalls()) == 0 {
		ev.TurnComplete = boolPtr(true)
		if a.outputKey != "" {
			if text := content.Text(); text != "" {
				// Staged before emission so the delta rides the final event.
				runCtx.SetState(a.outputKey, text)
			}
		}
	}

	if err := runCtx.EmitEvent(ev); err != nil {
		return nil, err
	}

	if !ev.IsPartial() {
		if err := runCtx.WaitForResume(); err != nil {
			return nil, err
		}
	}

	return &ev, nil
}

// executeCalls runs the batch of tool calls and returns the last emitted
// function response event.
func (a *ModelAgent) executeCalls(runCtx *core.RunContext, fnCalls []core.FunctionCall) (*core.Event, error) {
	var last core.Event

	emit := func(ev core.Event) error {
		if err := runCtx.EmitEvent(ev); err != nil {
			return err
		}
		if err := runCtx.WaitForResume(); err != nil {
			return err
		}
		last = ev
		return nil
	}

	if err := a.executor.execute(runCtx, a.Name(), a.tools, fnCalls, emit); err != nil {
		return nil, err
	}

	return &last, nil
}

// Interface compliance (compile-time assertion)
var _ core.Agent = (*ModelAgent)(nil)
