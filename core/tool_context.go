package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/hupe1980/agentruntime/logging"
)

// ToolContext provides a constrained, auditable surface for tool / function
// implementations invoked by an agent. It accumulates EventActions (state
// deltas, transfers, escalation signals, artifact diffs) without directly
// mutating the underlying session until applied.
type ToolContext struct {
	runCtx         *RunContext
	ctx            context.Context // overrides runCtx.Context when set
	functionCallID string
	agentInfo      AgentInfo
	eventActions   EventActions
	valid          bool

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext
// and unique functionCallID.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		agentInfo:      runCtx.Agent,
		eventActions:   EventActions{},
		valid:          true,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context {
	if tc.ctx != nil {
		return tc.ctx
	}
	return tc.runCtx.Context
}

// WithContext returns a copy of the tool context scoped to ctx, typically a
// per-call timeout derived from the run context.
func (tc *ToolContext) WithContext(ctx context.Context) *ToolContext {
	clone := *tc
	clone.ctx = ctx
	return &clone
}

// SessionKey returns the session key associated with the tool invocation.
func (tc *ToolContext) SessionKey() Key { return tc.runCtx.Key }

// InvocationID returns the invocation ID associated with the tool invocation.
func (tc *ToolContext) InvocationID() string { return tc.runCtx.InvocationID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.agentInfo.Name }

// AgentType returns the agent type associated with the tool invocation.
func (tc *ToolContext) AgentType() string { return tc.agentInfo.Type }

// GetState retrieves the state associated with the given key.
func (tc *ToolContext) GetState(k string) (any, bool) {
	return tc.runCtx.GetState(k)
}

// SetState records a state mutation both on the underlying run context
// (for immediate visibility) and in the local EventActions delta for emission.
// A nil value stages a tombstone.
func (tc *ToolContext) SetState(k string, v any) {
	tc.runCtx.SetState(k, v)

	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = map[string]any{}
	}
	tc.eventActions.StateDelta[k] = v
}

// Actions returns the event actions accumulated in the tool context.
func (tc *ToolContext) Actions() *EventActions { return &tc.eventActions }

// SkipSummarization requests that post-processing summarization be bypassed
// for the originating event.
func (tc *ToolContext) SkipSummarization() {
	if tc.eventActions.SkipSummarization == nil {
		b := true
		tc.eventActions.SkipSummarization = &b
	}
}

// TransferToAgent signals orchestration to handoff control to another agent.
func (tc *ToolContext) TransferToAgent(name string) {
	tc.eventActions.TransferToAgent = &name
	tc.LogInfo("tool.transfer.request", "from_agent", tc.AgentName(), "to_agent", name, "function_call_id", tc.functionCallID)
}

// Escalate requests escalation. Loop-style orchestrators treat an escalating
// event as the signal to stop iterating.
func (tc *ToolContext) Escalate() {
	if tc.eventActions.Escalate == nil {
		b := true
		tc.eventActions.Escalate = &b
	}

	tc.LogInfo("tool.escalate.request", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
}

// artifacts guards access to the optional artifact store.
func (tc *ToolContext) artifacts() (ArtifactStore, error) {
	if tc.runCtx.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}
	return tc.runCtx.ArtifactStore, nil
}

// SaveArtifact persists artifact bytes and records the new version in the
// artifact delta for emission.
func (tc *ToolContext) SaveArtifact(name string, data []byte) (int, error) {
	store, err := tc.artifacts()
	if err != nil {
		return 0, err
	}

	version, err := store.Save(tc.Context(), tc.SessionKey(), name, data)
	if err != nil {
		return 0, err
	}

	if tc.eventActions.ArtifactDelta == nil {
		tc.eventActions.ArtifactDelta = map[string]int{}
	}
	tc.eventActions.ArtifactDelta[name] = version

	return version, nil
}

// LoadArtifact retrieves a persisted artifact by name; version < 0 loads the
// latest.
func (tc *ToolContext) LoadArtifact(name string, version int) ([]byte, error) {
	store, err := tc.artifacts()
	if err != nil {
		return nil, err
	}

	return store.Load(tc.Context(), tc.SessionKey(), name, version)
}

// ListArtifacts returns artifact names stored for the session.
func (tc *ToolContext) ListArtifacts() ([]string, error) {
	store, err := tc.artifacts()
	if err != nil {
		return nil, err
	}

	return store.List(tc.Context(), tc.SessionKey())
}

// SearchMemory performs a recall query against the configured MemoryStore,
// scoped to the invocation's (app, user) pair.
func (tc *ToolContext) SearchMemory(query string) (*SearchMemoryResponse, error) {
	if tc.runCtx.MemoryStore == nil {
		return nil, fmt.Errorf("memory store not configured")
	}

	key := tc.SessionKey()

	return tc.runCtx.MemoryStore.SearchMemory(tc.Context(), key.AppName, key.UserID, query)
}

// GetSessionHistory returns conversation history (filtered) for context.
func (tc *ToolContext) GetSessionHistory() []Event {
	if tc.runCtx.Session == nil {
		return nil
	}

	return tc.runCtx.Session.GetConversationHistory()
}

// RefreshSession reloads the underlying session from the SessionStore.
func (tc *ToolContext) RefreshSession() error {
	if tc.runCtx.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	return tc.runCtx.RefreshSession()
}

// EmitEvent sends an event directly without merging accumulated actions.
func (tc *ToolContext) EmitEvent(ev Event) error {
	if tc.runCtx.Emit == nil {
		return fmt.Errorf("emit channel not configured")
	}

	select {
	case <-tc.runCtx.Context.Done():
		return tc.runCtx.Context.Err()
	case tc.runCtx.Emit <- ev:
	}

	return nil
}

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if !tc.valid || tc.runCtx == nil || tc.runCtx.Key.Validate() != nil || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext")
	}

	return nil
}

// IsValid reports whether Validate would succeed (fast path).
func (tc *ToolContext) IsValid() bool { return tc.Validate() == nil }

// InternalRunContext returns the internal run context.
func (tc *ToolContext) InternalRunContext() *RunContext { return tc.runCtx }

// InternalApplyActions merges accumulated EventActions into the provided event.
// (Used by agents when finalizing tool invocation events.)
func (tc *ToolContext) InternalApplyActions(ev *Event) {
	if len(tc.eventActions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = make(map[string]any, len(tc.eventActions.StateDelta))
		}
		maps.Copy(ev.Actions.StateDelta, tc.eventActions.StateDelta)
	}

	if len(tc.eventActions.ArtifactDelta) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = make(map[string]int, len(tc.eventActions.ArtifactDelta))
		}
		maps.Copy(ev.Actions.ArtifactDelta, tc.eventActions.ArtifactDelta)
	}

	if tc.eventActions.SkipSummarization != nil {
		ev.Actions.SkipSummarization = tc.eventActions.SkipSummarization
	}

	if tc.eventActions.TransferToAgent != nil {
		ev.Actions.TransferToAgent = tc.eventActions.TransferToAgent

		tc.LogInfo("tool.transfer.applied", "from_agent", tc.AgentName(), "to_agent", *tc.eventActions.TransferToAgent, "function_call_id", tc.functionCallID)
	}

	if tc.eventActions.Escalate != nil {
		ev.Actions.Escalate = tc.eventActions.Escalate

		tc.LogInfo("tool.escalate.applied", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
	}
}
