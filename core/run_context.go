package core

import (
	"context"
	"fmt"
	"sync"

	"maps"

	"github.com/hupe1980/agentruntime/logging"
)

// RunContext is the mutable per-invocation scope handed to an Agent's Run
// method. It bundles the ambient cancellation Context, the session Key and
// InvocationID, the triggering user Content, the emit/resume channel pair
// toward the dispatcher, the backing stores, a working Session snapshot and
// the staged StateDelta / Artifacts buffers.
//
// Mutations staged via SetState or SaveArtifact ride along on the next
// EmitEvent call; they reach persisted state only when the dispatcher appends
// that event. Clone and NewChildContext produce isolated buffers while the
// underlying stores, session snapshot and model-call budget stay shared.
type RunContext struct {
	Context       context.Context
	Key           Key
	InvocationID  string
	Agent         AgentInfo
	UserContent   Content
	Streaming     bool
	Emit          chan<- Event
	Resume        <-chan struct{}
	SessionStore  SessionStore
	ArtifactStore ArtifactStore
	MemoryStore   MemoryStore
	Session       *Session
	StateDelta    map[string]any
	Artifacts     map[string]int
	Branch        string

	budget *modelBudget

	*loggerAdapter
}

// NewRunContext constructs a RunContext with empty state and artifact deltas.
func NewRunContext(
	ctx context.Context,
	key Key,
	invocationID string,
	agent AgentInfo,
	userContent Content,
	streaming bool,
	maxModelCalls int,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	artifactStore ArtifactStore,
	memoryStore MemoryStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		Key:           key,
		InvocationID:  invocationID,
		Agent:         agent,
		UserContent:   userContent,
		Streaming:     streaming,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		ArtifactStore: artifactStore,
		MemoryStore:   memoryStore,
		StateDelta:    map[string]any{},
		Artifacts:     map[string]int{},
		budget:        newModelBudget(maxModelCalls),
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// ConsumeModelCall counts one model invocation against the per-run budget.
// It returns an error once the configured maximum is exceeded; a budget of 0
// is unlimited. The budget is shared across clones and child contexts.
func (rc *RunContext) ConsumeModelCall() error { return rc.budget.consume() }

// ModelCallsUsed returns how many model calls this run has made so far.
func (rc *RunContext) ModelCallsUsed() int { return rc.budget.used() }

// GetState returns a staged (delta) value if present, else the persisted
// session value. Tombstoned keys (staged nil) read as absent.
func (rc *RunContext) GetState(k string) (any, bool) {
	if v, ok := rc.StateDelta[k]; ok {
		if v == nil {
			return nil, false
		}
		return v, true
	}

	if rc.Session != nil {
		return rc.Session.GetState(k)
	}

	return nil, false
}

// SetState stages a state mutation in the in-memory delta buffer. A nil value
// stages a tombstone that removes the key when the delta is applied.
func (rc *RunContext) SetState(k string, v any) { rc.StateDelta[k] = v }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(rc.StateDelta, d)
}

// SaveArtifact stores bytes in the ArtifactStore and stages the new version
// for the next emitted event's artifact delta.
func (rc *RunContext) SaveArtifact(name string, data []byte) (int, error) {
	if rc.ArtifactStore == nil {
		return 0, fmt.Errorf("artifact store not configured")
	}

	version, err := rc.ArtifactStore.Save(rc.Context, rc.Key, name, data)
	if err != nil {
		return 0, err
	}

	rc.Artifacts[name] = version

	return version, nil
}

// LoadArtifact retrieves previously saved artifact bytes; version < 0 loads
// the latest.
func (rc *RunContext) LoadArtifact(name string, version int) ([]byte, error) {
	if rc.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}

	return rc.ArtifactStore.Load(rc.Context, rc.Key, name, version)
}

// ListArtifacts returns artifact names stored for the session.
func (rc *RunContext) ListArtifacts() ([]string, error) {
	if rc.ArtifactStore == nil {
		return []string{}, nil
	}

	return rc.ArtifactStore.List(rc.Context, rc.Key)
}

// SearchMemory queries the MemoryStore for content of previously ingested
// sessions belonging to this invocation's (app, user) pair.
func (rc *RunContext) SearchMemory(query string) (*SearchMemoryResponse, error) {
	if rc.MemoryStore == nil {
		return &SearchMemoryResponse{}, nil
	}

	return rc.MemoryStore.SearchMemory(rc.Context, rc.Key.AppName, rc.Key.UserID, query)
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	s, err := rc.SessionStore.Get(rc.Context, rc.Key)
	if err != nil {
		return err
	}

	rc.Session = s

	return nil
}

// GetSessionHistory returns all historical events for the session snapshot.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}

	return rc.Session.GetEvents()
}

// GetAgentName returns the logical agent name for this invocation.
func (rc *RunContext) GetAgentName() string { return rc.Agent.Name }

// GetAgentType returns a categorization label for the agent.
func (rc *RunContext) GetAgentType() string { return rc.Agent.Type }

// fork copies the context with fresh, empty delta buffers and the given
// channel pair and branch. Stores, session snapshot, budget and logger are
// shared with the receiver.
func (rc *RunContext) fork(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	c := *rc
	c.Emit = emit
	c.Resume = resume
	c.Branch = branch
	c.StateDelta = map[string]any{}
	c.Artifacts = map[string]int{}

	return &c
}

// Clone returns a copy with deep-copied delta & artifact buffers. The
// model-call budget stays shared.
func (rc *RunContext) Clone() *RunContext {
	c := rc.fork(rc.Emit, rc.Resume, rc.Branch)
	maps.Copy(c.StateDelta, rc.StateDelta)
	maps.Copy(c.Artifacts, rc.Artifacts)

	return c
}

// WithBranch clones the context and sets the Branch label.
func (rc *RunContext) WithBranch(b string) *RunContext {
	c := rc.Clone()
	c.Branch = b
	return c
}

// NewChildContext derives a context for a nested / child execution path with
// empty delta buffers and its own emit/resume channel pair. An empty branch
// inherits the parent's.
func (rc *RunContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	if branch == "" {
		branch = rc.Branch
	}

	return rc.fork(emit, resume, branch)
}

// attachPending folds the staged state and artifact deltas into ev's actions.
func (rc *RunContext) attachPending(ev *Event) {
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = make(map[string]any, len(rc.StateDelta))
		}
		maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
	}

	if len(rc.Artifacts) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = make(map[string]int, len(rc.Artifacts))
		}
		maps.Copy(ev.Actions.ArtifactDelta, rc.Artifacts)
	}
}

// deliver performs a cancellation-aware send toward the dispatcher.
func (rc *RunContext) deliver(ev Event) error {
	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
		return nil
	}
}

// EmitEvent merges pending StateDelta / Artifacts into the event, stamps
// missing correlation fields and sends it to the dispatcher. Buffers are
// cleared only after a successful send.
func (rc *RunContext) EmitEvent(ev Event) error {
	if ev.InvocationID == "" {
		ev.InvocationID = rc.InvocationID
	}

	if rc.Branch != "" && ev.Branch == nil {
		b := rc.Branch
		ev.Branch = &b
	}

	rc.attachPending(&ev)

	if err := rc.deliver(ev); err != nil {
		return err
	}

	rc.StateDelta = map[string]any{}
	rc.Artifacts = map[string]int{}

	return nil
}

// WaitForResume blocks until the dispatcher confirms the previously emitted
// event was appended, or until cancellation.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}

	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}

// modelBudget counts model calls for one run. Shared by pointer across
// clones so parallel branches draw from the same allowance.
type modelBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

func newModelBudget(max int) *modelBudget { return &modelBudget{max: max} }

func (b *modelBudget) consume() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.max > 0 && b.count > b.max {
		return fmt.Errorf("exceeded max model calls: %d", b.max)
	}

	return nil
}

func (b *modelBudget) used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}
