package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentruntime/artifact"
	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/logging"
	"github.com/hupe1980/agentruntime/memory"
	"github.com/hupe1980/agentruntime/session"
)

// Options holds dependency and tuning overrides passed to New().
type Options struct {
	// EventBufferSize sets the channel buffer between the agent, the event
	// pump and the consumer. Larger buffers absorb bursts at the cost of
	// memory.
	EventBufferSize int

	// MaxModelCalls caps model invocations per run. Zero means unlimited.
	MaxModelCalls int

	// SessionStore persists sessions and their event logs.
	// Defaults to the in-memory implementation.
	SessionStore core.SessionStore

	// ArtifactStore persists versioned binary artifacts.
	// Defaults to the in-memory implementation.
	ArtifactStore core.ArtifactStore

	// MemoryStore serves long-term memory ingestion and search.
	// Defaults to the keyword index.
	MemoryStore core.MemoryStore

	// Logger receives structured runtime events. Defaults to no-op.
	Logger logging.Logger
}

// Runner drives a root agent against persisted sessions for one application.
// Each run handles a single user turn: the user message is appended to the
// session log, the agent executes, and every event the agent emits is
// persisted and forwarded to the caller in the same order. Public methods are
// safe for concurrent use; runs for different sessions proceed in parallel.
type Runner struct {
	appName string
	agent   core.Agent

	eventBufferSize int
	maxModelCalls   int

	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	memoryStore   core.MemoryStore
	logger        logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner for appName rooted at agent, with optional
// overrides. Any unset store is initialized with an in-memory implementation
// so the Runner is usable without further setup.
func New(appName string, agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBufferSize: 100,
		MaxModelCalls:   100,
		SessionStore:    session.NewInMemoryStore(),
		ArtifactStore:   artifact.NewInMemoryStore(),
		MemoryStore:     memory.New(memory.NewKeywordStore()),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		appName:         appName,
		agent:           agent,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		sessionStore:    opts.SessionStore,
		artifactStore:   opts.ArtifactStore,
		memoryStore:     opts.MemoryStore,
		logger:          opts.Logger,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// AppName returns the application name runs are scoped to.
func (r *Runner) AppName() string { return r.appName }

// Agent returns the root agent executed by runs.
func (r *Runner) Agent() core.Agent { return r.agent }

// SessionStore returns the configured session store.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// ArtifactStore returns the configured artifact store.
func (r *Runner) ArtifactStore() core.ArtifactStore { return r.artifactStore }

// MemoryStore returns the configured memory store.
func (r *Runner) MemoryStore() core.MemoryStore { return r.memoryStore }

// RunStream executes one user turn and streams the produced events.
//
// The user message is appended to the session log before the agent starts.
// Events then flow through the pump: non-partial events are appended to the
// session, forwarded on the events channel and acknowledged back to the
// agent; partial fragments are forwarded without being persisted. Persisted
// order therefore equals streamed order. The events channel closes after the
// final event; the error channel then carries at most one terminal error.
//
// Cancelling ctx (or calling Cancel with the returned run ID) stops
// production at the next suspension point and surfaces ErrStreamInterrupted.
// Events appended before the interruption remain valid.
func (r *Runner) RunStream(
	ctx context.Context,
	userID string,
	sessionID string,
	newMessage core.Content,
	streaming bool,
) (string, <-chan core.Event, <-chan error, error) {
	key := core.NewKey(r.appName, userID, sessionID)

	if _, err := r.sessionStore.Get(ctx, key); err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	runID := core.NewID()

	// The user turn is part of the log before the agent observes the session,
	// so the snapshot handed to the agent already contains it.
	userEvent := core.NewUserContentEvent(runID, &newMessage)

	sess, err := r.sessionStore.AppendEvent(ctx, key, userEvent)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.eventBufferSize)
	agentDone := make(chan error, 1)
	resumeCh := make(chan struct{}, 1)

	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	rc := core.NewRunContext(
		runCtx,
		key,
		runID,
		core.AgentInfo{Name: r.agent.Name(), Type: "agent"},
		newMessage,
		streaming,
		r.maxModelCalls,
		agentEmit,
		resumeCh,
		sess,
		r.sessionStore,
		r.artifactStore,
		r.memoryStore,
		r.logger,
	)

	r.logger.Debug("runner.run.start", "run_id", runID, "key", key.String(), "agent", r.agent.Name(), "streaming", streaming)

	go func() {
		agentDone <- r.agent.Run(rc)
		close(agentEmit)
	}()

	go func() {
		err := r.pump(runCtx, key, agentEmit, agentDone, resumeCh, eventsCh)

		// Stops a producer that outlived the pump, e.g. after an append
		// failure; EmitEvent and WaitForResume are cancellation-aware.
		cancel()

		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()

		if err != nil {
			errorsCh <- err
		}

		close(eventsCh)
		close(errorsCh)

		r.logger.Debug("runner.run.done", "run_id", runID, "key", key.String(), "error", err)
	}()

	return runID, eventsCh, errorsCh, nil
}

// Run executes one user turn in batch mode: it drains RunStream without
// partial fragments and returns all produced events once the turn reaches its
// final event. On error the events appended before the failure are returned
// alongside it.
func (r *Runner) Run(
	ctx context.Context,
	userID string,
	sessionID string,
	newMessage core.Content,
) ([]core.Event, error) {
	_, eventsCh, errorsCh, err := r.RunStream(ctx, userID, sessionID, newMessage, false)
	if err != nil {
		return nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}

	// errorsCh is closed right after eventsCh, carrying at most one error.
	if err := <-errorsCh; err != nil {
		return events, err
	}

	return events, nil
}

// Cancel interrupts a running invocation by its run ID. The run's stream
// terminates with ErrStreamInterrupted; already persisted events remain
// valid. Returns an error for unknown or already finished run IDs.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.activeRuns[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// pump is the single writer of the session log for this run. For every agent
// event it appends (partials excepted), then forwards, then signals resume so
// the agent proceeds past its suspension point. It returns nil only when the
// agent finished cleanly and every emitted event was handled.
func (r *Runner) pump(
	runCtx context.Context,
	key core.Key,
	agentEmit <-chan core.Event,
	agentDone <-chan error,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
) error {
	for {
		select {
		case <-runCtx.Done():
			return fmt.Errorf("%w: %v", core.ErrStreamInterrupted, runCtx.Err())

		case ev, ok := <-agentEmit:
			if !ok {
				err := <-agentDone
				if err == nil {
					return nil
				}

				// An agent unwinding from cancellation reports the
				// interruption, not its own unwind error.
				if runCtx.Err() != nil {
					return fmt.Errorf("%w: %v", core.ErrStreamInterrupted, err)
				}

				return fmt.Errorf("agent execution failed: %w", err)
			}

			if !ev.IsPartial() {
				if _, err := r.sessionStore.AppendEvent(runCtx, key, ev); err != nil {
					return fmt.Errorf("failed to append event to session: %w", err)
				}

				r.logger.Debug("runner.event.append", "run_id", ev.InvocationID, "event_id", ev.ID, "author", ev.Author)
			}

			if err := r.forward(runCtx, eventsCh, ev); err != nil {
				return err
			}

			if !ev.IsPartial() {
				select {
				case resumeCh <- struct{}{}:
				case <-runCtx.Done():
					return fmt.Errorf("%w: %v", core.ErrStreamInterrupted, runCtx.Err())
				}
			}
		}
	}
}

// forward delivers an event to the consumer channel. An event that was just
// appended is still delivered when cancellation raced the append, as long as
// the buffer has room; only a full buffer with a gone consumer interrupts the
// stream.
func (r *Runner) forward(runCtx context.Context, eventsCh chan<- core.Event, ev core.Event) error {
	select {
	case eventsCh <- ev:
		return nil
	default:
	}

	select {
	case eventsCh <- ev:
		return nil
	case <-runCtx.Done():
		return fmt.Errorf("%w: %v", core.ErrStreamInterrupted, runCtx.Err())
	}
}
