// Package agentruntime provides a high-level façade over the runner and the
// session, artifact and memory stores, enabling rapid construction of
// conversational agent applications. Most applications interact with this
// package by:
//  1. Creating a Runtime via New() around a root agent (optionally overriding
//     the default in-memory stores)
//  2. Creating sessions and submitting user turns (Run / RunStream)
//  3. Ingesting finished sessions into memory and searching them in later
//     turns
//
// The façade delegates dispatching to runner.Runner while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply durable store
// implementations and a structured logger.
package agentruntime

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/logging"
	"github.com/hupe1980/agentruntime/runner"
)

// Options configures the Runtime instance.
type Options struct {
	// AppName scopes every session, artifact and memory record owned by this
	// runtime. Sessions created under one app name are invisible to others.
	AppName string

	// EventBufferSize sets the channel buffer size for event delivery.
	EventBufferSize int

	// MaxModelCalls caps model invocations per run. Zero means unlimited.
	MaxModelCalls int

	// Stores (default to in-memory implementations if not provided).
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Runtime is the high-level façade aggregating the dispatcher and stores.
type Runtime struct {
	runner *runner.Runner
	logger logging.Logger
}

// New creates a Runtime around the given root agent with optional overrides.
// Any unset store is initialized with an in-memory implementation.
func New(agent core.Agent, optFns ...func(o *Options)) *Runtime {
	opts := Options{
		AppName:         "agentruntime",
		EventBufferSize: 100,
		MaxModelCalls:   100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(opts.AppName, agent, func(o *runner.Options) {
		o.EventBufferSize = opts.EventBufferSize
		o.MaxModelCalls = opts.MaxModelCalls
		o.Logger = opts.Logger

		if opts.SessionStore != nil {
			o.SessionStore = opts.SessionStore
		}

		if opts.ArtifactStore != nil {
			o.ArtifactStore = opts.ArtifactStore
		}

		if opts.MemoryStore != nil {
			o.MemoryStore = opts.MemoryStore
		}
	})

	return &Runtime{runner: r, logger: opts.Logger}
}

// AppName returns the application name sessions are scoped to.
func (rt *Runtime) AppName() string { return rt.runner.AppName() }

// Agent returns the root agent runs are dispatched to.
func (rt *Runtime) Agent() core.Agent { return rt.runner.Agent() }

// SessionStore returns the configured session store.
func (rt *Runtime) SessionStore() core.SessionStore { return rt.runner.SessionStore() }

// ArtifactStore returns the configured artifact store.
func (rt *Runtime) ArtifactStore() core.ArtifactStore { return rt.runner.ArtifactStore() }

// MemoryStore returns the configured memory store.
func (rt *Runtime) MemoryStore() core.MemoryStore { return rt.runner.MemoryStore() }

func (rt *Runtime) key(userID, sessionID string) core.Key {
	return core.NewKey(rt.runner.AppName(), userID, sessionID)
}

// CreateSession creates a new session for userID with optional initial state.
// A session that already exists fails with core.ErrSessionExists and leaves
// the existing session untouched.
func (rt *Runtime) CreateSession(ctx context.Context, userID, sessionID string, state map[string]any) (*core.Session, error) {
	return rt.runner.SessionStore().Create(ctx, rt.key(userID, sessionID), state)
}

// GetSession returns the session with its full event log, or
// core.ErrSessionNotFound.
func (rt *Runtime) GetSession(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	return rt.runner.SessionStore().Get(ctx, rt.key(userID, sessionID))
}

// DeleteSession removes a session and its events, or returns
// core.ErrSessionNotFound.
func (rt *Runtime) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return rt.runner.SessionStore().Delete(ctx, rt.key(userID, sessionID))
}

// ListSessions returns all of the user's sessions for this app, without
// event logs.
func (rt *Runtime) ListSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	return rt.runner.SessionStore().List(ctx, rt.runner.AppName(), userID)
}

// Run executes one user turn in batch mode and returns all produced events
// after the turn completed.
func (rt *Runtime) Run(ctx context.Context, userID, sessionID string, newMessage core.Content) ([]core.Event, error) {
	return rt.runner.Run(ctx, userID, sessionID, newMessage)
}

// RunStream executes one user turn and streams events as they are appended.
// With streaming=true the stream additionally carries partial token
// fragments ahead of each consolidated event.
func (rt *Runtime) RunStream(ctx context.Context, userID, sessionID string, newMessage core.Content, streaming bool) (string, <-chan core.Event, <-chan error, error) {
	return rt.runner.RunStream(ctx, userID, sessionID, newMessage, streaming)
}

// Cancel interrupts a running invocation by its run ID.
func (rt *Runtime) Cancel(runID string) error {
	return rt.runner.Cancel(runID)
}

// AddSessionToMemory ingests the session's current event log into long-term
// memory. Ingesting the same session again only adds events appended since.
func (rt *Runtime) AddSessionToMemory(ctx context.Context, userID, sessionID string) error {
	sess, err := rt.runner.SessionStore().Get(ctx, rt.key(userID, sessionID))
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	return rt.runner.MemoryStore().AddSessionToMemory(ctx, sess)
}

// SearchMemory queries long-term memory for the user's previously ingested
// sessions.
func (rt *Runtime) SearchMemory(ctx context.Context, userID, query string) (*core.SearchMemoryResponse, error) {
	return rt.runner.MemoryStore().SearchMemory(ctx, rt.runner.AppName(), userID, query)
}
