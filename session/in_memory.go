package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentruntime/core"
)

// InMemoryStore is a volatile SessionStore implementation storing sessions in
// a process local map keyed by the full (app, user, session) identity. It is
// safe for concurrent access and best suited for tests or ephemeral demo
// servers. Each returned session is cloned to prevent external mutation of
// internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[core.Key]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[core.Key]*core.Session)}
}

// Create allocates a new session for key, seeding its state with the optional
// initial map. Creating a key that already exists fails with
// core.ErrSessionExists and leaves the existing session untouched.
func (s *InMemoryStore) Create(_ context.Context, key core.Key, state map[string]any) (*core.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionExists, key)
	}

	sess := core.NewSession(key)
	sess.ApplyStateDelta(state)
	s.sessions[key] = sess

	return sess.Clone(), nil
}

// Get returns a clone of the session for key or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, key core.Key) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	return sess.Clone(), nil
}

// List returns the sessions belonging to (appName, userID) ordered by most
// recent update. Listed sessions omit their event logs; use Get for the full
// history.
func (s *InMemoryStore) List(_ context.Context, appName, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*core.Session, 0)
	for key, sess := range s.sessions {
		if key.AppName != appName || key.UserID != userID {
			continue
		}
		clone := sess.Clone()
		clone.Events = nil
		res = append(res, clone)
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].Updated.Equal(res[j].Updated) {
			return res[i].Updated.After(res[j].Updated)
		}
		return res[i].ID < res[j].ID
	})

	return res, nil
}

// Delete removes the session for key. Missing sessions fail with
// core.ErrSessionNotFound. Memory derived from the session is unaffected;
// session and memory lifecycles are decoupled.
func (s *InMemoryStore) Delete(_ context.Context, key core.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	delete(s.sessions, key)

	return nil
}

// AppendEvent appends ev to the session's log and merges its state delta in
// one step. It is the single mutation path for session contents; partial
// events are rejected since they must never be persisted.
func (s *InMemoryStore) AppendEvent(_ context.Context, key core.Key, ev core.Event) (*core.Session, error) {
	if ev.IsPartial() {
		return nil, fmt.Errorf("partial event %s cannot be persisted", ev.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	sess.AddEvent(ev)

	return sess.Clone(), nil
}

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)
