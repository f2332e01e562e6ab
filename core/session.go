package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// TempStatePrefix marks state keys that live only for the duration of an
// invocation. Deltas carrying such keys are visible to staged reads but are
// never merged into persisted session state.
const TempStatePrefix = "temp:"

// Key addresses a session. All three components are required; two sessions
// are the same session iff all three components match.
type Key struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// NewKey builds a session key from its components.
func NewKey(appName, userID, sessionID string) Key {
	return Key{AppName: appName, UserID: userID, SessionID: sessionID}
}

// Validate reports an error when any key component is empty.
func (k Key) Validate() error {
	if k.AppName == "" || k.UserID == "" || k.SessionID == "" {
		return fmt.Errorf("session key requires app_name, user_id and session_id (got %q)", k.String())
	}
	return nil
}

// String renders the key as app/user/session for logs and error messages.
func (k Key) String() string {
	return k.AppName + "/" + k.UserID + "/" + k.SessionID
}

// Session represents a conversational container tracking mutable key/value
// state plus an ordered, append-only event history. It is safe for concurrent
// access.
//
// Contract:
//   - AddEvent appends to the log and merges the event's state delta in the
//     same critical section, so state is always derivable by replaying the log
//   - A delta value of nil is a tombstone: the key is removed from state
//   - Keys prefixed with TempStatePrefix are never merged into state
//   - GetEvents returns a copy; callers never see the internal slice
//   - Clone performs deep copies of maps/slices for safe divergence
type Session struct {
	AppName string                 `json:"app_name"`
	UserID  string                 `json:"user_id"`
	ID      string                 `json:"id"`
	State   map[string]interface{} `json:"state"`
	Events  []Event                `json:"events"`
	Created time.Time              `json:"created"`
	Updated time.Time              `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates an empty session addressed by key.
func NewSession(key Key) *Session {
	now := time.Now().UTC()
	return &Session{
		AppName: key.AppName,
		UserID:  key.UserID,
		ID:      key.SessionID,
		State:   map[string]interface{}{},
		Events:  []Event{},
		Created: now,
		Updated: now,
	}
}

// Key returns the identity triple of this session.
func (s *Session) Key() Key {
	return Key{AppName: s.AppName, UserID: s.UserID, SessionID: s.ID}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// StateSnapshot returns a shallow copy of the current state map.
func (s *Session) StateSnapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]interface{}, len(s.State))
	for k, v := range s.State {
		snap[k] = v
	}
	return snap
}

// SetState sets a key/value pair in session state updating the Updated
// timestamp. A nil value removes the key.
func (s *Session) SetState(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeStateLocked(map[string]interface{}{key: value})
	s.Updated = time.Now().UTC()
}

// ApplyStateDelta merges the provided key/value pairs into State. Later
// values win per key, nil values delete the key, TempStatePrefix keys are
// dropped.
func (s *Session) ApplyStateDelta(delta map[string]interface{}) {
	if len(delta) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeStateLocked(delta)
	s.Updated = time.Now().UTC()
}

func (s *Session) mergeStateLocked(delta map[string]interface{}) {
	for k, v := range delta {
		if strings.HasPrefix(k, TempStatePrefix) {
			continue
		}
		if v == nil {
			delete(s.State, k)
			continue
		}
		s.State[k] = v
	}
}

// AddEvent appends an event to the history and merges its state delta under a
// single lock, keeping the log and the state view consistent.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.mergeStateLocked(ev.Actions.StateDelta)
	s.Updated = time.Now().UTC()
}

// EventCount returns the current length of the event log.
func (s *Session) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Events)
}

// GetEvents returns a copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "model": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		AppName: s.AppName,
		UserID:  s.UserID,
		ID:      s.ID,
		State:   make(map[string]interface{}, len(s.State)),
		Events:  make([]Event, len(s.Events)),
		Created: s.Created,
		Updated: s.Updated,
	}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
//
// Implementations must honor the identity contract: Create fails with
// ErrSessionExists for a key already present; Get, Delete and AppendEvent fail
// with ErrSessionNotFound for a missing key. AppendEvent is the single
// mutation path: it assigns the event its log position, merges the state
// delta (tombstones and temp-key handling included) and persists both
// atomically, returning the updated session.
type SessionStore interface {
	Create(ctx context.Context, key Key, state map[string]any) (*Session, error)
	Get(ctx context.Context, key Key) (*Session, error)
	List(ctx context.Context, appName, userID string) ([]*Session, error)
	Delete(ctx context.Context, key Key) error
	AppendEvent(ctx context.Context, key Key, event Event) (*Session, error)
}
