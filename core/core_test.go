package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Shared in-package test doubles for the store interfaces.

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[Key]*Session
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[Key]*Session{}}
}

func (m *mockSessionStore) Create(_ context.Context, key Key, state map[string]any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, key)
	}
	s := NewSession(key)
	s.ApplyStateDelta(state)
	m.sessions[key] = s
	return s.Clone(), nil
}

func (m *mockSessionStore) Get(_ context.Context, key Key) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return s.Clone(), nil
}

func (m *mockSessionStore) List(_ context.Context, appName, userID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Session
	for k, s := range m.sessions {
		if k.AppName == appName && k.UserID == userID {
			res = append(res, s.Clone())
		}
	}
	return res, nil
}

func (m *mockSessionStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	delete(m.sessions, key)
	return nil
}

func (m *mockSessionStore) AppendEvent(_ context.Context, key Key, ev Event) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	s.AddEvent(ev)
	return s.Clone(), nil
}

type mockArtifactStore struct {
	mu   sync.Mutex
	data map[Key]map[string][][]byte
}

func newMockArtifactStore() *mockArtifactStore {
	return &mockArtifactStore{data: map[Key]map[string][][]byte{}}
}

func (a *mockArtifactStore) Save(_ context.Context, key Key, name string, data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.data[key]; !ok {
		a.data[key] = map[string][][]byte{}
	}
	a.data[key][name] = append(a.data[key][name], append([]byte{}, data...))
	return len(a.data[key][name]) - 1, nil
}

func (a *mockArtifactStore) Load(_ context.Context, key Key, name string, version int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	versions, ok := a.data[key][name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	if version < 0 {
		version = len(versions) - 1
	}
	if version >= len(versions) {
		return nil, fmt.Errorf("%w: %s v%d", ErrArtifactNotFound, name, version)
	}
	return versions[version], nil
}

func (a *mockArtifactStore) Versions(_ context.Context, key Key, name string) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	versions := a.data[key][name]
	res := make([]int, len(versions))
	for i := range versions {
		res[i] = i
	}
	return res, nil
}

func (a *mockArtifactStore) List(_ context.Context, key Key) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var names []string
	for name := range a.data[key] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (a *mockArtifactStore) Delete(_ context.Context, key Key, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.data[key], name)
	return nil
}

type mockMemoryStore struct {
	added    []*Session
	response *SearchMemoryResponse
	err      error
}

func (m *mockMemoryStore) AddSessionToMemory(_ context.Context, sess *Session) error {
	m.added = append(m.added, sess)
	return nil
}

func (m *mockMemoryStore) SearchMemory(_ context.Context, appName, userID, query string) (*SearchMemoryResponse, error) {
	if m.err != nil {
		return &SearchMemoryResponse{}, m.err
	}
	if m.response != nil {
		return m.response, nil
	}
	return &SearchMemoryResponse{}, nil
}

var testKey = Key{AppName: "test-app", UserID: "test-user", SessionID: "test-session"}

func newRunContextForTest() (*RunContext, chan Event) {
	emit := make(chan Event, 10)
	resume := make(chan struct{}, 10)
	store := newMockSessionStore()
	sess, _ := store.Create(context.Background(), testKey, nil)
	return NewRunContext(
		context.Background(), testKey, "test-invocation",
		AgentInfo{Name: "Test Agent", Type: "test"},
		Content{Role: "user", Parts: []Part{TextPart{Text: "Test input"}}},
		false, 0, emit, resume, sess,
		store, newMockArtifactStore(), &mockMemoryStore{}, nil,
	), emit
}

// Compile-time checks that the doubles satisfy the store contracts.
var (
	_ SessionStore  = (*mockSessionStore)(nil)
	_ ArtifactStore = (*mockArtifactStore)(nil)
	_ MemoryStore   = (*mockMemoryStore)(nil)
)
