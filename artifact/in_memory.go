package artifact

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentruntime/core"
)

// InMemoryStore is a volatile ArtifactStore keeping every artifact version in
// process-local maps. It is safe for concurrent access and best suited for
// tests, examples and single-process prototypes. Data is copied on save and
// load to avoid accidental external mutation of internal buffers.
//
// Layout: session key -> artifact name -> ordered version slices. Versions
// are dense and zero-based; Save always appends.
//
// This implementation does not enforce retention limits, size quotas, or
// eviction. For durable storage use the sqlite sub-package.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[core.Key]map[string][][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[core.Key]map[string][][]byte)}
}

// Save appends a new version of the named artifact and returns its version
// number, starting at 0 for the first save. The input slice is copied.
func (a *InMemoryStore) Save(_ context.Context, key core.Key, name string, data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byName, ok := a.artifacts[key]
	if !ok {
		byName = make(map[string][][]byte)
		a.artifacts[key] = byName
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	byName[name] = append(byName[name], cp)

	return len(byName[name]) - 1, nil
}

// Load returns a copy of the requested version, or of the latest version when
// version is negative. Missing names or versions fail with
// core.ErrArtifactNotFound.
func (a *InMemoryStore) Load(_ context.Context, key core.Key, name string, version int) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	versions, ok := a.artifacts[key][name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, name)
	}

	if version < 0 {
		version = len(versions) - 1
	}
	if version >= len(versions) {
		return nil, fmt.Errorf("%w: %s v%d", core.ErrArtifactNotFound, name, version)
	}

	data := versions[version]
	cp := make([]byte, len(data))
	copy(cp, data)

	return cp, nil
}

// Versions lists the stored version numbers for the named artifact in
// ascending order. Unknown names fail with core.ErrArtifactNotFound.
func (a *InMemoryStore) Versions(_ context.Context, key core.Key, name string) ([]int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	versions, ok := a.artifacts[key][name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, name)
	}

	out := make([]int, len(versions))
	for i := range versions {
		out[i] = i
	}

	return out, nil
}

// List returns the artifact names stored for the session in sorted order.
// The slice is a snapshot and safe for caller mutation.
func (a *InMemoryStore) List(_ context.Context, key core.Key) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byName, ok := a.artifacts[key]
	if !ok {
		return []string{}, nil
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// Delete removes the named artifact with all its versions, or fails with
// core.ErrArtifactNotFound.
func (a *InMemoryStore) Delete(_ context.Context, key core.Key, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byName, ok := a.artifacts[key]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrArtifactNotFound, name)
	}
	if _, ok := byName[name]; !ok {
		return fmt.Errorf("%w: %s", core.ErrArtifactNotFound, name)
	}

	delete(byName, name)
	if len(byName) == 0 {
		delete(a.artifacts, key)
	}

	return nil
}

// Interface compliance (compile-time assertion)
var _ core.ArtifactStore = (*InMemoryStore)(nil)
