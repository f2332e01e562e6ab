package core

import "context"

// ArtifactStore defines versioned binary artifact persistence scoped to a
// session. Save appends a new version (starting at 0) and returns it; Load
// with version < 0 resolves the latest. Missing names or versions yield
// ErrArtifactNotFound.
type ArtifactStore interface {
	Save(ctx context.Context, key Key, name string, data []byte) (int, error)
	Load(ctx context.Context, key Key, name string, version int) ([]byte, error)
	Versions(ctx context.Context, key Key, name string) ([]int, error)
	List(ctx context.Context, key Key) ([]string, error)
	Delete(ctx context.Context, key Key, name string) error
}
