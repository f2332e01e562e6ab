// Package artifact contains concrete implementations of the core.ArtifactStore.
//
// The canonical ArtifactStore interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation packages
// like this one (in-memory, sqlite, cloud object stores) provide storage
// backends that can be swapped without touching calling code.
//
// Artifacts are versioned binary blobs scoped to a session identity. Saving
// a name again appends a new version rather than overwriting; loads address a
// specific version or the latest. Callers should depend on the core interface
// rather than concrete types so they can substitute alternative persistence
// layers in tests or production.
package artifact
