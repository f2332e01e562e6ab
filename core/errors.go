package core

import "errors"

// Sentinel errors shared across store implementations and the dispatcher.
// Callers match with errors.Is; implementations wrap them with the offending
// identifier, e.g. fmt.Errorf("%w: %s", ErrSessionNotFound, key).
var (
	// ErrSessionExists is returned by Create when the key is already taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned when no session exists for a key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrArtifactNotFound is returned when an artifact or version is missing.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrMemoryUnavailable is returned by memory searches when the backing
	// index cannot be reached. Searches failing this way return an empty
	// response alongside the error, never partial or foreign-tenant results.
	ErrMemoryUnavailable = errors.New("memory backend unavailable")

	// ErrIngestion is returned when writing session content into memory
	// failed after retries were exhausted.
	ErrIngestion = errors.New("memory ingestion failed")

	// ErrStreamInterrupted signals that an event stream terminated before its
	// final event, e.g. through cancellation or a producer failure. Events
	// already delivered (and persisted) remain valid.
	ErrStreamInterrupted = errors.New("event stream interrupted")
)
