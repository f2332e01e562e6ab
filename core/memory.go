package core

import "context"

// MemoryStore defines long-term conversational memory: ingesting completed
// sessions and searching what was ingested.
//
// Implementations bucket content by (app name, user id); a search can only
// ever observe sessions ingested for the same pair. AddSessionToMemory must be
// idempotent with respect to the session's event log, so re-ingesting a
// session after new events were appended adds only the new content.
type MemoryStore interface {
	AddSessionToMemory(ctx context.Context, sess *Session) error
	SearchMemory(ctx context.Context, appName, userID, query string) (*SearchMemoryResponse, error)
}

// SearchMemoryResponse carries the ranked results of a memory search.
type SearchMemoryResponse struct {
	Memories []*MemoryResult `json:"memories"`
}

// MemoryResult groups the matched content of one ingested session. Events are
// reconstructed from the stored records in their original log order.
type MemoryResult struct {
	SessionID string  `json:"session_id"`
	Events    []Event `json:"events"`
}
