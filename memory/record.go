package memory

import (
	"strings"
	"time"

	"github.com/hupe1980/agentruntime/core"
)

// Record is one unit of ingested memory. Each record remembers exactly where
// it came from: the session identity plus the event's position in that
// session's log. That provenance is what makes re-ingestion idempotent.
type Record struct {
	ID         string    // assigned at first ingest (ulid)
	AppName    string
	UserID     string
	SessionID  string
	EventIndex int // position in the session's event log
	EventID    string
	Author     string
	Text       string
	Timestamp  time.Time // source event timestamp
}

// Event reconstructs a read-only event view of the record for search results.
func (r Record) Event() core.Event {
	role := "model"
	if r.Author == "user" {
		role = "user"
	}
	return core.Event{
		ID:        r.EventID,
		Author:    r.Author,
		Timestamp: r.Timestamp,
		Content:   core.NewTextContent(role, r.Text),
	}
}

// Extractor turns one persisted event into zero or more memory records. All
// records produced for an event share its provenance, so a custom extractor
// still gets dedupe for free.
type Extractor func(key core.Key, eventIndex int, ev core.Event) []Record

// ExtractText is the default Extractor: one record per event that carries at
// least one non-empty text part, with the text parts joined by newlines.
// Events without text produce nothing.
func ExtractText(key core.Key, eventIndex int, ev core.Event) []Record {
	if ev.Content == nil {
		return nil
	}
	text := strings.TrimSpace(ev.Content.Text())
	if text == "" {
		return nil
	}
	return []Record{{
		AppName:    key.AppName,
		UserID:     key.UserID,
		SessionID:  key.SessionID,
		EventIndex: eventIndex,
		EventID:    ev.ID,
		Author:     ev.Author,
		Text:       text,
		Timestamp:  ev.Timestamp,
	}}
}
