package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/logging"
)

// Index is the pluggable backend a Service writes records to and searches
// against. Implementations must bucket records by (app name, user id) and
// never let a search observe another bucket.
type Index interface {
	// Put stores a record, replacing any record with the same provenance.
	Put(ctx context.Context, rec Record) error

	// Has reports whether a record with the given provenance was already
	// ingested.
	Has(ctx context.Context, appName, userID, sessionID string, eventIndex int) (bool, error)

	// Search returns the tenant's records matching the query in ranked
	// order. An empty query yields no records and no error.
	Search(ctx context.Context, appName, userID, query string) ([]Record, error)
}

// IngestReport summarizes one ingest pass over a session's event log.
type IngestReport struct {
	Added   int // records written to the index
	Skipped int // events whose provenance was already present
}

// Options configures a Service.
type Options struct {
	// Extractor converts persisted events into records. Defaults to
	// ExtractText.
	Extractor Extractor

	// Logger receives retry warnings. Defaults to a no-op logger.
	Logger logging.Logger

	// MaxAttempts bounds how often a failed index write is retried.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Service ties an Index to the core.MemoryStore contract: AddSessionToMemory
// ingests a session's event log, SearchMemory queries the index and groups
// the hits by source session.
type Service struct {
	index Index
	opts  Options

	mu      sync.Mutex
	entropy *rand.Rand
}

// New creates a memory Service on top of the given index.
func New(index Index, optFns ...func(o *Options)) *Service {
	opts := Options{
		Extractor:      ExtractText,
		Logger:         logging.NoOpLogger{},
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Service{
		index:   index,
		opts:    opts,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AddSessionToMemory implements core.MemoryStore.
func (s *Service) AddSessionToMemory(ctx context.Context, sess *core.Session) error {
	_, err := s.Ingest(ctx, sess)
	return err
}

// Ingest walks the session's event log in order and writes a record for every
// event the extractor yields, skipping provenance that is already in the
// index. It returns how far it got; on error the report covers the records
// written before the failure.
func (s *Service) Ingest(ctx context.Context, sess *core.Session) (IngestReport, error) {
	var report IngestReport

	if sess == nil {
		return report, fmt.Errorf("%w: nil session", core.ErrIngestion)
	}

	key := sess.Key()
	if err := key.Validate(); err != nil {
		return report, fmt.Errorf("%w: %v", core.ErrIngestion, err)
	}

	for i, ev := range sess.GetEvents() {
		ok, err := s.index.Has(ctx, key.AppName, key.UserID, key.SessionID, i)
		if err != nil {
			return report, fmt.Errorf("%w: probing event %d: %v", core.ErrIngestion, i, err)
		}
		if ok {
			report.Skipped++
			continue
		}

		for _, rec := range s.opts.Extractor(key, i, ev) {
			rec.ID = s.newID()
			if err := s.putWithRetry(ctx, rec); err != nil {
				return report, fmt.Errorf("%w: session %s event %d: %v", core.ErrIngestion, key.SessionID, i, err)
			}
			report.Added++
		}
	}

	return report, nil
}

// SearchMemory implements core.MemoryStore. Results are grouped by source
// session in the index's ranking order; within a session, events appear in
// log order.
func (s *Service) SearchMemory(ctx context.Context, appName, userID, query string) (*core.SearchMemoryResponse, error) {
	resp := &core.SearchMemoryResponse{Memories: []*core.MemoryResult{}}

	recs, err := s.index.Search(ctx, appName, userID, query)
	if err != nil {
		return resp, err
	}

	bySession := make(map[string][]Record)
	order := make([]string, 0)
	for _, rec := range recs {
		if _, ok := bySession[rec.SessionID]; !ok {
			order = append(order, rec.SessionID)
		}
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}

	for _, sid := range order {
		group := bySession[sid]
		sort.Slice(group, func(a, b int) bool { return group[a].EventIndex < group[b].EventIndex })

		result := &core.MemoryResult{SessionID: sid, Events: make([]core.Event, 0, len(group))}
		for _, rec := range group {
			result.Events = append(result.Events, rec.Event())
		}
		resp.Memories = append(resp.Memories, result)
	}

	return resp, nil
}

// putWithRetry writes one record with bounded exponential backoff. The
// context bounds the total retry time.
func (s *Service) putWithRetry(ctx context.Context, rec Record) error {
	backoff := s.opts.InitialBackoff

	var lastErr error
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.opts.MaxBackoff {
				backoff = s.opts.MaxBackoff
			}
		}

		if lastErr = s.index.Put(ctx, rec); lastErr == nil {
			return nil
		}

		s.opts.Logger.Warn("memory.ingest.retry",
			"session_id", rec.SessionID,
			"event_index", rec.EventIndex,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	return lastErr
}

func (s *Service) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Interface compliance (compile-time assertion)
var _ core.MemoryStore = (*Service)(nil)
