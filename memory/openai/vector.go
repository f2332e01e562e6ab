package openai

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/memory"
)

// VectorStoreOptions tune vector search behavior.
type VectorStoreOptions struct {
	// TopK caps how many records a search returns.
	TopK int

	// MinScore drops matches with cosine similarity below the threshold.
	// Non-positive similarities are always dropped.
	MinScore float64
}

// VectorStore is a memory.Index that embeds record text on ingest and ranks
// by cosine similarity on search. Vectors are held in process, bucketed per
// (app name, user id); the embedding backend is the only external piece.
//
// If the backend cannot be reached during a search, the search returns no
// records together with core.ErrMemoryUnavailable. It never falls back to
// another tenant's bucket or to partial rankings.
type VectorStore struct {
	embedder Embedder
	opts     VectorStoreOptions

	mu      sync.RWMutex
	buckets map[tenantKey]map[provenanceKey]entry
}

type tenantKey struct {
	appName string
	userID  string
}

type provenanceKey struct {
	sessionID  string
	eventIndex int
}

type entry struct {
	rec memory.Record
	vec []float32
}

// NewVectorStore creates an empty vector index on top of the embedder.
func NewVectorStore(embedder Embedder, optFns ...func(o *VectorStoreOptions)) *VectorStore {
	opts := VectorStoreOptions{
		TopK: 10,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &VectorStore{
		embedder: embedder,
		opts:     opts,
		buckets:  make(map[tenantKey]map[provenanceKey]entry),
	}
}

// Put embeds the record text and stores the vector alongside the record. An
// embedding failure surfaces to the caller; the ingestor's retry policy
// decides how often to try again.
func (v *VectorStore) Put(ctx context.Context, rec memory.Record) error {
	vecs, err := v.embedder.Embed(ctx, []string{rec.Text})
	if err != nil {
		return fmt.Errorf("embed record: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embed record: got %d vectors", len(vecs))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	t := tenantKey{rec.AppName, rec.UserID}
	bucket, ok := v.buckets[t]
	if !ok {
		bucket = make(map[provenanceKey]entry)
		v.buckets[t] = bucket
	}
	bucket[provenanceKey{rec.SessionID, rec.EventIndex}] = entry{rec: rec, vec: vecs[0]}

	return nil
}

// Has reports whether the provenance was already ingested for the tenant.
func (v *VectorStore) Has(ctx context.Context, appName, userID, sessionID string, eventIndex int) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	bucket, ok := v.buckets[tenantKey{appName, userID}]
	if !ok {
		return false, nil
	}
	_, ok = bucket[provenanceKey{sessionID, eventIndex}]

	return ok, nil
}

// Search embeds the query and ranks the tenant's records by cosine
// similarity. Blank queries and unknown tenants yield no records and no
// error; a backend failure yields no records and core.ErrMemoryUnavailable.
func (v *VectorStore) Search(ctx context.Context, appName, userID, query string) ([]memory.Record, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	// The tenant check comes first so an unknown tenant never costs an
	// embedding call and a backend outage cannot be observed through it.
	v.mu.RLock()
	bucket := v.buckets[tenantKey{appName, userID}]
	entries := make([]entry, 0, len(bucket))
	recency := make(map[string]time.Time)
	for _, e := range bucket {
		entries = append(entries, e)
		if e.rec.Timestamp.After(recency[e.rec.SessionID]) {
			recency[e.rec.SessionID] = e.rec.Timestamp
		}
	}
	v.mu.RUnlock()

	if len(entries) == 0 {
		return nil, nil
	}

	vecs, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMemoryUnavailable, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d query vectors", core.ErrMemoryUnavailable, len(vecs))
	}
	qvec := vecs[0]

	type hit struct {
		rec   memory.Record
		score float64
	}

	hits := make([]hit, 0, len(entries))
	for _, e := range entries {
		score := cosineSimilarity(qvec, e.vec)
		if score <= 0 || score < v.opts.MinScore {
			continue
		}
		hits = append(hits, hit{rec: e.rec, score: score})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		ra, rb := recency[hits[a].rec.SessionID], recency[hits[b].rec.SessionID]
		if !ra.Equal(rb) {
			return ra.After(rb)
		}
		if hits[a].rec.SessionID != hits[b].rec.SessionID {
			return hits[a].rec.SessionID < hits[b].rec.SessionID
		}
		return hits[a].rec.EventIndex < hits[b].rec.EventIndex
	})

	if v.opts.TopK > 0 && len(hits) > v.opts.TopK {
		hits = hits[:v.opts.TopK]
	}

	recs := make([]memory.Record, 0, len(hits))
	for _, h := range hits {
		recs = append(recs, h.rec)
	}

	return recs, nil
}

// cosineSimilarity computes cosine similarity between two vectors. Mismatched
// or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Interface compliance (compile-time assertion)
var _ memory.Index = (*VectorStore)(nil)
