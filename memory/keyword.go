package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

// KeywordOptions tunes keyword search behavior.
type KeywordOptions struct {
	// TopK caps how many records a search returns. Zero means no cap.
	TopK int

	// MinScore drops matches scoring below the threshold. Zero-score
	// records are always dropped regardless.
	MinScore float64
}

// KeywordStore is the default in-process Index. Records are bucketed per
// (app name, user id) and ranked by token overlap with the query: the score
// is the fraction of query tokens the record's text contains. Normalization
// (lower-casing, punctuation stripped to spaces) is applied identically to
// documents and queries, so "Project Alpha!" and "project alpha" match.
//
// Ties rank the record from the more recently active session first, where a
// session's recency is the newest record timestamp it contributed.
type KeywordStore struct {
	mu      sync.RWMutex
	buckets map[tenantKey]map[provenanceKey]Record
	opts    KeywordOptions
}

type tenantKey struct {
	appName string
	userID  string
}

type provenanceKey struct {
	sessionID  string
	eventIndex int
}

// NewKeywordStore creates an empty keyword index.
func NewKeywordStore(optFns ...func(o *KeywordOptions)) *KeywordStore {
	opts := KeywordOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &KeywordStore{
		buckets: make(map[tenantKey]map[provenanceKey]Record),
		opts:    opts,
	}
}

// Put stores the record in its tenant bucket, replacing any earlier record
// with the same provenance.
func (k *KeywordStore) Put(ctx context.Context, rec Record) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	t := tenantKey{rec.AppName, rec.UserID}
	bucket, ok := k.buckets[t]
	if !ok {
		bucket = make(map[provenanceKey]Record)
		k.buckets[t] = bucket
	}
	bucket[provenanceKey{rec.SessionID, rec.EventIndex}] = rec

	return nil
}

// Has reports whether the provenance was already ingested for the tenant.
func (k *KeywordStore) Has(ctx context.Context, appName, userID, sessionID string, eventIndex int) (bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	bucket, ok := k.buckets[tenantKey{appName, userID}]
	if !ok {
		return false, nil
	}
	_, ok = bucket[provenanceKey{sessionID, eventIndex}]

	return ok, nil
}

// Search ranks the tenant's records against the query. Empty queries and
// unknown tenants yield no records and no error.
func (k *KeywordStore) Search(ctx context.Context, appName, userID, query string) ([]Record, error) {
	qTokens := tokenSet(query)
	if len(qTokens) == 0 {
		return nil, nil
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	bucket := k.buckets[tenantKey{appName, userID}]
	if len(bucket) == 0 {
		return nil, nil
	}

	recency := make(map[string]time.Time)
	for _, rec := range bucket {
		if rec.Timestamp.After(recency[rec.SessionID]) {
			recency[rec.SessionID] = rec.Timestamp
		}
	}

	type hit struct {
		rec   Record
		score float64
	}

	hits := make([]hit, 0)
	for _, rec := range bucket {
		score := overlapScore(qTokens, tokenSet(rec.Text))
		if score == 0 || score < k.opts.MinScore {
			continue
		}
		hits = append(hits, hit{rec: rec, score: score})
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

	if k.opts.TopK > 0 && len(hits) > k.opts.TopK {
		hits = hits[:k.opts.TopK]
	}

	recs := make([]Record, 0, len(hits))
	for _, h := range hits {
		recs = append(recs, h.rec)
	}

	return recs, nil
}

// tokenSet lower-cases the text, treats every non-alphanumeric rune as a
// separator and returns the distinct tokens.
func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}

	return set
}

// overlapScore is the fraction of query tokens present in the document.
func overlapScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}

	matched := 0
	for tok := range query {
		if _, ok := doc[tok]; ok {
			matched++
		}
	}

	return float64(matched) / float64(len(query))
}

// Interface compliance (compile-time assertion)
var _ Index = (*KeywordStore)(nil)
