package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/memory"
)

// fakeEmbedder maps exact texts to fixed vectors. Unknown texts embed to the
// zero vector, which scores 0 against everything.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	fail    bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding backend down")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := f.vectors[text]
		if !ok {
			vec = []float32{0, 0, 0}
		}
		out[i] = vec
	}

	return out, nil
}

func vrec(user, session string, idx int, text string) memory.Record {
	return memory.Record{
		AppName:    "app",
		UserID:     user,
		SessionID:  session,
		EventIndex: idx,
		EventID:    "ev",
		Author:     "user",
		Text:       text,
		Timestamp:  time.Now(),
	}
}

func TestVectorStore_RanksBySimilarity(t *testing.T) {
	fake := &fakeEmbedder{vectors: map[string][]float32{
		"all about cats":  {1, 0, 0},
		"all about dogs":  {0, 1, 0},
		"cats and dogs":   {0.7, 0.7, 0},
		"tell me of cats": {1, 0, 0},
	}}
	store := NewVectorStore(fake)
	ctx := context.Background()

	for i, text := range []string{"all about cats", "all about dogs", "cats and dogs"} {
		if err := store.Put(ctx, vrec("u1", "s1", i, text)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := store.Search(ctx, "app", "u1", "tell me of cats")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits (orthogonal text dropped), got %d", len(got))
	}
	if got[0].Text != "all about cats" {
		t.Errorf("closest vector should rank first, got %q", got[0].Text)
	}
	if got[1].Text != "cats and dogs" {
		t.Errorf("partial match should rank second, got %q", got[1].Text)
	}
}

func TestVectorStore_TopKAndMinScore(t *testing.T) {
	fake := &fakeEmbedder{vectors: map[string][]float32{
		"exact": {1, 0, 0},
		"close": {0.7, 0.7, 0},
		"far":   {0.1, 0.9, 0},
		"query": {1, 0, 0},
	}}

	capped := NewVectorStore(fake, func(o *VectorStoreOptions) {
		o.TopK = 1
	})
	ctx := context.Background()
	for i, text := range []string{"exact", "close", "far"} {
		if err := capped.Put(ctx, vrec("u1", "s1", i, text)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := capped.Search(ctx, "app", "u1", "query")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Text != "exact" {
		t.Fatalf("TopK=1 should keep only the best hit, got %+v", got)
	}

	strict := NewVectorStore(fake, func(o *VectorStoreOptions) {
		o.MinScore = 0.95
	})
	for i, text := range []string{"exact", "close", "far"} {
		if err := strict.Put(ctx, vrec("u1", "s1", i, text)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err = strict.Search(ctx, "app", "u1", "query")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Text != "exact" {
		t.Fatalf("MinScore should drop weak matches, got %+v", got)
	}
}

func TestVectorStore_TenantIsolation(t *testing.T) {
	fake := &fakeEmbedder{vectors: map[string][]float32{
		"the secret plan": {1, 0, 0},
	}}
	store := NewVectorStore(fake)
	ctx := context.Background()

	if err := store.Put(ctx, vrec("u1", "s1", 0, "the secret plan")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, vrec("u2", "s2", 0, "the secret plan")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Search(ctx, "app", "u1", "the secret plan")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "u1" {
		t.Fatalf("search must only see its own tenant, got %+v", got)
	}

	// An unknown tenant returns empty without touching the backend.
	calls := fake.calls
	empty, err := store.Search(ctx, "app", "nobody", "the secret plan")
	if err != nil {
		t.Fatalf("search for unknown tenant: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown tenant should get no records, got %d", len(empty))
	}
	if fake.calls != calls {
		t.Errorf("unknown tenant search must not call the embedder")
	}
}

func TestVectorStore_BackendDownAtSearch(t *testing.T) {
	fake := &fakeEmbedder{vectors: map[string][]float32{
		"remember this": {1, 0, 0},
	}}
	store := NewVectorStore(fake)
	ctx := context.Background()

	if err := store.Put(ctx, vrec("u1", "s1", 0, "remember this")); err != nil {
		t.Fatalf("put: %v", err)
	}

	fake.fail = true
	got, err := store.Search(ctx, "app", "u1", "remember this")
	if !errors.Is(err, core.ErrMemoryUnavailable) {
		t.Fatalf("expected ErrMemoryUnavailable, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("a failed search must not return records, got %d", len(got))
	}
}

func TestVectorStore_BlankQuery(t *testing.T) {
	fake := &fakeEmbedder{}
	store := NewVectorStore(fake)

	got, err := store.Search(context.Background(), "app", "u1", "   ")
	if err != nil {
		t.Fatalf("blank query: %v", err)
	}
	if len(got) != 0 || fake.calls != 0 {
		t.Errorf("blank query should short-circuit, got %d records %d calls", len(got), fake.calls)
	}
}

func TestVectorStore_BehindIngestService(t *testing.T) {
	fake := &fakeEmbedder{vectors: map[string][]float32{
		"my cats are hungry": {1, 0, 0},
		"cats":               {1, 0, 0},
	}}
	store := NewVectorStore(fake)
	svc := memory.New(store, func(o *memory.Options) {
		o.MaxAttempts = 2
		o.InitialBackoff = time.Millisecond
		o.MaxBackoff = time.Millisecond
	})
	ctx := context.Background()

	sess := core.NewSession(core.NewKey("app", "u1", "s1"))
	sess.AddEvent(core.NewMessageEvent("user", "my cats are hungry"))

	if err := svc.AddSessionToMemory(ctx, sess); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	resp, err := svc.SearchMemory(ctx, "app", "u1", "cats")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Memories) != 1 || resp.Memories[0].SessionID != "s1" {
		t.Fatalf("expected the ingested session back, got %+v", resp.Memories)
	}

	// Backend outage during ingest exhausts retries and fails the ingest.
	fake.fail = true
	other := core.NewSession(core.NewKey("app", "u1", "s2"))
	other.AddEvent(core.NewMessageEvent("user", "my cats are hungry"))
	if err := svc.AddSessionToMemory(ctx, other); !errors.Is(err, core.ErrIngestion) {
		t.Fatalf("expected ErrIngestion, got %v", err)
	}
}
