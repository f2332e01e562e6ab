package artifact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/agentruntime/core"
)

func testKey() core.Key { return core.NewKey("app", "user-1", "sess-1") }

func TestInMemoryStore_VersionsAreAppendOnly(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	key := testKey()

	v0, err := store.Save(ctx, key, "report.md", []byte("draft"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if v0 != 0 {
		t.Fatalf("expected first version 0, got %d", v0)
	}

	v1, err := store.Save(ctx, key, "report.md", []byte("final"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("expected second version 1, got %d", v1)
	}

	latest, err := store.Load(ctx, key, "report.md", -1)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if string(latest) != "final" {
		t.Fatalf("expected latest 'final', got %q", latest)
	}

	draft, err := store.Load(ctx, key, "report.md", 0)
	if err != nil {
		t.Fatalf("load v0: %v", err)
	}
	if string(draft) != "draft" {
		t.Fatalf("expected v0 'draft', got %q", draft)
	}

	versions, err := store.Versions(ctx, key, "report.md")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 2 || versions[0] != 0 || versions[1] != 1 {
		t.Fatalf("expected versions [0 1], got %v", versions)
	}
}

func TestInMemoryStore_CopyIsolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	key := testKey()

	data := []byte("hello")
	if _, err := store.Save(ctx, key, "a1", data); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the input after save must not affect the stored bytes.
	data[0] = 'H'
	out, err := store.Load(ctx, key, "a1", -1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("expected 'hello', got %q", out)
	}

	// Mutating the returned slice must not affect later loads.
	out[0] = 'x'
	out2, _ := store.Load(ctx, key, "a1", -1)
	if string(out2) != "hello" {
		t.Fatalf("expected isolation, got %q", out2)
	}
}

func TestInMemoryStore_MissingArtifacts(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	key := testKey()

	if _, err := store.Load(ctx, key, "nope", -1); !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if _, err := store.Versions(ctx, key, "nope"); !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if err := store.Delete(ctx, key, "nope"); !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}

	if _, err := store.Save(ctx, key, "a1", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx, key, "a1", 5); !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound for missing version, got %v", err)
	}
}

func TestInMemoryStore_SessionScoping(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	keyA := core.NewKey("app", "user-1", "sess-a")
	keyB := core.NewKey("app", "user-1", "sess-b")

	if _, err := store.Save(ctx, keyA, "notes", []byte("A")); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(ctx, keyB, "notes", -1); !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected artifacts to be scoped per session, got %v", err)
	}

	names, err := store.List(ctx, keyB)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty list for other session, got %v", names)
	}
}

func TestInMemoryStore_ListAndDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	key := testKey()

	if _, err := store.Save(ctx, key, "b", []byte("2")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(ctx, key, "a", []byte("1")); err != nil {
		t.Fatal(err)
	}

	names, err := store.List(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected sorted [a b], got %v", names)
	}

	if err := store.Delete(ctx, key, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, key, "a", -1); !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected error for deleted artifact, got %v", err)
	}

	names, _ = store.List(ctx, key)
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("expected [b] after delete, got %v", names)
	}
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	key := testKey()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("a%d", i%10)
			if _, err := store.Save(ctx, key, name, []byte("data")); err != nil {
				t.Errorf("save err: %v", err)
			}
			_, _ = store.List(ctx, key)
		}()
	}
	wg.Wait()

	names, err := store.List(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 10 {
		t.Fatalf("expected 10 artifact names, got %d", len(names))
	}

	// Ten concurrent saves per name leave ten versions each.
	for _, name := range names {
		versions, err := store.Versions(ctx, key, name)
		if err != nil {
			t.Fatal(err)
		}
		if len(versions) != 10 {
			t.Fatalf("expected 10 versions of %s, got %d", name, len(versions))
		}
	}
}
