package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentruntime/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s_123")

	created, err := store.Create(ctx, key, map[string]any{"plan": "alpha"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Key() != key {
		t.Errorf("created session has wrong identity: %+v", created.Key())
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, _ := got.GetState("plan"); v != "alpha" {
		t.Errorf("state lost on get: %+v", got.State)
	}
	if got.EventCount() != 0 {
		t.Errorf("fresh session should have no events, got %d", got.EventCount())
	}
}

func TestStore_DuplicateCreateFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s_123")

	if _, err := store.Create(ctx, key, map[string]any{"first": true}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := store.Create(ctx, key, map[string]any{"second": true})
	if !errors.Is(err, core.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := got.GetState("first"); !ok {
		t.Error("original state lost after failed duplicate create")
	}
	if _, ok := got.GetState("second"); ok {
		t.Error("failed create must not leak state")
	}
}

func TestStore_IdentityIsFullTriple(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, core.NewKey("app", "u1", "shared"), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, core.NewKey("app", "u2", "shared"), nil); err != nil {
		t.Fatalf("create for second user: %v", err)
	}

	if _, err := store.Get(ctx, core.NewKey("other_app", "u1", "shared")); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("expected not found for foreign app, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), core.NewKey("app", "u1", "nope"))
	if !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_AppendEventMergesState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s1")
	if _, err := store.Create(ctx, key, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i, v := range []string{"draft", "review", "final"} {
		ev := core.NewMessageEvent("assistant", "update")
		ev.InvocationID = "inv"
		ev.Actions.StateDelta = map[string]any{"phase": v}
		if _, err := store.AppendEvent(ctx, key, ev); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, _ := got.GetState("phase"); v != "final" {
		t.Errorf("last writer should win, got %v", v)
	}
	if got.EventCount() != 3 {
		t.Errorf("expected 3 events, got %d", got.EventCount())
	}
}

func TestStore_AppendEventTombstoneAndTemp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s1")
	if _, err := store.Create(ctx, key, map[string]any{"gone": "soon"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ev := core.NewMessageEvent("assistant", "cleanup")
	ev.Actions.StateDelta = map[string]any{
		"gone":       nil,
		"temp:trace": "scratch",
		"kept":       "yes",
	}
	updated, err := store.AppendEvent(ctx, key, ev)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, ok := updated.GetState("gone"); ok {
		t.Error("tombstoned key should be removed from state")
	}
	if _, ok := updated.GetState("temp:trace"); ok {
		t.Error("temp keys must not be persisted")
	}
	if v, _ := updated.GetState("kept"); v != "yes" {
		t.Errorf("regular delta key lost: %+v", updated.State)
	}
}

func TestStore_AppendEventMissingSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AppendEvent(context.Background(), core.NewKey("app", "u1", "nope"), core.NewMessageEvent("a", "x"))
	if !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_AppendRejectsPartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s1")
	if _, err := store.Create(ctx, key, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	partial := true
	ev := core.NewMessageEvent("assistant", "frag")
	ev.Partial = &partial
	if _, err := store.AppendEvent(ctx, key, ev); err == nil {
		t.Fatal("partial events must not be persisted")
	}
}

func TestStore_EventRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s1")
	if _, err := store.Create(ctx, key, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	ev := core.NewEvent("inv-9", "researcher")
	ev.Content = &core.Content{
		Role: "model",
		Parts: []core.Part{
			core.TextPart{Text: "found it"},
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "lookup", Arguments: `{"q":"alpha"}`}},
		},
	}
	ev.Actions.ArtifactDelta = map[string]int{"report.md": 2}

	if _, err := store.AppendEvent(ctx, key, ev); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EventCount() != 1 {
		t.Fatalf("expected 1 event, got %d", got.EventCount())
	}

	back := got.Events[0]
	if back.ID != ev.ID || back.Author != "researcher" || back.InvocationID != "inv-9" {
		t.Errorf("event identity lost: %+v", back)
	}
	if back.Content == nil || len(back.Content.Parts) != 2 {
		t.Fatalf("content parts lost: %+v", back.Content)
	}
	if _, ok := back.Content.Parts[0].(core.TextPart); !ok {
		t.Errorf("first part should decode as text, got %T", back.Content.Parts[0])
	}
	calls := back.GetFunctionCalls()
	if len(calls) != 1 || calls[0].Name != "lookup" {
		t.Errorf("function call lost: %+v", calls)
	}
	if back.Actions.ArtifactDelta["report.md"] != 2 {
		t.Errorf("artifact delta lost: %+v", back.Actions.ArtifactDelta)
	}
	if back.Timestamp.Unix() != ev.Timestamp.Unix() {
		t.Errorf("timestamp drifted: %v vs %v", back.Timestamp, ev.Timestamp)
	}
}

func TestStore_DeleteCascadesEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s1")
	if _, err := store.Create(ctx, key, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AppendEvent(ctx, key, core.NewMessageEvent("user", "hello")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, key); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("second delete should fail with not found, got %v", err)
	}

	// Recreating under the same id starts with an empty log.
	if _, err := store.Create(ctx, key, nil); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EventCount() != 0 {
		t.Errorf("old events leaked into recreated session: %d", got.EventCount())
	}
}

func TestStore_ListScopedToTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if _, err := store.Create(ctx, core.NewKey("app", "u1", id), nil); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := store.Create(ctx, core.NewKey("app", "u2", "s3"), nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.AppendEvent(ctx, core.NewKey("app", "u1", "s1"), core.NewMessageEvent("assistant", "hi")); err != nil {
		t.Fatalf("append: %v", err)
	}

	list, err := store.List(ctx, "app", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions for u1, got %d", len(list))
	}
	if list[0].ID != "s1" {
		t.Errorf("most recently updated session should come first, got %s", list[0].ID)
	}
	for _, sess := range list {
		if sess.UserID != "u1" {
			t.Errorf("foreign session listed: %+v", sess.Key())
		}
		if len(sess.Events) != 0 {
			t.Errorf("listing should omit event logs")
		}
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	ctx := context.Background()
	key := core.NewKey("app", "u1", "s1")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.Create(ctx, key, map[string]any{"plan": "alpha"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AppendEvent(ctx, key, core.NewMessageEvent("user", "remember this")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, key)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if v, _ := got.GetState("plan"); v != "alpha" {
		t.Errorf("state did not survive reopen: %+v", got.State)
	}
	if got.EventCount() != 1 {
		t.Errorf("events did not survive reopen: %d", got.EventCount())
	}
}
