package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	b, _ := store.CreateSession(ctx)
	if a == "" || a == b {
		t.Fatalf("expected distinct ids, got %q and %q", a, b)
	}

	history, err := store.History(ctx, a)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", history)
	}
}

func TestAppendAndHistoryOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id, _ := store.CreateSession(ctx)

	want := []struct {
		role    Role
		content string
	}{
		{RoleUser, "hi"},
		{RoleAgent, "This is a placeholder response to: hi"},
		{RoleUser, "bye"},
		{RoleAgent, "This is a placeholder response to: bye"},
	}
	for _, w := range want {
		if _, err := store.Append(ctx, id, w.role, w.content); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	history, err := store.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != len(want) {
		t.Fatalf("got %d turns, want %d", len(history), len(want))
	}
	for i, w := range want {
		if history[i].Role != w.role || history[i].Content != w.content {
			t.Errorf("turn %d = %s/%q, want %s/%q", i, history[i].Role, history[i].Content, w.role, w.content)
		}
		if history[i].CreatedAt.IsZero() {
			t.Errorf("turn %d has no timestamp", i)
		}
	}
}

func TestAppendUnknownSessionRegistersIt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "made-up", RoleUser, "hello"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	history, _ := store.History(ctx, "made-up")
	if len(history) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(history))
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "made-up" || sessions[0].MessageCount != 1 {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestHistoryIsolatedPerSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	a, _ := store.CreateSession(ctx)
	b, _ := store.CreateSession(ctx)

	store.Append(ctx, a, RoleUser, "for a")
	store.Append(ctx, b, RoleUser, "for b")

	history, _ := store.History(ctx, a)
	if len(history) != 1 || history[0].Content != "for a" {
		t.Fatalf("history of a = %+v", history)
	}
}

func TestAppendRejectsEmptySession(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Append(context.Background(), "", RoleUser, "x"); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	store, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	id, _ := store.CreateSession(ctx)
	store.Append(ctx, id, RoleUser, "remember me")
	store.Close()

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	history, err := reopened.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Content != "remember me" {
		t.Fatalf("history after reopen = %+v", history)
	}
}

func TestConcurrentAppends(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id, _ := store.CreateSession(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Append(ctx, id, RoleUser, "x"); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	history, _ := store.History(ctx, id)
	if len(history) != 20 {
		t.Fatalf("got %d turns, want 20", len(history))
	}
}

func TestPlaceholderResponder(t *testing.T) {
	reply, err := Placeholder{}.Respond(context.Background(), "s", "hi")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "This is a placeholder response to: hi" {
		t.Errorf("reply = %q", reply)
	}
}
