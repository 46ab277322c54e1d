package docstore

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore(MemoryConfig{Clock: fixedClock(contractEpoch), IDs: sequentialIDs("mem")})
	})
}

func TestMemoryStoreDoesNotAliasWrittenDocuments(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{})
	key := Key{Collection: "boards", ID: "user-1"}
	tasks := []any{map[string]any{"id": "a"}}
	document := Document{"columns": map[string]any{"todo": map[string]any{"tasks": tasks}}}

	if err := store.Write(context.Background(), key, document); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	tasks[0] = "mutated after write"

	snapshot, err := store.Get(key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	stored := snapshot.Data["columns"].(map[string]any)["todo"].(map[string]any)["tasks"].([]any)
	if _, ok := stored[0].(map[string]any); !ok {
		t.Fatalf("stored document aliased caller data: %#v", stored)
	}
}

func TestMemoryStoreResolvesServerTimestamp(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewMemoryStore(MemoryConfig{Clock: func() time.Time { return now }})

	key, err := store.Create(context.Background(), "notes", noteDocument("user-1", "x"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	snapshot, err := store.Get(key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if createdAt, ok := snapshot.Data["createdAt"].(time.Time); !ok || !createdAt.Equal(now) {
		t.Fatalf("expected server timestamp %v, got %#v", now, snapshot.Data["createdAt"])
	}
}

func TestMemoryStoreWatchQueryRequiresOwner(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{})
	stream, stop := store.WatchQuery(context.Background(), Query{Collection: "notes"})
	defer stop()
	event := nextQueryEvent(t, stream)
	if event.Err == nil {
		t.Fatalf("expected unsupported query error")
	}
	awaitClosed(t, stream)
}

func TestMemoryStoreRejectsWritesAfterClose(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{})
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := store.Write(context.Background(), Key{Collection: "boards", ID: "u"}, Document{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
