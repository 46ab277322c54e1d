package docstore

import (
	"context"
	"reflect"
	"testing"
	"time"
)

var contractEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// runStoreContract exercises the behavior every backend promises to the synchronization core.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("document-watch-delivers-initial-and-changes", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		key := Key{Collection: "boards", ID: "user-1"}
		stream, stop := store.WatchDocument(ctx, key)
		defer stop()

		initial := nextDocumentEvent(t, stream)
		if initial.Err != nil {
			t.Fatalf("unexpected error: %v", initial.Err)
		}
		if initial.Snapshot.Exists {
			t.Fatalf("expected absent document on first delivery")
		}

		if err := store.Write(ctx, key, Document{"userId": "user-1", "columns": map[string]any{"todo": map[string]any{"tasks": []any{}}}}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		written := awaitDocument(t, stream, func(event DocumentEvent) bool { return event.Snapshot.Exists })
		if written.Snapshot.Data["userId"] != "user-1" {
			t.Fatalf("unexpected document body: %#v", written.Snapshot.Data)
		}
		columns, ok := written.Snapshot.Data["columns"].(map[string]any)
		if !ok {
			t.Fatalf("expected nested map, got %T", written.Snapshot.Data["columns"])
		}
		if _, ok := columns["todo"].(map[string]any); !ok {
			t.Fatalf("expected nested column map, got %T", columns["todo"])
		}

		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		awaitDocument(t, stream, func(event DocumentEvent) bool { return !event.Snapshot.Exists })
	})

	t.Run("query-watch-filters-owner-and-orders-descending", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		first, err := store.Create(ctx, "notes", noteDocument("user-1", "first"))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if _, err := store.Create(ctx, "notes", noteDocument("user-2", "foreign")); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		second, err := store.Create(ctx, "notes", noteDocument("user-1", "second"))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}

		stream, stop := store.WatchQuery(ctx, Query{
			Collection: "notes",
			OwnerField: "userId",
			OwnerID:    "user-1",
			OrderField: "createdAt",
			Descending: true,
		})
		defer stop()

		initial := nextQueryEvent(t, stream)
		if initial.Err != nil {
			t.Fatalf("unexpected error: %v", initial.Err)
		}
		if got, want := snapshotIDs(initial.Documents), []string{second.ID, first.ID}; !reflect.DeepEqual(got, want) {
			t.Fatalf("unexpected order: got %v want %v", got, want)
		}
		createdAt, ok := TimestampValue(initial.Documents[0].Data["createdAt"])
		if !ok || !createdAt.After(contractEpoch) {
			t.Fatalf("expected resolved server timestamp, got %#v", initial.Documents[0].Data["createdAt"])
		}

		third, err := store.Create(ctx, "notes", noteDocument("user-1", "third"))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		awaitQuery(t, stream, func(event QueryEvent) bool {
			return reflect.DeepEqual(snapshotIDs(event.Documents), []string{third.ID, second.ID, first.ID})
		})

		if err := store.Delete(ctx, second); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		awaitQuery(t, stream, func(event QueryEvent) bool {
			return reflect.DeepEqual(snapshotIDs(event.Documents), []string{third.ID, first.ID})
		})
	})

	t.Run("query-ties-follow-direction", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		createdAt := contractEpoch.Add(time.Hour)
		first, err := store.Create(ctx, "notes", Document{"userId": "user-1", "content": "first", "createdAt": createdAt})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		second, err := store.Create(ctx, "notes", Document{"userId": "user-1", "content": "second", "createdAt": createdAt})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		ascending, descending := []string{first.ID, second.ID}, []string{second.ID, first.ID}
		if first.ID > second.ID {
			ascending, descending = descending, ascending
		}

		tests := []struct {
			name       string
			descending bool
			want       []string
		}{
			{name: "ascending", descending: false, want: ascending},
			{name: "descending", descending: true, want: descending},
		}
		for _, tc := range tests {
			stream, stop := store.WatchQuery(ctx, Query{
				Collection: "notes",
				OwnerField: "userId",
				OwnerID:    "user-1",
				OrderField: "createdAt",
				Descending: tc.descending,
			})
			initial := nextQueryEvent(t, stream)
			stop()
			if initial.Err != nil {
				t.Fatalf("%s: unexpected error: %v", tc.name, initial.Err)
			}
			if got := snapshotIDs(initial.Documents); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("%s: unexpected order: got %v want %v", tc.name, got, tc.want)
			}
		}
	})

	t.Run("cancel-closes-stream", func(t *testing.T) {
		store := newStore(t)
		stream, stop := store.WatchDocument(context.Background(), Key{Collection: "boards", ID: "user-9"})
		nextDocumentEvent(t, stream)
		stop()
		awaitClosed(t, stream)
	})

	t.Run("invalid-key-is-rejected", func(t *testing.T) {
		store := newStore(t)
		if err := store.Write(context.Background(), Key{Collection: "boards"}, Document{}); err == nil {
			t.Fatalf("expected invalid key error")
		}
	})
}
