package docstore

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

const testEventDeadline = time.Second

func sequentialIDs(prefix string) IDSource {
	var counter atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%03d", prefix, counter.Add(1))
	}
}

func fixedClock(start time.Time) func() time.Time {
	var ticks atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
}

func nextDocumentEvent(t *testing.T, stream <-chan DocumentEvent) DocumentEvent {
	t.Helper()
	select {
	case event, ok := <-stream:
		if !ok {
			t.Fatalf("document stream closed unexpectedly")
		}
		return event
	case <-time.After(testEventDeadline):
		t.Fatalf("expected document event within deadline")
	}
	return DocumentEvent{}
}

func nextQueryEvent(t *testing.T, stream <-chan QueryEvent) QueryEvent {
	t.Helper()
	select {
	case event, ok := <-stream:
		if !ok {
			t.Fatalf("query stream closed unexpectedly")
		}
		return event
	case <-time.After(testEventDeadline):
		t.Fatalf("expected query event within deadline")
	}
	return QueryEvent{}
}

// awaitQuery reads query events until one satisfies accept.
func awaitQuery(t *testing.T, stream <-chan QueryEvent, accept func(QueryEvent) bool) QueryEvent {
	t.Helper()
	deadline := time.After(testEventDeadline)
	for {
		select {
		case event, ok := <-stream:
			if !ok {
				t.Fatalf("query stream closed unexpectedly")
			}
			if event.Err != nil {
				t.Fatalf("unexpected query error: %v", event.Err)
			}
			if accept(event) {
				return event
			}
		case <-deadline:
			t.Fatalf("expected matching query event within deadline")
		}
	}
}

// awaitDocument reads document events until one satisfies accept.
func awaitDocument(t *testing.T, stream <-chan DocumentEvent, accept func(DocumentEvent) bool) DocumentEvent {
	t.Helper()
	deadline := time.After(testEventDeadline)
	for {
		select {
		case event, ok := <-stream:
			if !ok {
				t.Fatalf("document stream closed unexpectedly")
			}
			if event.Err != nil {
				t.Fatalf("unexpected document error: %v", event.Err)
			}
			if accept(event) {
				return event
			}
		case <-deadline:
			t.Fatalf("expected matching document event within deadline")
		}
	}
}

func awaitClosed[T any](t *testing.T, stream <-chan T) {
	t.Helper()
	deadline := time.After(testEventDeadline)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected stream to close within deadline")
		}
	}
}

func snapshotIDs(snapshots []Snapshot) []string {
	ids := make([]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		ids = append(ids, snapshot.Key.ID)
	}
	return ids
}

func noteDocument(owner, content string) Document {
	return Document{"userId": owner, "content": content, "createdAt": ServerTimestamp}
}
