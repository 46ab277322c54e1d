package dashboard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testDeadline = 2 * time.Second

var testNow = time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

type recordedWrite struct {
	Key      docstore.Key
	Document docstore.Document
}

// scriptedStore hands snapshot delivery to the test and records every store call.
type scriptedStore struct {
	boardEvents chan docstore.DocumentEvent
	notesEvents chan docstore.QueryEvent
	boardClosed chan struct{}
	notesClosed chan struct{}
	committed   chan recordedWrite

	mu       sync.Mutex
	writes   []recordedWrite
	creates  []recordedWrite
	deletes  []docstore.Key
	writeErr error
	gate     chan struct{}
	query    docstore.Query
	boardKey docstore.Key

	boardOnce sync.Once
	notesOnce sync.Once
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{
		boardEvents: make(chan docstore.DocumentEvent),
		notesEvents: make(chan docstore.QueryEvent),
		boardClosed: make(chan struct{}),
		notesClosed: make(chan struct{}),
		committed:   make(chan recordedWrite, 64),
	}
}

// holdWrites blocks every store call until the returned func is invoked.
func (s *scriptedStore) holdWrites() func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *scriptedStore) failWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *scriptedStore) admit(ctx context.Context) error {
	s.mu.Lock()
	gate := s.gate
	err := s.writeErr
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *scriptedStore) Write(ctx context.Context, key docstore.Key, document docstore.Document) error {
	if err := s.admit(ctx); err != nil {
		return err
	}
	write := recordedWrite{Key: key, Document: document}
	s.mu.Lock()
	s.writes = append(s.writes, write)
	s.mu.Unlock()
	s.committed <- write
	return nil
}

func (s *scriptedStore) Create(ctx context.Context, collection string, document docstore.Document) (docstore.Key, error) {
	if err := s.admit(ctx); err != nil {
		return docstore.Key{}, err
	}
	s.mu.Lock()
	key := docstore.Key{Collection: collection, ID: fmt.Sprintf("created-%d", len(s.creates)+1)}
	write := recordedWrite{Key: key, Document: document}
	s.creates = append(s.creates, write)
	s.mu.Unlock()
	s.committed <- write
	return key, nil
}

func (s *scriptedStore) Delete(ctx context.Context, key docstore.Key) error {
	if err := s.admit(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	s.mu.Unlock()
	s.committed <- recordedWrite{Key: key}
	return nil
}

func (s *scriptedStore) WatchDocument(ctx context.Context, key docstore.Key) (<-chan docstore.DocumentEvent, func()) {
	s.mu.Lock()
	s.boardKey = key
	s.mu.Unlock()
	return forward(ctx, s.boardEvents, func() { s.boardOnce.Do(func() { close(s.boardClosed) }) })
}

func (s *scriptedStore) WatchQuery(ctx context.Context, query docstore.Query) (<-chan docstore.QueryEvent, func()) {
	s.mu.Lock()
	s.query = query
	s.mu.Unlock()
	return forward(ctx, s.notesEvents, func() { s.notesOnce.Do(func() { close(s.notesClosed) }) })
}

func (s *scriptedStore) Close() error {
	return nil
}

func forward[T any](ctx context.Context, source <-chan T, onClose func()) (<-chan T, func()) {
	watchCtx, cancel := context.WithCancel(ctx)
	out := make(chan T)
	go func() {
		defer onClose()
		defer close(out)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event := <-source:
				select {
				case out <- event:
				case <-watchCtx.Done():
					return
				}
			}
		}
	}()
	return out, cancel
}

func (s *scriptedStore) recordedWrites() []recordedWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedWrite(nil), s.writes...)
}

func (s *scriptedStore) recordedCreates() []recordedWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedWrite(nil), s.creates...)
}

func (s *scriptedStore) recordedDeletes() []docstore.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]docstore.Key(nil), s.deletes...)
}

func (s *scriptedStore) deliverBoard(t *testing.T, event docstore.DocumentEvent) {
	t.Helper()
	select {
	case s.boardEvents <- event:
	case <-time.After(testDeadline):
		t.Fatalf("board snapshot was not consumed")
	}
}

func (s *scriptedStore) deliverNotes(t *testing.T, event docstore.QueryEvent) {
	t.Helper()
	select {
	case s.notesEvents <- event:
	case <-time.After(testDeadline):
		t.Fatalf("notes snapshot was not consumed")
	}
}

func (s *scriptedStore) awaitCommit(t *testing.T) recordedWrite {
	t.Helper()
	select {
	case write := <-s.committed:
		return write
	case <-time.After(testDeadline):
		t.Fatalf("expected a store call within deadline")
	}
	return recordedWrite{}
}

// countingStore counts board writes on top of a working in-memory store.
type countingStore struct {
	*docstore.MemoryStore
	writes atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: docstore.NewMemoryStore(docstore.MemoryConfig{})}
}

func (s *countingStore) Write(ctx context.Context, key docstore.Key, document docstore.Document) error {
	s.writes.Add(1)
	return s.MemoryStore.Write(ctx, key, document)
}

type sequenceIDs struct {
	next atomic.Int64
}

func (p *sequenceIDs) NewID() (string, error) {
	return fmt.Sprintf("task-%d", p.next.Add(1)), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", fmt.Errorf("entropy exhausted")
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func fixedClock() time.Time {
	return testNow
}

func boardSnapshot(userID string, b board.Board) docstore.DocumentEvent {
	return docstore.DocumentEvent{Snapshot: docstore.Snapshot{
		Key:    docstore.Key{Collection: board.Collection, ID: userID},
		Exists: true,
		Data:   board.ToDocument(userID, b),
	}}
}

func absentBoard(userID string) docstore.DocumentEvent {
	return docstore.DocumentEvent{Snapshot: docstore.Snapshot{Key: docstore.Key{Collection: board.Collection, ID: userID}}}
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testDeadline)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline: %s", description)
}

func waitWrites(t *testing.T, writer *Writer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	if err := writer.Wait(ctx); err != nil {
		t.Fatalf("writes did not drain: %v", err)
	}
}

func taskIDs(tasks []board.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func waitTimeout() <-chan time.Time {
	return time.After(testDeadline)
}
