package docstore

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	Clock func() time.Time
	IDs   IDSource
}

// MemoryStore keeps documents in process memory. It is the store used by tests and by
// single-process deployments that do not need durability.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	notifier    *notifier
	clock       func() time.Time
	ids         IDSource
	closed      bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDs
	if ids == nil {
		ids = NewULIDSource()
	}
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		notifier:    newNotifier(),
		clock:       clock,
		ids:         ids,
	}
}

func (s *MemoryStore) Write(ctx context.Context, key Key, document Document) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared := prepareDocument(document, s.clock().UTC())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	collection, ok := s.collections[key.Collection]
	if !ok {
		collection = make(map[string]Document)
		s.collections[key.Collection] = collection
	}
	collection[key.ID] = prepared
	s.mu.Unlock()

	s.notifier.notify(docTopic(key), collectionTopic(key.Collection))
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, document Document) (Key, error) {
	key, err := NewKey(collection, s.ids())
	if err != nil {
		return Key{}, err
	}
	if err := s.Write(ctx, key, document); err != nil {
		return Key{}, err
	}
	return key, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	delete(s.collections[key.Collection], key.ID)
	s.mu.Unlock()

	s.notifier.notify(docTopic(key), collectionTopic(key.Collection))
	return nil
}

func (s *MemoryStore) WatchDocument(ctx context.Context, key Key) (<-chan DocumentEvent, func()) {
	if err := key.Validate(); err != nil {
		return closedStream(DocumentEvent{Err: err})
	}
	return watch(ctx, s.notifier, docTopic(key), func(context.Context) DocumentEvent {
		snapshot, err := s.readDocument(key)
		return DocumentEvent{Snapshot: snapshot, Err: err}
	})
}

func (s *MemoryStore) WatchQuery(ctx context.Context, query Query) (<-chan QueryEvent, func()) {
	if err := query.validate(); err != nil {
		return closedStream(QueryEvent{Err: err})
	}
	return watch(ctx, s.notifier, collectionTopic(query.Collection), func(context.Context) QueryEvent {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return QueryEvent{Err: ErrClosed}
		}
		return QueryEvent{Documents: query.evaluate(s.collections[query.Collection])}
	})
}

// Get returns the current state of one document.
func (s *MemoryStore) Get(key Key) (Snapshot, error) {
	if err := key.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s.readDocument(key)
}

func (s *MemoryStore) readDocument(key Key) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{Key: key}, ErrClosed
	}
	document, ok := s.collections[key.Collection][key.ID]
	if !ok {
		return Snapshot{Key: key}, nil
	}
	return Snapshot{Key: key, Exists: true, Data: cloneDocument(document)}, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
