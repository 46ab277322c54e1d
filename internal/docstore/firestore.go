package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errMissingFirestoreClient = errors.New("docstore: firestore client is required")

// FirestoreConnection describes how to reach a Firestore project.
type FirestoreConnection struct {
	ProjectID       string
	CredentialsFile string
}

// OpenFirestore initializes a Firebase app and returns its Firestore client. Without a
// credentials file the default application credentials (or the emulator) are used.
func OpenFirestore(ctx context.Context, connection FirestoreConnection) (*firestore.Client, error) {
	options := make([]option.ClientOption, 0, 1)
	if credentials := strings.TrimSpace(connection.CredentialsFile); credentials != "" {
		options = append(options, option.WithCredentialsFile(credentials))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: connection.ProjectID}, options...)
	if err != nil {
		return nil, fmt.Errorf("docstore: initialize firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("docstore: open firestore: %w", err)
	}
	return client, nil
}

// FirestoreConfig configures the Firestore-backed store.
type FirestoreConfig struct {
	Client *firestore.Client
	Logger *zap.Logger
}

// FirestoreStore maps the store contract onto Cloud Firestore; subscriptions use Firestore's
// snapshot listeners and server timestamps are assigned by Firestore.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreStore wraps an open Firestore client.
func NewFirestoreStore(cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.Client == nil {
		return nil, errMissingFirestoreClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreStore{client: cfg.Client, logger: logger}, nil
}

func (s *FirestoreStore) Write(ctx context.Context, key Key, document Document) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if _, err := s.client.Collection(key.Collection).Doc(key.ID).Set(ctx, toFirestoreDocument(document)); err != nil {
		return fmt.Errorf("docstore: write %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, document Document) (Key, error) {
	if strings.TrimSpace(collection) == "" {
		return Key{}, fmt.Errorf("%w: empty collection", ErrInvalidKey)
	}
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Set(ctx, toFirestoreDocument(document)); err != nil {
		return Key{}, fmt.Errorf("docstore: create in %s: %w", collection, err)
	}
	return Key{Collection: collection, ID: ref.ID}, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if _, err := s.client.Collection(key.Collection).Doc(key.ID).Delete(ctx); err != nil {
		return fmt.Errorf("docstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) WatchDocument(ctx context.Context, key Key) (<-chan DocumentEvent, func()) {
	if err := key.Validate(); err != nil {
		return closedStream(DocumentEvent{Err: err})
	}
	watchCtx, cancel := context.WithCancel(ctx)
	snapshots := s.client.Collection(key.Collection).Doc(key.ID).Snapshots(watchCtx)
	stream := make(chan DocumentEvent, 1)
	go func() {
		defer close(stream)
		defer snapshots.Stop()
		for {
			snapshot, err := snapshots.Next()
			if err != nil {
				if listenerStopped(watchCtx, err) {
					return
				}
				deliver(watchCtx, stream, DocumentEvent{Snapshot: Snapshot{Key: key}, Err: fmt.Errorf("docstore: watch %s: %w", key, err)})
				return
			}
			event := DocumentEvent{Snapshot: Snapshot{Key: key, Exists: snapshot.Exists()}}
			if snapshot.Exists() {
				event.Snapshot.Data = snapshot.Data()
			}
			if !deliver(watchCtx, stream, event) {
				return
			}
		}
	}()
	return stream, cancel
}

func (s *FirestoreStore) WatchQuery(ctx context.Context, query Query) (<-chan QueryEvent, func()) {
	if err := query.validate(); err != nil {
		return closedStream(QueryEvent{Err: err})
	}
	watchCtx, cancel := context.WithCancel(ctx)
	firestoreQuery := s.client.Collection(query.Collection).Where(query.OwnerField, "==", query.OwnerID)
	if query.OrderField != "" {
		direction := firestore.Asc
		if query.Descending {
			direction = firestore.Desc
		}
		firestoreQuery = firestoreQuery.OrderBy(query.OrderField, direction)
	}
	snapshots := firestoreQuery.Snapshots(watchCtx)
	stream := make(chan QueryEvent, 1)
	go func() {
		defer close(stream)
		defer snapshots.Stop()
		for {
			querySnapshot, err := snapshots.Next()
			if err != nil {
				if listenerStopped(watchCtx, err) {
					return
				}
				deliver(watchCtx, stream, QueryEvent{Err: fmt.Errorf("docstore: watch %s: %w", query.Collection, err)})
				return
			}
			documents, err := querySnapshot.Documents.GetAll()
			if err != nil {
				if !deliver(watchCtx, stream, QueryEvent{Err: fmt.Errorf("docstore: read %s: %w", query.Collection, err)}) {
					return
				}
				continue
			}
			result := make([]Snapshot, 0, len(documents))
			for _, document := range documents {
				result = append(result, Snapshot{
					Key:    Key{Collection: query.Collection, ID: document.Ref.ID},
					Exists: true,
					Data:   document.Data(),
				})
			}
			if !deliver(watchCtx, stream, QueryEvent{Documents: result}) {
				return
			}
		}
	}()
	return stream, cancel
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func listenerStopped(ctx context.Context, err error) bool {
	if errors.Is(err, iterator.Done) || ctx.Err() != nil {
		return true
	}
	return status.Code(err) == codes.Canceled
}

func deliver[T any](ctx context.Context, stream chan<- T, event T) bool {
	select {
	case stream <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func toFirestoreDocument(document Document) map[string]any {
	converted, _ := toFirestoreValue(document).(map[string]any)
	if converted == nil {
		converted = map[string]any{}
	}
	return converted
}

func toFirestoreValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		converted := make(map[string]any, len(typed))
		for field, nested := range typed {
			converted[field] = toFirestoreValue(nested)
		}
		return converted
	case []any:
		converted := make([]any, len(typed))
		for index, nested := range typed {
			converted[index] = toFirestoreValue(nested)
		}
		return converted
	case []map[string]any:
		converted := make([]any, len(typed))
		for index, nested := range typed {
			converted[index] = toFirestoreValue(nested)
		}
		return converted
	case serverTimestampSentinel:
		return firestore.ServerTimestamp
	default:
		return value
	}
}
