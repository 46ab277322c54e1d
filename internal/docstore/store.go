// Package docstore defines the document store contract the dashboard synchronizes against and
// ships the backends that implement it: an in-process store, SQLite via gorm, Redis, and
// Cloud Firestore.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidKey indicates an empty or malformed collection or document id.
	ErrInvalidKey = errors.New("docstore: invalid key")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("docstore: store closed")
	// ErrUnsupportedQuery indicates a query shape the backend cannot serve.
	ErrUnsupportedQuery = errors.New("docstore: unsupported query")
)

// Document is a decoded document body.
type Document = map[string]any

// Key addresses one document.
type Key struct {
	Collection string
	ID         string
}

// NewKey validates and returns a Key.
func NewKey(collection, id string) (Key, error) {
	key := Key{Collection: strings.TrimSpace(collection), ID: strings.TrimSpace(id)}
	if err := key.Validate(); err != nil {
		return Key{}, err
	}
	return key, nil
}

// Validate reports whether both key segments are usable.
func (k Key) Validate() error {
	if k.Collection == "" || k.ID == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	if strings.ContainsAny(k.Collection, "/:") || strings.Contains(k.ID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// Snapshot is the state of one document at a point in time.
type Snapshot struct {
	Key    Key
	Exists bool
	Data   Document
}

// DocumentEvent is one delivery on a document subscription.
type DocumentEvent struct {
	Snapshot Snapshot
	Err      error
}

// QueryEvent is one delivery on a query subscription: the full ordered result.
type QueryEvent struct {
	Documents []Snapshot
	Err       error
}

// Query selects the documents of one owner in a collection ordered by a timestamp field.
type Query struct {
	Collection string
	OwnerField string
	OwnerID    string
	OrderField string
	Descending bool
}

// Store is the document store contract. Watch streams deliver the current state first and then
// every change in commit order for that key or query; the returned func closes the stream.
type Store interface {
	Write(ctx context.Context, key Key, document Document) error
	Create(ctx context.Context, collection string, document Document) (Key, error)
	Delete(ctx context.Context, key Key) error
	WatchDocument(ctx context.Context, key Key) (<-chan DocumentEvent, func())
	WatchQuery(ctx context.Context, query Query) (<-chan QueryEvent, func())
	Close() error
}

type serverTimestampSentinel struct{}

// ServerTimestamp is replaced by the store's commit time when it appears as a field value.
var ServerTimestamp any = serverTimestampSentinel{}

// IsServerTimestamp reports whether value is the ServerTimestamp sentinel.
func IsServerTimestamp(value any) bool {
	_, ok := value.(serverTimestampSentinel)
	return ok
}

// TimestampValue reads a stored timestamp. Backends return time.Time natively, or an RFC 3339
// string once the body has been through JSON.
func TimestampValue(value any) (time.Time, bool) {
	switch typed := value.(type) {
	case time.Time:
		return typed, !typed.IsZero()
	case *time.Time:
		if typed == nil || typed.IsZero() {
			return time.Time{}, false
		}
		return *typed, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, typed)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// prepareDocument deep-copies the document and resolves ServerTimestamp sentinels to now.
func prepareDocument(document Document, now time.Time) Document {
	prepared, _ := cloneValue(document, now).(map[string]any)
	if prepared == nil {
		prepared = map[string]any{}
	}
	return prepared
}

func cloneDocument(document Document) Document {
	cloned, _ := cloneValue(document, time.Time{}).(map[string]any)
	return cloned
}

func cloneValue(value any, now time.Time) any {
	switch typed := value.(type) {
	case map[string]any:
		if typed == nil {
			return nil
		}
		cloned := make(map[string]any, len(typed))
		for field, nested := range typed {
			cloned[field] = cloneValue(nested, now)
		}
		return cloned
	case []any:
		cloned := make([]any, len(typed))
		for index, nested := range typed {
			cloned[index] = cloneValue(nested, now)
		}
		return cloned
	case []map[string]any:
		cloned := make([]any, len(typed))
		for index, nested := range typed {
			cloned[index] = cloneValue(nested, now)
		}
		return cloned
	case serverTimestampSentinel:
		if now.IsZero() {
			return typed
		}
		return now
	default:
		return value
	}
}

func ownerOf(document Document, ownerField string) string {
	owner, _ := document[ownerField].(string)
	return owner
}

func docTopic(key Key) string {
	return "doc:" + key.String()
}

func collectionTopic(collection string) string {
	return "collection:" + collection
}
