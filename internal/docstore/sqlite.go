package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultOwnerField = "userId"
	defaultOrderField = "createdAt"
)

var errMissingDatabase = errors.New("docstore: database handle is required")

// DocumentRecord is the SQLite row backing one document.
type DocumentRecord struct {
	Collection       string `gorm:"column:collection;primaryKey;size:64;not null;index:idx_documents_owner_order,priority:1"`
	DocumentID       string `gorm:"column:document_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;default:'';index:idx_documents_owner_order,priority:2"`
	OrderKey         int64  `gorm:"column:order_key;not null;default:0;index:idx_documents_owner_order,priority:3"`
	BodyJSON         string `gorm:"column:body_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentRecord) TableName() string {
	return "documents"
}

// SQLiteConfig configures the gorm-backed store. OwnerField and OrderField name the document
// fields copied into indexed columns; queries on other fields are not served.
type SQLiteConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDs        IDSource
	OwnerField string
	OrderField string
	Logger     *zap.Logger
}

// SQLiteStore persists documents in the documents table. Change notification is in-process,
// so subscribers only observe writes made through the same store value.
type SQLiteStore struct {
	db         *gorm.DB
	notifier   *notifier
	clock      func() time.Time
	ids        IDSource
	ownerField string
	orderField string
	logger     *zap.Logger
}

// NewSQLiteStore constructs a SQLiteStore. The schema is expected to be migrated already.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDs
	if ids == nil {
		ids = NewULIDSource()
	}
	ownerField := cfg.OwnerField
	if ownerField == "" {
		ownerField = defaultOwnerField
	}
	orderField := cfg.OrderField
	if orderField == "" {
		orderField = defaultOrderField
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{
		db:         cfg.Database,
		notifier:   newNotifier(),
		clock:      clock,
		ids:        ids,
		ownerField: ownerField,
		orderField: orderField,
		logger:     logger,
	}, nil
}

func (s *SQLiteStore) Write(ctx context.Context, key Key, document Document) error {
	if err := key.Validate(); err != nil {
		return err
	}
	now := s.clock().UTC()
	prepared := prepareDocument(document, now)
	body, err := encodeBody(prepared)
	if err != nil {
		return err
	}
	record := DocumentRecord{
		Collection:       key.Collection,
		DocumentID:       key.ID,
		OwnerID:          ownerOf(prepared, s.ownerField),
		OrderKey:         orderKey(prepared, s.orderField),
		BodyJSON:         body,
		UpdatedAtSeconds: now.Unix(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "document_id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("docstore: write %s: %w", key, err)
	}
	s.notifier.notify(docTopic(key), collectionTopic(key.Collection))
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, document Document) (Key, error) {
	key, err := NewKey(collection, s.ids())
	if err != nil {
		return Key{}, err
	}
	if err := s.Write(ctx, key, document); err != nil {
		return Key{}, err
	}
	return key, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Where("collection = ? AND document_id = ?", key.Collection, key.ID).
		Delete(&DocumentRecord{}).Error
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", key, err)
	}
	s.notifier.notify(docTopic(key), collectionTopic(key.Collection))
	return nil
}

func (s *SQLiteStore) WatchDocument(ctx context.Context, key Key) (<-chan DocumentEvent, func()) {
	if err := key.Validate(); err != nil {
		return closedStream(DocumentEvent{Err: err})
	}
	return watch(ctx, s.notifier, docTopic(key), func(readCtx context.Context) DocumentEvent {
		snapshot, err := s.readDocument(readCtx, key)
		return DocumentEvent{Snapshot: snapshot, Err: err}
	})
}

func (s *SQLiteStore) WatchQuery(ctx context.Context, query Query) (<-chan QueryEvent, func()) {
	if err := query.validate(); err != nil {
		return closedStream(QueryEvent{Err: err})
	}
	if query.OwnerField != s.ownerField || (query.OrderField != "" && query.OrderField != s.orderField) {
		return closedStream(QueryEvent{Err: fmt.Errorf("%w: fields %q/%q are not indexed", ErrUnsupportedQuery, query.OwnerField, query.OrderField)})
	}
	return watch(ctx, s.notifier, collectionTopic(query.Collection), func(readCtx context.Context) QueryEvent {
		documents, err := s.readQuery(readCtx, query)
		return QueryEvent{Documents: documents, Err: err}
	})
}

func (s *SQLiteStore) readDocument(ctx context.Context, key Key) (Snapshot, error) {
	var record DocumentRecord
	err := s.db.WithContext(ctx).
		Where("collection = ? AND document_id = ?", key.Collection, key.ID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{Key: key}, nil
	}
	if err != nil {
		return Snapshot{Key: key}, fmt.Errorf("docstore: read %s: %w", key, err)
	}
	document, err := decodeBody(record.BodyJSON)
	if err != nil {
		return Snapshot{Key: key}, err
	}
	return Snapshot{Key: key, Exists: true, Data: document}, nil
}

func (s *SQLiteStore) readQuery(ctx context.Context, query Query) ([]Snapshot, error) {
	direction := "ASC"
	if query.Descending {
		direction = "DESC"
	}
	var records []DocumentRecord
	err := s.db.WithContext(ctx).
		Where("collection = ? AND owner_id = ?", query.Collection, query.OwnerID).
		Order("order_key " + direction).
		Order("document_id " + direction).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", query.Collection, err)
	}
	snapshots := make([]Snapshot, 0, len(records))
	for _, record := range records {
		document, err := decodeBody(record.BodyJSON)
		if err != nil {
			s.logger.Warn("skipping undecodable document",
				zap.String("collection", record.Collection),
				zap.String("document_id", record.DocumentID),
				zap.Error(err))
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Key:    Key{Collection: record.Collection, ID: record.DocumentID},
			Exists: true,
			Data:   document,
		})
	}
	return snapshots, nil
}

// Close is a no-op; the database handle belongs to the caller.
func (s *SQLiteStore) Close() error {
	return nil
}
