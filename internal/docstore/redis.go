package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisPrefix = "dashboard"

var errMissingRedisClient = errors.New("docstore: redis client is required")

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Client     *redis.Client
	Prefix     string
	Channel    string
	Clock      func() time.Time
	IDs        IDSource
	OwnerField string
	OrderField string
	Logger     *zap.Logger
}

// RedisStore keeps JSON document bodies in string keys and one sorted set per owner, scored by
// the order field. Every commit is announced on a pub/sub channel, so watchers in any process
// sharing the Redis instance observe it.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	channel    string
	clock      func() time.Time
	ids        IDSource
	ownerField string
	orderField string
	logger     *zap.Logger
	notifier   *notifier
	pubsub     *redis.PubSub
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

type redisChange struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// NewRedisStore subscribes to the change channel and returns a ready store.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = prefix + ":changes"
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

	pubsub := cfg.Client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("docstore: subscribe %s: %w", channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	store := &RedisStore{
		client:     cfg.Client,
		prefix:     prefix,
		channel:    channel,
		clock:      clock,
		ids:        ids,
		ownerField: ownerField,
		orderField: orderField,
		logger:     logger,
		notifier:   newNotifier(),
		pubsub:     pubsub,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go store.listen(listenCtx)
	return store, nil
}

func (s *RedisStore) listen(ctx context.Context) {
	defer close(s.done)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			var change redisChange
			if err := sonic.UnmarshalString(message.Payload, &change); err != nil {
				s.logger.Warn("ignoring malformed change notification", zap.String("channel", s.channel), zap.Error(err))
				continue
			}
			key := Key{Collection: change.Collection, ID: change.ID}
			s.notifier.notify(docTopic(key), collectionTopic(key.Collection))
		}
	}
}

func (s *RedisStore) documentKey(key Key) string {
	return s.prefix + ":doc:" + key.Collection + ":" + key.ID
}

func (s *RedisStore) ownerIndexKey(collection, owner string) string {
	return s.prefix + ":owner:" + collection + ":" + owner
}

func (s *RedisStore) Write(ctx context.Context, key Key, document Document) error {
	if err := key.Validate(); err != nil {
		return err
	}
	prepared := prepareDocument(document, s.clock().UTC())
	body, err := encodeBody(prepared)
	if err != nil {
		return err
	}
	previousOwner, err := s.currentOwner(ctx, key)
	if err != nil {
		return err
	}
	owner := ownerOf(prepared, s.ownerField)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.documentKey(key), body, 0)
		if previousOwner != "" && previousOwner != owner {
			pipe.ZRem(ctx, s.ownerIndexKey(key.Collection, previousOwner), key.ID)
		}
		if owner != "" {
			pipe.ZAdd(ctx, s.ownerIndexKey(key.Collection, owner), redis.Z{
				Score:  float64(orderKey(prepared, s.orderField)),
				Member: key.ID,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("docstore: write %s: %w", key, err)
	}
	return s.publish(ctx, key)
}

func (s *RedisStore) Create(ctx context.Context, collection string, document Document) (Key, error) {
	key, err := NewKey(collection, s.ids())
	if err != nil {
		return Key{}, err
	}
	if err := s.Write(ctx, key, document); err != nil {
		return Key{}, err
	}
	return key, nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	owner, err := s.currentOwner(ctx, key)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.documentKey(key))
		if owner != "" {
			pipe.ZRem(ctx, s.ownerIndexKey(key.Collection, owner), key.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", key, err)
	}
	return s.publish(ctx, key)
}

func (s *RedisStore) publish(ctx context.Context, key Key) error {
	payload, err := sonic.MarshalString(redisChange{Collection: key.Collection, ID: key.ID})
	if err != nil {
		return fmt.Errorf("docstore: encode change: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("docstore: publish %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) currentOwner(ctx context.Context, key Key) (string, error) {
	snapshot, err := s.readDocument(ctx, key)
	if err != nil {
		return "", err
	}
	if !snapshot.Exists {
		return "", nil
	}
	return ownerOf(snapshot.Data, s.ownerField), nil
}

func (s *RedisStore) WatchDocument(ctx context.Context, key Key) (<-chan DocumentEvent, func()) {
	if err := key.Validate(); err != nil {
		return closedStream(DocumentEvent{Err: err})
	}
	return watch(ctx, s.notifier, docTopic(key), func(readCtx context.Context) DocumentEvent {
		snapshot, err := s.readDocument(readCtx, key)
		return DocumentEvent{Snapshot: snapshot, Err: err}
	})
}

func (s *RedisStore) WatchQuery(ctx context.Context, query Query) (<-chan QueryEvent, func()) {
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

func (s *RedisStore) readDocument(ctx context.Context, key Key) (Snapshot, error) {
	body, err := s.client.Get(ctx, s.documentKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{Key: key}, nil
	}
	if err != nil {
		return Snapshot{Key: key}, fmt.Errorf("docstore: read %s: %w", key, err)
	}
	document, err := decodeBody(body)
	if err != nil {
		return Snapshot{Key: key}, err
	}
	return Snapshot{Key: key, Exists: true, Data: document}, nil
}

func (s *RedisStore) readQuery(ctx context.Context, query Query) ([]Snapshot, error) {
	indexKey := s.ownerIndexKey(query.Collection, query.OwnerID)
	var (
		ids []string
		err error
	)
	if query.Descending {
		ids, err = s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	} else {
		ids, err = s.client.ZRange(ctx, indexKey, 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", query.Collection, err)
	}
	if len(ids) == 0 {
		return []Snapshot{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.documentKey(Key{Collection: query.Collection, ID: id}))
	}
	bodies, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", query.Collection, err)
	}
	snapshots := make([]Snapshot, 0, len(ids))
	for index, raw := range bodies {
		body, ok := raw.(string)
		if !ok {
			continue
		}
		document, err := decodeBody(body)
		if err != nil {
			s.logger.Warn("skipping undecodable document",
				zap.String("collection", query.Collection),
				zap.String("document_id", ids[index]),
				zap.Error(err))
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Key:    Key{Collection: query.Collection, ID: ids[index]},
			Exists: true,
			Data:   document,
		})
	}
	return snapshots, nil
}

// Close stops the change listener. The Redis client belongs to the caller.
func (s *RedisStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}
