package dashboard

import (
	"context"
	"sync"
	"time"
)

const defaultViewBuffer = 16

// ViewUpdate carries the recomputed views of one user.
type ViewUpdate struct {
	UserID    string
	Views     Views
	Timestamp time.Time
}

// ViewDispatcher fans view updates out to per-user subscribers. Publishing never blocks: a
// subscriber whose buffer is full loses its oldest pending update.
type ViewDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*viewSubscriber
	nextID      int64
	bufferSize  int
}

type viewSubscriber struct {
	id     int64
	mu     sync.Mutex
	closed bool
	stream chan ViewUpdate
}

// NewViewDispatcher constructs a dispatcher; bufferSize <= 0 selects the default.
func NewViewDispatcher(bufferSize int) *ViewDispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultViewBuffer
	}
	return &ViewDispatcher{
		subscribers: make(map[string]map[int64]*viewSubscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers for the user's updates until ctx ends or the returned func is called.
// The stream is closed on cancellation.
func (d *ViewDispatcher) Subscribe(ctx context.Context, userID string) (<-chan ViewUpdate, func()) {
	if userID == "" {
		ch := make(chan ViewUpdate)
		close(ch)
		return ch, func() {}
	}
	subscriber := &viewSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ViewUpdate, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)

	var once sync.Once
	done := make(chan struct{})
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
			subscriber.close()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the update to every subscriber of its user.
func (d *ViewDispatcher) Publish(update ViewUpdate) {
	if update.UserID == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[update.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*viewSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		subscriber.offer(update)
	}
}

// Subscribers reports how many streams are registered for the user.
func (d *ViewDispatcher) Subscribers(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (s *viewSubscriber) offer(update ViewUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.stream <- update:
			return
		default:
		}
		select {
		case <-s.stream:
		default:
		}
	}
}

func (s *viewSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.stream)
	}
}

func (d *ViewDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ViewDispatcher) registerSubscriber(userID string, subscriber *viewSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*viewSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *ViewDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
