package docstore

import (
	"context"
	"sync"
)

// notifier fans change signals out to watchers by topic. Signals coalesce: a watcher that has not
// consumed its previous signal is not signalled again, and re-reads the latest state once it does.
type notifier struct {
	mu       sync.RWMutex
	watchers map[string]map[int64]*watcher
	nextID   int64
}

type watcher struct {
	id     int64
	signal chan struct{}
}

func newNotifier() *notifier {
	return &notifier{watchers: make(map[string]map[int64]*watcher)}
}

func (n *notifier) register(topic string) (*watcher, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	w := &watcher{id: n.nextID, signal: make(chan struct{}, 1)}
	if _, ok := n.watchers[topic]; !ok {
		n.watchers[topic] = make(map[int64]*watcher)
	}
	n.watchers[topic][w.id] = w
	return w, func() { n.unregister(topic, w.id) }
}

func (n *notifier) unregister(topic string, watcherID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	watchers := n.watchers[topic]
	if watchers == nil {
		return
	}
	delete(watchers, watcherID)
	if len(watchers) == 0 {
		delete(n.watchers, topic)
	}
}

func (n *notifier) notify(topics ...string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, topic := range topics {
		for _, w := range n.watchers[topic] {
			select {
			case w.signal <- struct{}{}:
			default:
			}
		}
	}
}

// watch registers on topic, then emits read() immediately and again after every signal until
// ctx ends or the returned func is called; the stream is closed on exit.
func watch[T any](ctx context.Context, n *notifier, topic string, read func(context.Context) T) (<-chan T, func()) {
	watchCtx, cancel := context.WithCancel(ctx)
	w, unregister := n.register(topic)
	stream := make(chan T, 1)
	go func() {
		defer close(stream)
		defer unregister()
		for {
			event := read(watchCtx)
			select {
			case stream <- event:
			case <-watchCtx.Done():
				return
			}
			select {
			case <-w.signal:
			case <-watchCtx.Done():
				return
			}
		}
	}()
	return stream, cancel
}

func closedStream[T any](event T) (<-chan T, func()) {
	stream := make(chan T, 1)
	stream <- event
	close(stream)
	return stream, func() {}
}
