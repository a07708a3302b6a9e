package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryBroadcaster is an in-process Broadcaster. All methods are safe for
// concurrent use.
type MemoryBroadcaster[T any] struct {
	bufferSize int
	dropped    atomic.Int64

	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	closed      bool
}

// NewMemoryBroadcaster creates a broadcaster whose subscribers buffer up to
// bufferSize messages each (minimum 1).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber. After Close it returns an already closed one.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context, topics ...string) Subscriber[T] {
	sub := newSubscriber[T](b.bufferSize, topics)
	sub.detach = func() { b.unsubscribe(sub) }

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	sub.mu.Lock()
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.mu.Unlock()

	return sub
}

// Broadcast delivers msg to matching subscribers, dropping it for any whose buffer is full.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBroadcasterClosed
	}

	for sub := range b.subscribers {
		if sub.wants(msg.Topic) && !sub.send(msg) {
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBroadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *MemoryBroadcaster[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber. Safe to call more than once.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[*subscriber[T]]struct{})
	b.mu.Unlock()

	for sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (b *MemoryBroadcaster[T]) unsubscribe(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
}
