package broadcast

import (
	"context"
	"slices"
	"sync"
)

// Message carries data published on a topic.
type Message[T any] struct {
	Topic string
	Data  T
}

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed by Close, by the
	// broadcaster's Close, or when the subscription context is cancelled.
	Receive() <-chan Message[T]

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// Broadcaster fans messages out to subscribers by topic. Delivery is
// best-effort: a full subscriber buffer drops the message for that
// subscriber, so consumers should treat each message as a hint to refetch.
type Broadcaster[T any] interface {
	// Subscribe registers interest in topics; no topics means every topic.
	// The subscription ends when ctx is cancelled.
	Subscribe(ctx context.Context, topics ...string) Subscriber[T]

	// Broadcast delivers msg to every subscriber of msg.Topic without blocking.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close ends every subscription.
	Close() error
}

type subscriber[T any] struct {
	topics []string
	ch     chan Message[T]
	detach func()

	mu     sync.RWMutex
	closed bool
	stop   func() bool
}

func newSubscriber[T any](bufferSize int, topics []string) *subscriber[T] {
	return &subscriber[T]{
		topics: slices.Clone(topics),
		ch:     make(chan Message[T], bufferSize),
	}
}

func (s *subscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	stop, detach := s.stop, s.detach
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if detach != nil {
		detach()
	}
	return nil
}

func (s *subscriber[T]) wants(topic string) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}

// send never blocks; it reports false when the message was dropped.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
