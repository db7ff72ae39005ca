// Package pubsub provides a minimal one-to-many fan-out used on the feed
// decode path to push each tick to its consumers.
package pubsub

import "sync"

// Subject delivers every published value to every subscribed consumer, in
// registration order. Consumers must not assume exclusivity or any ordering
// guarantee beyond arrival order per publisher.
type Subject[T any] struct {
	mu        sync.Mutex
	consumers []func(T)
}

// NewSubject returns an empty subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

// Subscribe registers a consumer callback. Registration order is delivery
// order.
func (s *Subject[T]) Subscribe(consumer func(T)) {
	if consumer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy-on-write so Notify can iterate without holding the lock.
	next := make([]func(T), len(s.consumers), len(s.consumers)+1)
	copy(next, s.consumers)
	s.consumers = append(next, consumer)
}

// Notify invokes every registered consumer with the event on the calling
// goroutine.
func (s *Subject[T]) Notify(event T) {
	s.mu.Lock()
	consumers := s.consumers
	s.mu.Unlock()

	for _, consumer := range consumers {
		consumer(event)
	}
}

// Len reports how many consumers are registered.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumers)
}
