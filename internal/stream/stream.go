// Package stream fan-outs audit entries to live subscribers (the SSE feed).
// Delivery is best-effort: slow subscribers drop events rather than block the
// writer, and the durable audit table stays the record of truth.
package stream

import (
	"context"
	"sync"

	"forgeboard.dev/internal/audit"
)

// Stream fan-outs audit entries to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Entry
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan audit.Entry)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// entries. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan audit.Entry {
	ch := make(chan audit.Entry, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the entry to all subscribers.
func (s *Stream) Publish(e audit.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// SubscriberCount reports how many live subscribers are attached.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
