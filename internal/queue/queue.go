// Package queue provides an unbounded FIFO that never blocks producers.
//
// The chat pipeline publishes every decoded line to several consumers;
// a slow consumer must only delay its own delivery, never stall the
// socket reader, so pushes always succeed and memory is the only limit.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded multi-producer FIFO.  Pop may be called from
// several goroutines, but each item is delivered to exactly one of them.
// The zero value is not usable; call [New].
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	// ready has capacity 1 and holds a token whenever items may be
	// non-empty, so a blocked Pop can wake without polling.
	ready chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v to the tail.  It never blocks.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

// PushFront puts v back at the head, ahead of everything queued.
// Consumers use it to return an item they popped but could not handle.
func (q *Queue[T]) PushFront(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	copy(q.items[1:], q.items)
	q.items[0] = v
	q.mu.Unlock()
	q.signal()
}

// Pop removes and returns the head item, blocking until one is
// available or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// TryPop removes the head item if there is one.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Pass the wake-up on to the next waiting consumer.
		q.signal()
	}
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns everything currently queued.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
