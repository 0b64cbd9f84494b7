// Package queue provides a mutex-guarded FIFO used for write batches,
// closure inboxes and unacknowledged moves.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// Push appends items to the back.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// DropWhile removes items from the front for as long as pred holds and
// returns how many were removed. Items after the first non-match stay,
// even if they would match.
func (q *Queue[T]) DropWhile(pred func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(q.items) && pred(q.items[n]) {
		n++
	}
	if n == 0 {
		return 0
	}
	rest := make([]T, len(q.items)-n, cap(q.items))
	copy(rest, q.items[n:])
	q.items = rest
	return n
}

// Items returns a copy of the queued items, front first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetAndEmpty returns all items and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
