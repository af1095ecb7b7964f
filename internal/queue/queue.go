package queue

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Queue is a ring buffer guarded by one mutex and two counting semaphores:
// free tracks empty slots and filled tracks items waiting to be popped.
type Queue[T any] struct {
	mutex  sync.Mutex
	items  []T
	front  int
	rear   int
	count  int
	free   *semaphore.Weighted
	filled *semaphore.Weighted
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}

	filled := semaphore.NewWeighted(int64(capacity))
	// Every slot starts empty, so filled begins fully acquired.
	_ = filled.Acquire(context.Background(), int64(capacity))

	return &Queue[T]{
		items:  make([]T, capacity),
		free:   semaphore.NewWeighted(int64(capacity)),
		filled: filled,
	}
}

// Push waits for a free slot and appends item at the rear. It only fails when
// ctx ends before a slot frees up, in which case the queue is left untouched.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	if err := q.free.Acquire(ctx, 1); err != nil {
		return err
	}

	q.mutex.Lock()
	q.items[q.rear] = item
	q.rear = (q.rear + 1) % len(q.items)
	q.count++
	q.mutex.Unlock()

	q.filled.Release(1)
	return nil
}

// Pop waits for an item and removes it from the front.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	if err := q.filled.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}

	return q.take(), nil
}

// TryPop removes the front item if one is ready, without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	if !q.filled.TryAcquire(1) {
		var zero T
		return zero, false
	}

	return q.take(), true
}

// take consumes one unit already acquired from filled.
func (q *Queue[T]) take() T {
	var zero T

	q.mutex.Lock()
	item := q.items[q.front]
	q.items[q.front] = zero
	q.front = (q.front + 1) % len(q.items)
	q.count--
	q.mutex.Unlock()

	q.free.Release(1)
	return item
}

// Len reports the number of items currently stored.
func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}
