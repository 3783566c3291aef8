// ABOUTME: Bounded blocking FIFO shared between one producer and its workers
// ABOUTME: Supports forced puts with oldest-first eviction and cooperative shutdown
package queue

import (
	"context"
	"sync"
)

// Queue is a capacity-bounded FIFO guarded by a single mutex/cond pair.
//
// Items put into the queue are owned by it until taken or evicted. Closing
// the queue wakes every blocked caller; takers keep draining until the
// queue is empty.
type Queue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	items    []T
	head     int
	size     int
	capacity int
	closed   bool

	onEvict func(T)

	// worker bookkeeping
	workers int
	exited  int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Queue
type Option[T any] func(*Queue[T])

// WithEvict registers a hook called (without the lock held) for every item
// discarded by a forced put.
func WithEvict[T any](fn func(T)) Option[T] {
	return func(q *Queue[T]) {
		q.onEvict = fn
	}
}

// New creates a queue holding at most capacity items. Capacity below one
// is raised to one.
func New[T any](capacity int, opts ...Option[T]) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		ctx:      ctx,
		cancel:   cancel,
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Put appends item. When the queue is full it blocks, or with forceIfFull
// evicts the oldest items until there is room. It returns false only if
// the queue is closed, in which case ownership stays with the caller.
func (q *Queue[T]) Put(item T, forceIfFull bool) bool {
	var evicted []T

	q.mu.Lock()
	for !q.closed && q.size == q.capacity && !forceIfFull {
		q.cond.Wait()
	}
	if q.closed {
		q.mu.Unlock()
		return false
	}
	for q.size >= q.capacity {
		evicted = append(evicted, q.popLocked())
	}
	q.items[(q.head+q.size)%q.capacity] = item
	q.size++
	q.cond.Broadcast()
	q.mu.Unlock()

	if q.onEvict != nil {
		for _, it := range evicted {
			q.onEvict(it)
		}
	}
	return true
}

// Take removes and returns the head item along with the number of items
// still queued. It blocks while the queue is empty and open, and fails
// once the queue is closed and drained.
func (q *Queue[T]) Take() (T, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.size == 0 {
		var zero T
		return zero, 0, false
	}
	item := q.popLocked()
	q.cond.Broadcast()
	return item, q.size, true
}

// Peek returns the head item without removing it. It never blocks.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// WaitMinSize blocks until at least n items are queued. It returns false
// if the queue closes first. n is clamped to the capacity.
func (q *Queue[T]) WaitMinSize(n int) bool {
	if n > q.capacity {
		n = q.capacity
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size < n && !q.closed {
		q.cond.Wait()
	}
	return q.size >= n
}

// Start runs fn in workers goroutines. Each receives a context cancelled
// by SetTerminateAndWait, and is deregistered through WorkerExit when fn
// returns.
func (q *Queue[T]) Start(workers int, fn func(ctx context.Context)) {
	q.mu.Lock()
	q.workers += workers
	q.mu.Unlock()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			defer q.WorkerExit()
			fn(q.ctx)
		}()
	}
}

// WorkerExit records that one worker has left its loop.
func (q *Queue[T]) WorkerExit() {
	q.mu.Lock()
	q.exited++
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Close marks the queue closed and wakes all waiters without waiting for
// workers. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cancel()
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

// SetTerminateAndWait closes the queue and blocks until every worker
// started with Start has exited. Idempotent.
func (q *Queue[T]) SetTerminateAndWait() {
	q.Close()

	q.mu.Lock()
	for q.exited < q.workers {
		q.cond.Wait()
	}
	q.mu.Unlock()

	q.wg.Wait()
}

// Len returns the current occupancy
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Closed reports whether the queue has been closed
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes and returns everything still queued.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, q.size)
	for q.size > 0 {
		out = append(out, q.popLocked())
	}
	q.cond.Broadcast()
	return out
}

// popLocked removes the head item. Caller holds q.mu and size > 0.
func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.size--
	return item
}
