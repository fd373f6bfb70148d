package queue

import (
	"context"
	"sync"
	"time"
)

// FIFO is a concurrency-safe first-in first-out queue. A capacity of zero
// makes it unbounded, in which case Offer never waits.
type FIFO[T any] struct {
	mu       sync.Mutex
	items    []T
	inflight int
	capacity int
	notEmpty chan struct{}
	notFull  chan struct{}
}

// NewFIFO creates a queue holding at most capacity items (0 = unbounded).
func NewFIFO[T any](capacity int) *FIFO[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &FIFO[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
}

func (q *FIFO[T]) tryPush(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, item)
	notify(q.notEmpty)
	return true
}

func (q *FIFO[T]) tryPop(hold bool) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	if hold {
		q.inflight++
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	notify(q.notFull)
	if len(q.items) > 0 {
		notify(q.notEmpty)
	}
	return item, true
}

// Offer appends item, waiting up to timeout for free space.
func (q *FIFO[T]) Offer(ctx context.Context, item T, timeout time.Duration) error {
	if q.tryPush(item) {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notFull:
			if q.tryPush(item) {
				return nil
			}
		case <-timer.C:
			if q.tryPush(item) {
				return nil
			}
			return ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Poll removes the oldest item, waiting up to timeout for one to arrive.
func (q *FIFO[T]) Poll(ctx context.Context, timeout time.Duration) (T, error) {
	return q.poll(ctx, timeout, false)
}

// Take is Poll for consumers that report completion: the item stays counted
// by Pending until Done is called.
func (q *FIFO[T]) Take(ctx context.Context, timeout time.Duration) (T, error) {
	return q.poll(ctx, timeout, true)
}

// Done marks one item returned by Take as handled.
func (q *FIFO[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight > 0 {
		q.inflight--
	}
}

func (q *FIFO[T]) poll(ctx context.Context, timeout time.Duration, hold bool) (T, error) {
	if item, ok := q.tryPop(hold); ok {
		return item, nil
	}
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notEmpty:
			if item, ok := q.tryPop(hold); ok {
				return item, nil
			}
		case <-timer.C:
			if item, ok := q.tryPop(hold); ok {
				return item, nil
			}
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the queued items plus those taken but not yet Done.
func (q *FIFO[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.inflight
}
