package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
)

type requestHeap []model.Request

func (h requestHeap) Len() int           { return len(h) }
func (h requestHeap) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h requestHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)        { *h = append(*h, x.(model.Request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = model.Request{}
	*h = old[:n-1]
	return r
}

// PriorityQueue is an unbounded, concurrency-safe queue of requests ordered
// by model.Request.Before. Requeued requests keep their original position
// because ordering only depends on their immutable fields.
type PriorityQueue struct {
	mu    sync.Mutex
	items requestHeap
	wake  chan struct{}
}

// NewPriorityQueue returns an empty queue. capacityHint only sizes the
// initial backing array.
func NewPriorityQueue(capacityHint int) *PriorityQueue {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &PriorityQueue{
		items: make(requestHeap, 0, capacityHint),
		wake:  make(chan struct{}, 1),
	}
}

// Push inserts r. It never blocks.
func (q *PriorityQueue) Push(r model.Request) {
	q.mu.Lock()
	heap.Push(&q.items, r)
	q.mu.Unlock()
	notify(q.wake)
}

// TryPop removes the head of the queue if there is one.
func (q *PriorityQueue) TryPop() (model.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.Request{}, false
	}
	r := heap.Pop(&q.items).(model.Request)
	if len(q.items) > 0 {
		// hand the wakeup on to another waiter
		notify(q.wake)
	}
	return r, true
}

// Poll waits up to timeout for the highest priority request. It returns
// ErrTimeout when nothing arrived in time, or the context error.
func (q *PriorityQueue) Poll(ctx context.Context, timeout time.Duration) (model.Request, error) {
	if r, ok := q.TryPop(); ok {
		return r, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.wake:
			if r, ok := q.TryPop(); ok {
				return r, nil
			}
		case <-timer.C:
			if r, ok := q.TryPop(); ok {
				return r, nil
			}
			return model.Request{}, ErrTimeout
		case <-ctx.Done():
			return model.Request{}, ctx.Err()
		}
	}
}

// Len returns the number of pending requests.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether no request is pending.
func (q *PriorityQueue) IsEmpty() bool { return q.Len() == 0 }

// Snapshot returns up to limit pending requests in dequeue order without
// removing them. A limit <= 0 returns all of them.
func (q *PriorityQueue) Snapshot(limit int) []model.Request {
	q.mu.Lock()
	cp := make([]model.Request, len(q.items))
	copy(cp, q.items)
	q.mu.Unlock()
	sort.Slice(cp, func(i, j int) bool { return cp[i].Before(cp[j]) })
	if limit > 0 && len(cp) > limit {
		cp = cp[:limit]
	}
	return cp
}
