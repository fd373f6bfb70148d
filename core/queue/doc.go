// Package queue provides the two blocking queues of the dispatch engine: the
// shared priority queue of pending requests and the per-taxi FIFO.
//
// Every wait is bounded by a timeout and by the caller's context so that the
// goroutines consuming them can observe their stop flags.
package queue

import "errors"

// ErrTimeout is returned when a bounded wait elapses.
var ErrTimeout = errors.New("queue: wait timed out")

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
