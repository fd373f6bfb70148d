// Package history keeps a bounded, newest-first log of ride events.
package history

import (
	"fmt"
	"sync"

	"github.com/kilianp07/taxidispatch/core/model"
)

// DefaultCapacity is the number of events retained when no capacity is given.
const DefaultCapacity = 500

// Publisher receives every appended event. Implementations must not block.
type Publisher interface {
	Publish(ev model.HistoryEvent)
}

// Log is a fixed-size ring of events. The append that overflows it evicts the
// oldest entry.
type Log struct {
	mu    sync.RWMutex
	buf   []model.HistoryEvent
	head  int // next write position
	count int
	pub   Publisher
}

// New creates a log holding at most capacity events (DefaultCapacity if <= 0).
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]model.HistoryEvent, capacity)}
}

// SetPublisher attaches a subscriber for appended events. Call before the
// simulation starts.
func (l *Log) SetPublisher(p Publisher) {
	l.mu.Lock()
	l.pub = p
	l.mu.Unlock()
}

// Capacity returns the maximum number of retained events.
func (l *Log) Capacity() int { return len(l.buf) }

// Append stores ev as the newest event.
func (l *Log) Append(ev model.HistoryEvent) {
	l.mu.Lock()
	l.buf[l.head] = ev
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
	pub := l.pub
	l.mu.Unlock()

	if pub != nil {
		pub.Publish(ev)
	}
}

// Recent returns up to n events, newest first.
func (l *Log) Recent(n int) []model.HistoryEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > l.count {
		n = l.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]model.HistoryEvent, n)
	idx := l.head
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(l.buf)) % len(l.buf)
		out[i] = l.buf[idx]
	}
	return out
}

// All returns every retained event, newest first.
func (l *Log) All() []model.HistoryEvent {
	return l.Recent(l.Count())
}

// Count is the number of retained events, never above Capacity.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

func (l *Log) record(kind model.EventKind, req model.Request, taxiID int, desc string, km, price float64) model.HistoryEvent {
	ev := model.NewHistoryEvent(kind, req.ID, taxiID, req.ClientLabel, desc)
	ev.DistanceKm = km
	ev.Price = price
	l.Append(ev)
	return ev
}

// OrderCreated records a freshly generated request.
func (l *Log) OrderCreated(req model.Request) model.HistoryEvent {
	km := req.Distance()
	return l.record(model.EventOrderCreated, req, 0,
		fmt.Sprintf("priority: %s, distance: %.1f km", req.Priority, km), km, 0)
}

// OrderAssigned records a request handed to a taxi.
func (l *Log) OrderAssigned(req model.Request, taxiID int, profile model.Profile, pickupKm float64) model.HistoryEvent {
	return l.record(model.EventOrderAssigned, req, taxiID,
		fmt.Sprintf("type: %s, distance to client: %.1f km", profile.Label, pickupKm), pickupKm, 0)
}

// OrderFailed records an unsuccessful assignment attempt.
func (l *Log) OrderFailed(req model.Request, reason string) model.HistoryEvent {
	return l.record(model.EventOrderFailed, req, 0, reason, 0, 0)
}

// RideStarted records the start of the paid leg.
func (l *Log) RideStarted(req model.Request, taxiID int, km, price float64) model.HistoryEvent {
	return l.record(model.EventRideStarted, req, taxiID,
		fmt.Sprintf("distance: %.1f km, price: %.2f", km, price), km, price)
}

// RideCompleted records the end of a ride.
func (l *Log) RideCompleted(req model.Request, taxiID int, km, price float64) model.HistoryEvent {
	return l.record(model.EventRideCompleted, req, taxiID,
		fmt.Sprintf("revenue: %.2f, distance: %.1f km", price, km), km, price)
}
