package model

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kilianp07/taxidispatch/core/geo"
)

// Priority orders requests in the dispatch queue. Higher is served first.
type Priority int

const (
	PriorityNormal   Priority = 0
	PriorityElevated Priority = 1
	PriorityVIP      Priority = 2
)

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool { return p >= PriorityNormal && p <= PriorityVIP }

func (p Priority) String() string {
	switch p {
	case PriorityVIP:
		return "VIP"
	case PriorityElevated:
		return "elevated"
	case PriorityNormal:
		return "normal"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

var requestSeq atomic.Int64

// Request is a single ride order. It is never modified after creation.
type Request struct {
	ID          int64     `json:"id"`
	Pickup      geo.Point `json:"pickup"`
	Destination geo.Point `json:"destination"`
	CreatedAt   time.Time `json:"created_at"`
	Priority    Priority  `json:"priority"`
	ClientLabel string    `json:"client_label"`
}

// NewRequest stamps a request with the next process-wide id and the current time.
func NewRequest(pickup, destination geo.Point, priority Priority, label string) Request {
	return NewRequestAt(pickup, destination, priority, label, time.Now())
}

// NewRequestAt is NewRequest with an explicit creation time.
func NewRequestAt(pickup, destination geo.Point, priority Priority, label string, at time.Time) Request {
	id := requestSeq.Add(1)
	if label == "" {
		label = fmt.Sprintf("Client-%d", id)
	}
	return Request{
		ID:          id,
		Pickup:      pickup,
		Destination: destination,
		CreatedAt:   at,
		Priority:    priority,
		ClientLabel: label,
	}
}

// Distance is the length of the paid leg, pickup to destination.
func (r Request) Distance() float64 {
	return geo.Distance(r.Pickup, r.Destination)
}

// Before reports whether r must be dequeued before o: higher priority first,
// then earlier creation time, then lower id.
func (r Request) Before(o Request) bool {
	if r.Priority != o.Priority {
		return r.Priority > o.Priority
	}
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.Before(o.CreatedAt)
	}
	return r.ID < o.ID
}

func (r Request) String() string {
	return fmt.Sprintf("order #%d [%s] %s -> %s (priority: %d, distance: %.1f km)",
		r.ID, r.ClientLabel, r.Pickup, r.Destination, int(r.Priority), r.Distance())
}
