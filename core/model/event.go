package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies history events.
type EventKind int

const (
	EventOrderCreated EventKind = iota + 1
	EventOrderAssigned
	EventOrderFailed
	EventRideStarted
	EventRideCompleted
)

var eventKindNames = map[EventKind]string{
	EventOrderCreated:  "order_created",
	EventOrderAssigned: "order_assigned",
	EventOrderFailed:   "order_failed",
	EventRideStarted:   "ride_started",
	EventRideCompleted: "ride_completed",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for k, n := range eventKindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// MarshalText implements encoding.TextMarshaler. Unknown kinds are rejected
// so that every encoded event can be decoded again.
func (k EventKind) MarshalText() ([]byte, error) {
	n, ok := eventKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	v, err := ParseEventKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// HistoryEvent is one immutable entry of the ride history.
type HistoryEvent struct {
	ID          uuid.UUID `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        EventKind `json:"kind"`
	RequestID   int64     `json:"request_id"`
	TaxiID      int       `json:"taxi_id,omitempty"` // 0 when no taxi is involved
	ClientLabel string    `json:"client_label"`
	Description string    `json:"description"`
	DistanceKm  float64   `json:"distance_km,omitempty"`
	Price       float64   `json:"price,omitempty"`
}

// NewHistoryEvent stamps an event with a fresh id and the current time.
func NewHistoryEvent(kind EventKind, requestID int64, taxiID int, client, description string) HistoryEvent {
	return HistoryEvent{
		ID:          uuid.New(),
		Timestamp:   time.Now(),
		Kind:        kind,
		RequestID:   requestID,
		TaxiID:      taxiID,
		ClientLabel: client,
		Description: description,
	}
}

func (e HistoryEvent) String() string {
	taxi := ""
	if e.TaxiID != 0 {
		taxi = fmt.Sprintf(", taxi #%d", e.TaxiID)
	}
	return fmt.Sprintf("[%s] %s - order #%d%s: %s",
		e.Timestamp.Format("15:04:05"), e.Kind, e.RequestID, taxi, e.Description)
}
