package metrics

import (
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/stats"
)

// Sink records ride history events for observability purposes.
type Sink interface {
	RecordEvent(ev model.HistoryEvent) error
}

// FleetState is a periodic census of the fleet and the pending queue.
type FleetState struct {
	Available    int
	EnRoute      int
	Transporting int
	Offline      int
	QueueDepth   int
	Time         time.Time
}

// Busy is the number of taxis in a ride.
func (s FleetState) Busy() int { return s.EnRoute + s.Transporting }

// FleetStateFromCounts folds per-state counts into a FleetState.
func FleetStateFromCounts(counts map[model.TaxiState]int, queueDepth int, at time.Time) FleetState {
	return FleetState{
		Available:    counts[model.StateAvailable],
		EnRoute:      counts[model.StateEnRouteToPickup],
		Transporting: counts[model.StateTransporting],
		Offline:      counts[model.StateOffline],
		QueueDepth:   queueDepth,
		Time:         at,
	}
}

// FleetStateRecorder records periodic fleet censuses.
type FleetStateRecorder interface {
	RecordFleetState(s FleetState) error
}

// SummaryRecorder records the final statistics of a run.
type SummaryRecorder interface {
	RecordSummary(s stats.Summary) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordEvent(model.HistoryEvent) error { return nil }
func (NopSink) RecordFleetState(FleetState) error    { return nil }
func (NopSink) RecordSummary(stats.Summary) error    { return nil }
