package simulation

import (
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/stats"
)

// Snapshot is a read-only copy of everything an observer may display.
type Snapshot struct {
	Time         time.Time            `json:"time"`
	Taxis        []model.TaxiView     `json:"taxis"`
	Pending      []model.Request      `json:"pending"`
	PendingTotal int                  `json:"pending_total"`
	Stats        stats.Summary        `json:"stats"`
	Events       []model.HistoryEvent `json:"events"`
}

// Snapshot copies the current state. At most pendingLimit queued requests
// (in dequeue order) and historyN events (newest first) are included; zero
// limits leave those lists empty.
func (s *Simulation) Snapshot(pendingLimit, historyN int) Snapshot {
	now := time.Now()
	snap := Snapshot{
		Time:         now,
		Taxis:        s.fleet.Snapshot(),
		Pending:      []model.Request{},
		PendingTotal: s.queue.Len(),
		Stats:        s.stats.Summary(now),
		Events:       s.hist.Recent(historyN),
	}
	if pendingLimit > 0 {
		snap.Pending = s.queue.Snapshot(pendingLimit)
	}
	if snap.Events == nil {
		snap.Events = []model.HistoryEvent{}
	}
	return snap
}
