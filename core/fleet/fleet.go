// Package fleet holds the fixed roster of taxis.
package fleet

import (
	"fmt"
	"math/rand"

	"github.com/kilianp07/taxidispatch/core/geo"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/queue"
	"github.com/kilianp07/taxidispatch/core/taxi"
)

// Composition is the number of taxis per profile.
type Composition struct {
	Economy int `json:"economy"`
	Comfort int `json:"comfort"`
	Premium int `json:"premium"`
}

// SetDefaults applies the standard 5/3/2 fleet when nothing is configured.
func (c *Composition) SetDefaults() {
	if c.Economy == 0 && c.Comfort == 0 && c.Premium == 0 {
		c.Economy, c.Comfort, c.Premium = 5, 3, 2
	}
}

// Validate rejects negative counts.
func (c Composition) Validate() error {
	for name, n := range map[string]int{"economy": c.Economy, "comfort": c.Comfort, "premium": c.Premium} {
		if n < 0 {
			return fmt.Errorf("fleet.%s must not be negative", name)
		}
	}
	return nil
}

// Total is the roster size.
func (c Composition) Total() int { return c.Economy + c.Comfort + c.Premium }

// Count returns the configured number of taxis for p.
func (c Composition) Count(p model.Profile) int {
	switch p.Name {
	case model.Economy.Name:
		return c.Economy
	case model.Comfort.Name:
		return c.Comfort
	case model.Premium.Name:
		return c.Premium
	}
	return 0
}

// Deps are the collaborators handed to every taxi.
type Deps struct {
	Stats   taxi.StatsRecorder
	History taxi.EventRecorder
	Logs    logger.Factory
}

// Fleet is built once and never resized.
type Fleet struct {
	taxis []*taxi.Taxi
	byID  map[int]*taxi.Taxi
}

// Build creates the roster with ids starting at 1, in profile order Economy,
// Comfort, Premium, each at a random location inside the city square.
func Build(comp Composition, cfg taxi.Config, citySize float64, rng *rand.Rand, deps Deps) *Fleet {
	if deps.Logs == nil {
		deps.Logs = logger.Nop
	}
	f := &Fleet{byID: make(map[int]*taxi.Taxi, comp.Total())}
	id := 0
	for _, p := range model.Profiles() {
		for i := 0; i < comp.Count(p); i++ {
			id++
			start := geo.Point{X: rng.Float64() * citySize, Y: rng.Float64() * citySize}
			t := taxi.New(id, p, start, cfg, deps.Stats, deps.History, deps.Logs(fmt.Sprintf("taxi-%d", id)))
			f.taxis = append(f.taxis, t)
			f.byID[id] = t
		}
	}
	return f
}

// New wraps existing taxis. Ids must be unique.
func New(taxis ...*taxi.Taxi) *Fleet {
	f := &Fleet{taxis: taxis, byID: make(map[int]*taxi.Taxi, len(taxis))}
	for _, t := range taxis {
		f.byID[t.ID()] = t
	}
	return f
}

// Taxis returns the roster in construction order.
func (f *Fleet) Taxis() []*taxi.Taxi { return f.taxis }

func (f *Fleet) Len() int { return len(f.taxis) }

// Get returns the taxi with the given id.
func (f *Fleet) Get(id int) (*taxi.Taxi, bool) {
	t, ok := f.byID[id]
	return t, ok
}

// Snapshot returns a view of every taxi in roster order.
func (f *Fleet) Snapshot() []model.TaxiView {
	out := make([]model.TaxiView, len(f.taxis))
	for i, t := range f.taxis {
		out[i] = t.View()
	}
	return out
}

// Mailbox returns the request queue of taxi id.
func (f *Fleet) Mailbox(id int) (*queue.FIFO[model.Request], bool) {
	t, ok := f.byID[id]
	if !ok {
		return nil, false
	}
	return t.Mailbox(), true
}

// Counts tallies taxis per state.
func (f *Fleet) Counts() map[model.TaxiState]int {
	out := make(map[model.TaxiState]int, 4)
	for _, t := range f.taxis {
		out[t.State()]++
	}
	return out
}

// AnyBusy reports whether any taxi still holds work (see taxi.Taxi.Busy).
func (f *Fleet) AnyBusy() bool {
	for _, t := range f.taxis {
		if t.Busy() {
			return true
		}
	}
	return false
}

// Stop asks every taxi to go offline.
func (f *Fleet) Stop() {
	for _, t := range f.taxis {
		t.Stop()
	}
}
