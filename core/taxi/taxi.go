// Package taxi runs the ride state machine of a single vehicle.
package taxi

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kilianp07/taxidispatch/core/geo"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/queue"
)

// Config holds per-taxi timing settings.
type Config struct {
	PollTimeout   time.Duration `json:"poll_timeout"`
	QueueCapacity int           `json:"queue_capacity"` // 0 means unbounded
	// TimeScale is copied from the simulation settings.
	TimeScale float64 `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.QueueCapacity < 0 {
		c.QueueCapacity = 0
	}
	if c.TimeScale <= 0 {
		c.TimeScale = DefaultTimeScale
	}
}

// StatsRecorder receives completed rides.
type StatsRecorder interface {
	RecordCompletedRide(taxiID int, distance, price float64)
}

// EventRecorder receives ride lifecycle events.
type EventRecorder interface {
	RideStarted(req model.Request, taxiID int, km, price float64) model.HistoryEvent
	RideCompleted(req model.Request, taxiID int, km, price float64) model.HistoryEvent
}

// Taxi is one vehicle. Its run loop is the only writer of state, location and
// current request; every other goroutine reads them through View.
type Taxi struct {
	id      int
	profile model.Profile
	cfg     Config

	state    atomic.Uint32
	location atomic.Pointer[geo.Point]
	current  atomic.Pointer[model.Request]
	stopped  atomic.Bool

	inbox *queue.FIFO[model.Request]
	stats StatsRecorder
	hist  EventRecorder
	log   logger.Logger
}

// New creates an available taxi at start.
func New(id int, profile model.Profile, start geo.Point, cfg Config, stats StatsRecorder, hist EventRecorder, log logger.Logger) *Taxi {
	cfg.SetDefaults()
	t := &Taxi{
		id:      id,
		profile: profile,
		cfg:     cfg,
		inbox:   queue.NewFIFO[model.Request](cfg.QueueCapacity),
		stats:   stats,
		hist:    hist,
		log:     logger.OrNop(log),
	}
	t.location.Store(&start)
	t.state.Store(uint32(model.StateAvailable))
	return t
}

func (t *Taxi) ID() int                { return t.id }
func (t *Taxi) Profile() model.Profile { return t.profile }
func (t *Taxi) State() model.TaxiState { return model.TaxiState(t.state.Load()) }
func (t *Taxi) Location() geo.Point    { return *t.location.Load() }

// Mailbox is the FIFO the dispatcher offers requests to.
func (t *Taxi) Mailbox() *queue.FIFO[model.Request] { return t.inbox }

// CurrentRequest returns the request being served, if any.
func (t *Taxi) CurrentRequest() (model.Request, bool) {
	r := t.current.Load()
	if r == nil {
		return model.Request{}, false
	}
	return *r, true
}

// View copies the observable fields.
func (t *Taxi) View() model.TaxiView {
	v := model.TaxiView{
		ID:       t.id,
		Profile:  t.profile,
		Location: t.Location(),
		State:    t.State(),
	}
	if r := t.current.Load(); r != nil {
		v.CurrentRequestID = r.ID
	}
	return v
}

// Busy reports whether the taxi holds work: a ride in progress, including the
// moments between leaving the mailbox and recording the result, or a request
// still waiting in its mailbox.
func (t *Taxi) Busy() bool {
	return t.State().Busy() || t.inbox.Pending() > 0
}

// Stop asks the taxi to go offline once idle. A ride in progress completes first.
func (t *Taxi) Stop() { t.stopped.Store(true) }

func (t *Taxi) setState(s model.TaxiState) { t.state.Store(uint32(s)) }

// Run serves requests from the mailbox until Stop is called or ctx ends.
// The taxi is Offline when Run returns.
func (t *Taxi) Run(ctx context.Context) {
	t.log.Infof("taxi #%d (%s) started at %s", t.id, t.profile, t.Location())
	defer func() {
		t.setState(model.StateOffline)
		t.log.Infof("taxi #%d went offline", t.id)
	}()

	for !t.stopped.Load() {
		req, err := t.inbox.Take(ctx, t.cfg.PollTimeout)
		if errors.Is(err, queue.ErrTimeout) {
			continue
		}
		if err != nil {
			return
		}
		err = t.serve(ctx, req)
		t.inbox.Done()
		if err != nil {
			t.log.Warnf("taxi #%d interrupted during ride #%d: %v", t.id, req.ID, err)
			return
		}
	}
}

// serve runs one full ride cycle. On interruption location and statistics
// are left untouched.
func (t *Taxi) serve(ctx context.Context, req model.Request) error {
	t.current.Store(&req)
	defer t.current.Store(nil)
	t.log.Infof("taxi #%d (%s) accepted order %s", t.id, t.profile, req)

	t.setState(model.StateEnRouteToPickup)
	approach := geo.Distance(t.Location(), req.Pickup)
	eta := TravelTime(approach, t.profile, t.cfg.TimeScale)
	t.log.Infof("taxi #%d heading to client (%.1f km, ~%s)", t.id, approach, eta)
	if err := sleep(ctx, eta); err != nil {
		return err
	}
	pickup := req.Pickup
	t.location.Store(&pickup)
	t.log.Infof("taxi #%d arrived at client at %s", t.id, pickup)

	t.setState(model.StateTransporting)
	km := req.Distance()
	price := Price(km, t.profile)
	if t.hist != nil {
		t.hist.RideStarted(req, t.id, km, price)
	}
	leg := TravelTime(km, t.profile, t.cfg.TimeScale)
	t.log.Infof("taxi #%d transporting %s (%.1f km, ~%s, fare %.2f)", t.id, req.ClientLabel, km, leg, price)
	if err := sleep(ctx, leg); err != nil {
		return err
	}
	dest := req.Destination
	t.location.Store(&dest)

	t.setState(model.StateAvailable)
	if t.stats != nil {
		t.stats.RecordCompletedRide(t.id, km, price)
	}
	if t.hist != nil {
		t.hist.RideCompleted(req, t.id, km, price)
	}
	t.log.Infof("taxi #%d available again at %s", t.id, dest)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Taxi) String() string {
	return fmt.Sprintf("taxi #%d (%s) [%s] @ %s", t.id, t.profile, t.State(), t.Location())
}
