package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/monitoring"
	"github.com/kilianp07/taxidispatch/core/queue"
)

// Queue is the shared request queue.
type Queue interface {
	Poll(ctx context.Context, timeout time.Duration) (model.Request, error)
	Push(r model.Request)
	Len() int
}

// Roster gives read access to the fleet.
type Roster interface {
	Snapshot() []model.TaxiView
	Mailbox(id int) (*queue.FIFO[model.Request], bool)
	Counts() map[model.TaxiState]int
}

// StatsRecorder counts assignment outcomes.
type StatsRecorder interface {
	RecordOrderAssigned()
	RecordOrderFailed()
}

// EventRecorder stores assignment history.
type EventRecorder interface {
	OrderAssigned(req model.Request, taxiID int, profile model.Profile, pickupKm float64) model.HistoryEvent
	OrderFailed(req model.Request, reason string) model.HistoryEvent
}

// Dispatcher matches queued requests to the nearest available taxi.
//
// Matching reads a roster snapshot and then offers the request to the chosen
// taxi's mailbox. The two steps are not atomic: the taxi may change state in
// between. With a single dispatcher this only delays the request in the
// taxi's FIFO. Running two dispatchers on one roster could double-book a
// taxi and is not supported.
type Dispatcher struct {
	cfg      Config
	queue    Queue
	roster   Roster
	stats    StatsRecorder
	hist     EventRecorder
	reporter *Reporter
	log      logger.Logger

	stopped atomic.Bool
	// owned by the Run goroutine
	attempts map[int64]int
	notFound map[int64]int
}

// New creates a dispatcher. sink receives periodic fleet censuses and may be nil.
func New(cfg Config, q Queue, roster Roster, st StatsRecorder, hist EventRecorder, sink metrics.FleetStateRecorder, log logger.Logger) *Dispatcher {
	cfg.SetDefaults()
	log = logger.OrNop(log)
	return &Dispatcher{
		cfg:      cfg,
		queue:    q,
		roster:   roster,
		stats:    st,
		hist:     hist,
		reporter: NewReporter(cfg.ReportDelay, cfg.ReportInterval, roster, q, sink, log),
		log:      log,
		attempts: make(map[int64]int),
		notFound: make(map[int64]int),
	}
}

// Run starts the reporter and processes requests until Stop is called or
// ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Infof("dispatcher started")
	d.reporter.Start(ctx)
	defer d.log.Infof("dispatcher stopped")

	for !d.stopped.Load() {
		req, err := d.queue.Poll(ctx, d.cfg.PollTimeout)
		if errors.Is(err, queue.ErrTimeout) {
			continue
		}
		if err != nil {
			return
		}
		d.process(ctx, req)
	}
}

// Stop raises the stop flag and stops the reporter, waiting at most
// ReporterStopTimeout. Run returns after its current wait.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.stopped.Store(true)
	if !d.reporter.Stop(ctx, d.cfg.ReporterStopTimeout) {
		d.log.Warnf("status reporter did not stop within %s, canceled", d.cfg.ReporterStopTimeout)
	}
}

// Reporter exposes the status reporter.
func (d *Dispatcher) Reporter() *Reporter { return d.reporter }

// QueueSize is the number of requests waiting for a taxi.
func (d *Dispatcher) QueueSize() int { return d.queue.Len() }

// AvailableCount is the number of taxis that could take a request now.
func (d *Dispatcher) AvailableCount() int {
	return d.roster.Counts()[model.StateAvailable]
}

func (d *Dispatcher) process(ctx context.Context, req model.Request) {
	d.attempts[req.ID]++
	attempt := d.attempts[req.ID]
	d.log.Debugw("processing order", map[string]any{
		"request_id": req.ID,
		"priority":   req.Priority.String(),
		"attempt":    attempt,
	})

	view, km, err := d.assign(ctx, req)
	if err == nil {
		delete(d.attempts, req.ID)
		delete(d.notFound, req.ID)
		if d.stats != nil {
			d.stats.RecordOrderAssigned()
		}
		if d.hist != nil {
			d.hist.OrderAssigned(req, view.ID, view.Profile, km)
		}
		ordersAssigned.Inc()
		pickupDistance.Observe(km)
		d.log.Infof("order #%d assigned to taxi #%d (%s) at %s (%.1f km to client)",
			req.ID, view.ID, view.Profile, view.Location, km)
		return
	}

	if errors.Is(err, ErrQueueNotFound) {
		monitoring.CaptureException(err, map[string]string{
			"component":  "dispatcher",
			"request_id": strconv.FormatInt(req.ID, 10),
		})
		d.log.Errorf("order #%d: %v", req.ID, err)
		d.notFound[req.ID]++
		if d.notFound[req.ID] > 1 {
			d.fail(req, err)
			delete(d.attempts, req.ID)
			delete(d.notFound, req.ID)
			d.log.Errorf("order #%d dropped after repeated %v", req.ID, ErrQueueNotFound)
			return
		}
	}

	d.fail(req, err)
	d.log.Warnf("could not assign order #%d (attempt %d): %v, returning it to the queue", req.ID, attempt, err)
	d.requeue(ctx, req)
}

// assign performs one matching attempt.
func (d *Dispatcher) assign(ctx context.Context, req model.Request) (model.TaxiView, float64, error) {
	view, km, ok := FindNearest(d.roster.Snapshot(), req.Pickup)
	if !ok {
		return view, 0, fmt.Errorf("order #%d: %w", req.ID, ErrNoAvailableTaxi)
	}
	mb, ok := d.roster.Mailbox(view.ID)
	if !ok {
		return view, km, fmt.Errorf("order #%d, taxi #%d: %w", req.ID, view.ID, ErrQueueNotFound)
	}
	if err := mb.Offer(ctx, req, d.cfg.AssignmentTimeout); err != nil {
		if errors.Is(err, queue.ErrTimeout) {
			return view, km, fmt.Errorf("order #%d, taxi #%d: %w", req.ID, view.ID, ErrAssignmentTimeout)
		}
		return view, km, fmt.Errorf("order #%d, taxi #%d: %w", req.ID, view.ID, err)
	}
	return view, km, nil
}

func (d *Dispatcher) fail(req model.Request, err error) {
	reason := failureReason(err)
	ordersFailed.WithLabelValues(reason).Inc()
	if d.stats != nil {
		d.stats.RecordOrderFailed()
	}
	if d.hist != nil {
		d.hist.OrderFailed(req, describe(err))
	}
}

// requeue waits for the retry backoff and pushes req back with its original
// priority and timestamp. The push happens even when ctx ends during the wait.
func (d *Dispatcher) requeue(ctx context.Context, req model.Request) {
	timer := time.NewTimer(d.cfg.RetryBackoff)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
	d.queue.Push(req)
}

func describe(err error) string {
	for _, sentinel := range []error{ErrNoAvailableTaxi, ErrAssignmentTimeout, ErrQueueNotFound} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "interrupted"
}
