package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
)

// Reporter periodically logs and exports a census of the fleet. It never
// influences dispatching.
type Reporter struct {
	delay    time.Duration
	interval time.Duration
	roster   Roster
	queue    Queue
	sink     metrics.FleetStateRecorder
	log      logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReporter creates a reporter. sink may be nil.
func NewReporter(delay, interval time.Duration, roster Roster, q Queue, sink metrics.FleetStateRecorder, log logger.Logger) *Reporter {
	return &Reporter{
		delay:    delay,
		interval: interval,
		roster:   roster,
		queue:    q,
		sink:     sink,
		log:      logger.OrNop(log),
		stop:     make(chan struct{}),
	}
}

// Start launches the reporting goroutine. Calling it twice has no effect.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

func (r *Reporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-r.stop:
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.Report()
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
		}
	}
}

// Report takes one census, logs it and forwards it to the gauges and sink.
func (r *Reporter) Report() metrics.FleetState {
	st := metrics.FleetStateFromCounts(r.roster.Counts(), r.queue.Len(), time.Now())

	queueDepth.Set(float64(st.QueueDepth))
	taxisByState.WithLabelValues(model.StateAvailable.String()).Set(float64(st.Available))
	taxisByState.WithLabelValues(model.StateEnRouteToPickup.String()).Set(float64(st.EnRoute))
	taxisByState.WithLabelValues(model.StateTransporting.String()).Set(float64(st.Transporting))
	taxisByState.WithLabelValues(model.StateOffline.String()).Set(float64(st.Offline))

	r.log.Infof("system status: %d queued, %d available, %d busy, %d offline",
		st.QueueDepth, st.Available, st.Busy(), st.Offline)
	if r.sink != nil {
		if err := r.sink.RecordFleetState(st); err != nil {
			r.log.Warnf("record fleet state: %v", err)
		}
	}
	return st
}

// Stop ends the reporting loop, waiting at most timeout (or until ctx ends)
// before force-canceling it. It reports whether the loop exited in time.
func (r *Reporter) Stop(ctx context.Context, timeout time.Duration) bool {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	done, cancel := r.done, r.cancel
	r.mu.Unlock()
	if done == nil {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		cancel()
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	cancel()
	return false
}
