package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/fleet"
	"github.com/kilianp07/taxidispatch/core/geo"
	"github.com/kilianp07/taxidispatch/core/history"
	"github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/monitoring"
	"github.com/kilianp07/taxidispatch/core/queue"
	"github.com/kilianp07/taxidispatch/core/stats"
	"github.com/kilianp07/taxidispatch/core/taxi"
)

type stubRoster struct {
	views []model.TaxiView
	boxes map[int]*queue.FIFO[model.Request]
}

func (s *stubRoster) Snapshot() []model.TaxiView { return s.views }

func (s *stubRoster) Mailbox(id int) (*queue.FIFO[model.Request], bool) {
	b, ok := s.boxes[id]
	return b, ok
}

func (s *stubRoster) Counts() map[model.TaxiState]int {
	out := map[model.TaxiState]int{}
	for _, v := range s.views {
		out[v.State]++
	}
	return out
}

func fastConfig() Config {
	return Config{
		PollTimeout:         10 * time.Millisecond,
		AssignmentTimeout:   20 * time.Millisecond,
		RetryBackoff:        20 * time.Millisecond,
		ReportDelay:         time.Hour,
		ReportInterval:      time.Hour,
		ReporterStopTimeout: 100 * time.Millisecond,
	}
}

func TestFindNearest(t *testing.T) {
	views := []model.TaxiView{
		{ID: 1, Location: geo.Point{X: 1}, State: model.StateTransporting},
		{ID: 2, Location: geo.Point{X: 5}, State: model.StateAvailable},
		{ID: 3, Location: geo.Point{X: -5}, State: model.StateAvailable},
		{ID: 4, Location: geo.Point{X: 9}, State: model.StateOffline},
	}
	best, km, ok := FindNearest(views, geo.Point{})
	require.True(t, ok)
	assert.Equal(t, 2, best.ID, "ties go to the first taxi in roster order")
	assert.InDelta(t, 5.0, km, 1e-9)

	_, _, ok = FindNearest(views[:1], geo.Point{})
	assert.False(t, ok)
	_, _, ok = FindNearest(nil, geo.Point{})
	assert.False(t, ok)
}

func TestScenarioAAssignsOnlyCandidate(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	st := stats.New()
	hist := history.New(0)
	tx := taxi.New(1, model.Economy, geo.Point{}, taxi.Config{PollTimeout: 10 * time.Millisecond, TimeScale: 60_000}, st, hist, nil)
	roster := fleet.New(tx)
	q := queue.NewPriorityQueue(4)
	d := New(fastConfig(), q, roster, st, hist, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tx.Run(ctx)
	go d.Run(ctx)

	q.Push(model.NewRequest(geo.Point{X: 10}, geo.Point{X: 20}, model.PriorityNormal, ""))

	require.Eventually(t, func() bool { return st.RidesCompleted() == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), st.OrdersAssigned())
	assert.Zero(t, st.OrdersFailed())
	assert.InDelta(t, 10*model.Economy.PricePerKm, st.TotalRevenue(), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(ordersAssigned))
	assert.Equal(t, 1, testutil.CollectAndCount(pickupDistance))

	var assigned []model.HistoryEvent
	for _, ev := range hist.All() {
		if ev.Kind == model.EventOrderAssigned {
			assigned = append(assigned, ev)
		}
	}
	require.Len(t, assigned, 1)
	assert.Equal(t, 1, assigned[0].TaxiID)
	assert.InDelta(t, 10.0, assigned[0].DistanceKm, 1e-9)

	d.Stop(context.Background())
	tx.Stop()
}

func TestScenarioCNoAvailableTaxiRequeues(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	roster := &stubRoster{views: []model.TaxiView{
		{ID: 1, State: model.StateOffline},
		{ID: 2, State: model.StateOffline},
	}}
	st := stats.New()
	hist := history.New(0)
	q := queue.NewPriorityQueue(4)
	d := New(fastConfig(), q, roster, st, hist, nil, nil)

	req := model.NewRequest(geo.Point{X: 1}, geo.Point{X: 2}, model.PriorityNormal, "")
	d.process(context.Background(), req)

	assert.Equal(t, int64(1), st.OrdersFailed())
	assert.Equal(t, 1.0, testutil.ToFloat64(ordersFailed.WithLabelValues("no_available_taxi")))
	require.Equal(t, 1, q.Len())
	back, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, req, back, "request must come back unchanged")

	ev := hist.Recent(1)[0]
	assert.Equal(t, model.EventOrderFailed, ev.Kind)
	assert.Equal(t, ErrNoAvailableTaxi.Error(), ev.Description)
	assert.Equal(t, 1, d.attempts[req.ID])
}

func TestRetryConservesRequests(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	roster := &stubRoster{}
	st := stats.New()
	q := queue.NewPriorityQueue(8)
	d := New(fastConfig(), q, roster, st, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 5; i++ {
		q.Push(model.NewRequest(geo.Point{}, geo.Point{X: 1}, model.PriorityNormal, ""))
	}
	done := make(chan struct{})
	go func() { d.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return st.OrdersFailed() >= 10 }, 3*time.Second, 5*time.Millisecond)
	d.Stop(context.Background())
	<-done
	assert.Equal(t, 5, q.Len(), "no request may be lost while retrying")
}

func TestAssignmentTimeout(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	full := queue.NewFIFO[model.Request](1)
	require.NoError(t, full.Offer(context.Background(), model.Request{ID: -1}, time.Second))
	roster := &stubRoster{
		views: []model.TaxiView{{ID: 1, State: model.StateAvailable}},
		boxes: map[int]*queue.FIFO[model.Request]{1: full},
	}
	st := stats.New()
	q := queue.NewPriorityQueue(1)
	d := New(fastConfig(), q, roster, st, nil, nil, nil)

	req := model.NewRequest(geo.Point{}, geo.Point{X: 1}, model.PriorityVIP, "")
	_, _, err := d.assign(context.Background(), req)
	assert.ErrorIs(t, err, ErrAssignmentTimeout)

	d.process(context.Background(), req)
	assert.Equal(t, int64(1), st.OrdersFailed())
	assert.Equal(t, 1.0, testutil.ToFloat64(ordersFailed.WithLabelValues("assignment_timeout")))
	assert.Equal(t, 1, q.Len())
}

type captureMonitor struct {
	mu   sync.Mutex
	errs []error
}

func (c *captureMonitor) CaptureException(err error, _ map[string]string) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}
func (c *captureMonitor) Flush(time.Duration) {}

func TestQueueNotFoundIsReportedAndRequeuedOnce(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	mon := &captureMonitor{}
	monitoring.Init(mon)
	t.Cleanup(func() { monitoring.Init(nil) })

	roster := &stubRoster{views: []model.TaxiView{{ID: 9, State: model.StateAvailable}}}
	st := stats.New()
	q := queue.NewPriorityQueue(1)
	d := New(fastConfig(), q, roster, st, nil, nil, nil)
	req := model.NewRequest(geo.Point{}, geo.Point{X: 1}, model.PriorityNormal, "")

	d.process(context.Background(), req)
	assert.Equal(t, 1, q.Len(), "first occurrence is requeued")
	back, _ := q.TryPop()

	d.process(context.Background(), back)
	assert.Zero(t, q.Len(), "second occurrence is dropped")
	assert.Equal(t, int64(2), st.OrdersFailed())
	require.Len(t, mon.errs, 2)
	assert.True(t, errors.Is(mon.errs[0], ErrQueueNotFound))
}

func TestRequeueEvenWhenCanceled(t *testing.T) {
	q := queue.NewPriorityQueue(1)
	d := New(Config{RetryBackoff: time.Hour}, q, &stubRoster{}, nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	d.requeue(ctx, model.NewRequest(geo.Point{}, geo.Point{}, model.PriorityNormal, ""))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, q.Len())
}

func TestStopEndsRun(t *testing.T) {
	d := New(fastConfig(), queue.NewPriorityQueue(1), &stubRoster{}, nil, nil, nil, nil)
	done := make(chan struct{})
	go func() { d.Run(context.Background()); close(done) }()
	d.Stop(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestAccessors(t *testing.T) {
	f := fleet.Build(fleet.Composition{Economy: 2, Premium: 1}, taxi.Config{}, 10, rand.New(rand.NewSource(1)), fleet.Deps{})
	q := queue.NewPriorityQueue(1)
	q.Push(model.NewRequest(geo.Point{}, geo.Point{}, model.PriorityNormal, ""))
	d := New(fastConfig(), q, f, nil, nil, nil, nil)
	assert.Equal(t, 1, d.QueueSize())
	assert.Equal(t, 3, d.AvailableCount())
}

type stateSink struct {
	mu     sync.Mutex
	states []metrics.FleetState
}

func (s *stateSink) RecordFleetState(st metrics.FleetState) error {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	return nil
}

func (s *stateSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func TestReporterPeriodicCensus(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	roster := &stubRoster{views: []model.TaxiView{
		{ID: 1, State: model.StateAvailable},
		{ID: 2, State: model.StateTransporting},
		{ID: 3, State: model.StateOffline},
	}}
	q := queue.NewPriorityQueue(2)
	q.Push(model.NewRequest(geo.Point{}, geo.Point{}, model.PriorityNormal, ""))
	sink := &stateSink{}
	r := NewReporter(5*time.Millisecond, 5*time.Millisecond, roster, q, sink, nil)

	r.Start(context.Background())
	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, time.Millisecond)
	assert.True(t, r.Stop(context.Background(), time.Second))

	sink.mu.Lock()
	first := sink.states[0]
	sink.mu.Unlock()
	assert.Equal(t, 1, first.Available)
	assert.Equal(t, 1, first.Busy())
	assert.Equal(t, 1, first.QueueDepth)
	assert.Equal(t, 1.0, testutil.ToFloat64(queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(taxisByState.WithLabelValues("offline")))
}

func TestReporterStopWithoutStart(t *testing.T) {
	r := NewReporter(time.Hour, time.Hour, &stubRoster{}, queue.NewPriorityQueue(1), nil, nil)
	assert.True(t, r.Stop(context.Background(), time.Millisecond))
}

type blockingSink struct{ release chan struct{} }

func (b *blockingSink) RecordFleetState(metrics.FleetState) error {
	<-b.release
	return nil
}

func TestReporterStopIsBounded(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	defer close(sink.release)
	r := NewReporter(time.Millisecond, time.Hour, &stubRoster{}, queue.NewPriorityQueue(1), sink, nil)
	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	assert.False(t, r.Stop(context.Background(), 20*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}
