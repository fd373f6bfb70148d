// Package simulation wires the queue, fleet, dispatcher and generator
// together and coordinates their startup and shutdown.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/fleet"
	"github.com/kilianp07/taxidispatch/core/generator"
	"github.com/kilianp07/taxidispatch/core/history"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/monitoring"
	"github.com/kilianp07/taxidispatch/core/queue"
	"github.com/kilianp07/taxidispatch/core/stats"
)

// ErrNotStarted is returned by Shutdown before Start.
var ErrNotStarted = errors.New("simulation not started")

// Deps are optional collaborators. Nil fields select no-op behavior.
type Deps struct {
	Logs      logger.Factory
	Labels    generator.LabelSource
	FleetSink metrics.FleetStateRecorder
	Publisher history.Publisher
}

// Simulation owns every long running task of a run.
type Simulation struct {
	cfg        Config
	stats      *stats.Statistics
	hist       *history.Log
	queue      *queue.PriorityQueue
	fleet      *fleet.Fleet
	dispatcher *dispatch.Dispatcher
	generator  *generator.Generator
	log        logger.Logger

	started  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
	summary  stats.Summary
	err      error
}

// New builds the fleet and every component. Nothing runs until Start.
func New(cfg Config, deps Deps) (*Simulation, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Logs == nil {
		deps.Logs = logger.Nop
	}
	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	st := stats.New()
	hist := history.New(cfg.History.Capacity)
	if deps.Publisher != nil {
		hist.SetPublisher(deps.Publisher)
	}
	q := queue.NewPriorityQueue(cfg.Simulation.QueueCapacity)
	fl := fleet.Build(cfg.Fleet, cfg.Taxi, cfg.Simulation.CitySize, rand.New(rand.NewSource(seed)), fleet.Deps{
		Stats:   st,
		History: hist,
		Logs:    deps.Logs,
	})
	genCfg := cfg.Simulation.generatorConfig()
	if genCfg.Seed != 0 {
		genCfg.Seed++
	}

	return &Simulation{
		cfg:        cfg,
		stats:      st,
		hist:       hist,
		queue:      q,
		fleet:      fl,
		dispatcher: dispatch.New(cfg.Dispatch, q, fl, st, hist, deps.FleetSink, deps.Logs("dispatcher")),
		generator:  generator.New(genCfg, q, hist, deps.Labels, deps.Logs("generator")),
		log:        deps.Logs("simulation"),
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (s *Simulation) Config() Config { return s.cfg }

func (s *Simulation) Stats() *stats.Statistics         { return s.stats }
func (s *Simulation) History() *history.Log            { return s.hist }
func (s *Simulation) Queue() *queue.PriorityQueue      { return s.queue }
func (s *Simulation) Fleet() *fleet.Fleet              { return s.fleet }
func (s *Simulation) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Done is closed once the generator has produced its last request.
func (s *Simulation) Done() <-chan struct{} { return s.generator.Done() }

// Start launches one goroutine per taxi, the dispatcher and the generator.
// Canceling ctx force-stops all of them; use Shutdown for a drained stop.
func (s *Simulation) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("simulation already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.log.Infof("starting %d taxis (%d economy, %d comfort, %d premium)",
		s.fleet.Len(), s.cfg.Fleet.Economy, s.cfg.Fleet.Comfort, s.cfg.Fleet.Premium)

	for _, t := range s.fleet.Taxis() {
		s.spawn(fmt.Sprintf("taxi-%d", t.ID()), func() { t.Run(ctx) })
	}
	s.spawn("dispatcher", func() { s.dispatcher.Run(ctx) })
	s.spawn("generator", func() { s.generator.Run(ctx) })
	return nil
}

// spawn runs fn in the pool. A panic is reported and ends only that task.
func (s *Simulation) spawn(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if err := monitoring.CapturePanic(recover(), map[string]string{"component": name}); err != nil {
				s.log.Errorf("%s crashed: %v", name, err)
			}
		}()
		fn()
	}()
}

// Shutdown stops the run in order: generator, drain, dispatcher, taxis,
// goroutine pool. It returns the final statistics. Calling it again returns
// the first result.
func (s *Simulation) Shutdown(ctx context.Context) (stats.Summary, error) {
	if !s.started.Load() {
		return stats.Summary{}, ErrNotStarted
	}
	s.shutdown.Do(func() {
		s.summary, s.err = s.runShutdown(ctx)
	})
	return s.summary, s.err
}

func (s *Simulation) runShutdown(ctx context.Context) (sum stats.Summary, err error) {
	defer func() {
		if perr := monitoring.CapturePanic(recover(), map[string]string{"component": "shutdown"}); perr != nil {
			s.log.Errorf("shutdown panicked: %v", perr)
			s.cancel()
			sum, err = s.stats.Summary(time.Now()), perr
		}
	}()

	s.log.Infof("shutting down")
	s.generator.Stop()

	if derr := s.drain(ctx); derr != nil {
		s.log.Warnf("drain incomplete: %v (%d queued)", derr, s.queue.Len())
		err = derr
	}

	s.dispatcher.Stop(ctx)
	s.fleet.Stop()

	if !s.wait(ctx, s.cfg.Shutdown.PoolGrace) {
		s.log.Warnf("tasks still running after %s, canceling", s.cfg.Shutdown.PoolGrace)
		s.cancel()
		s.wait(ctx, s.cfg.Shutdown.PoolGrace)
	}
	s.cancel()

	s.log.Infof("simulation stopped")
	return s.stats.Summary(time.Now()), err
}

// drain waits until the shared queue is empty and no taxi is busy, then
// lets the grace period elapse.
func (s *Simulation) drain(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.Shutdown.DrainTimeout)
	defer cancel()
	ticker := time.NewTicker(s.cfg.Shutdown.DrainPoll)
	defer ticker.Stop()
	for !s.Drained() {
		s.log.Infof("waiting for %d queued orders and busy taxis", s.queue.Len())
		select {
		case <-dctx.Done():
			return dctx.Err()
		case <-ticker.C:
		}
	}
	grace := time.NewTimer(s.cfg.Shutdown.DrainGrace)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
	}
	return nil
}

// Drained reports whether no request is queued or in a ride.
func (s *Simulation) Drained() bool {
	return s.queue.IsEmpty() && !s.fleet.AnyBusy()
}

func (s *Simulation) wait(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	return false
}
