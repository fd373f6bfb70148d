package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/taxidispatch/api/observer"
	"github.com/kilianp07/taxidispatch/config"
	"github.com/kilianp07/taxidispatch/core/generator"
	"github.com/kilianp07/taxidispatch/core/journal"
	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	coremon "github.com/kilianp07/taxidispatch/core/monitoring"
	"github.com/kilianp07/taxidispatch/core/simulation"
	"github.com/kilianp07/taxidispatch/core/stats"
	"github.com/kilianp07/taxidispatch/infra/logger"
	"github.com/kilianp07/taxidispatch/infra/metrics"
	"github.com/kilianp07/taxidispatch/infra/monitoring"
	"github.com/kilianp07/taxidispatch/infra/mqtt"
	"github.com/kilianp07/taxidispatch/internal/eventbus"
)

// Service wires the simulation to its observers: metrics sinks, the MQTT
// publisher, the event journal and the HTTP surfaces.
type Service struct {
	RunID string

	cfg       *config.Config
	sim       *simulation.Simulation
	bus       *eventbus.TypedBus[model.HistoryEvent]
	sink      coremetrics.Sink
	journal   journal.Store
	publisher *mqtt.Publisher
	log       logger.Logger
}

// New creates a Service from the configuration. Nothing runs until Run.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	svc := &Service{
		RunID: uuid.NewString(),
		cfg:   cfg,
		bus:   eventbus.NewTyped[model.HistoryEvent](),
		log:   logg,
	}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
		sink = coremetrics.NewMultiSink(sink, pub)
	}
	svc.sink = sink

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("journal: %w", err)
		}
		svc.journal = store
	}

	var fleetSink coremetrics.FleetStateRecorder
	if r, ok := sink.(coremetrics.FleetStateRecorder); ok {
		fleetSink = r
	}
	sim, err := simulation.New(cfg.Core(), simulation.Deps{
		Logs:      logger.New,
		Labels:    generator.NewFakerLabels(cfg.Simulation.Seed),
		FleetSink: fleetSink,
		Publisher: svc.bus,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.sim = sim
	return svc, nil
}

// Simulation exposes the engine, mainly for tests and observers.
func (s *Service) Simulation() *simulation.Simulation { return s.sim }

// Run starts the simulation and blocks until ctx is canceled or, with
// exit_when_done, the generator has finished. It then performs the drained
// shutdown and returns the final statistics.
func (s *Service) Run(ctx context.Context) (stats.Summary, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.log.Infof("run %s starting", s.RunID)

	var consumers sync.WaitGroup
	collected := metrics.StartEventCollector(runCtx, s.bus, s.sink, logger.New("event-collector"))
	if s.journal != nil {
		events := s.bus.Subscribe()
		rec := journal.NewRecorder(s.journal, logger.New("journal"))
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			rec.Run(runCtx, events)
		}()
	}
	s.startServers(runCtx)

	if err := s.sim.Start(runCtx); err != nil {
		return stats.Summary{}, err
	}

	var done <-chan struct{}
	if s.cfg.Simulation.ExitWhenDone {
		done = s.sim.Done()
	}
	select {
	case <-ctx.Done():
		s.log.Infof("shutdown requested")
	case <-done:
		s.log.Infof("all orders generated")
	}

	sum, err := s.sim.Shutdown(context.Background())
	s.bus.Close()
	<-collected
	consumers.Wait()
	if r, ok := s.sink.(coremetrics.SummaryRecorder); ok {
		if rerr := r.RecordSummary(sum); rerr != nil {
			s.log.Warnf("record summary: %v", rerr)
		}
	}
	if dropped := s.bus.Dropped(); dropped > 0 {
		s.log.Warnf("%d events were not delivered to slow consumers", dropped)
	}
	return sum, err
}

func (s *Service) startServers(ctx context.Context) {
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, logger.New("prometheus")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.API.Enabled {
		h := observer.NewRouter(s.sim, observer.Options{
			Journal: s.journal,
			Token:   s.cfg.API.Token,
			Logger:  logger.New("observer"),
		})
		go func() {
			if err := observer.Serve(ctx, s.cfg.API.Addr, h, logger.New("observer")); err != nil {
				s.log.Errorf("observer API: %v", err)
			}
		}()
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.sink != nil {
		errs = append(errs, coremetrics.CloseSink(s.sink))
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
