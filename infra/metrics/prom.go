package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
)

// PromSink turns history events and fleet censuses into Prometheus metrics.
type PromSink struct {
	events      *prometheus.CounterVec
	revenue     prometheus.Counter
	distance    prometheus.Counter
	utilization prometheus.Gauge
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered under the same name are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxidispatch_history_events_total",
		Help: "History events by kind",
	}, []string{"kind"})
	revenue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxidispatch_revenue_total",
		Help: "Fares of completed rides",
	})
	distance := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxidispatch_ride_distance_km_total",
		Help: "Paid distance of completed rides",
	})
	utilization := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taxidispatch_fleet_utilization_ratio",
		Help: "Share of online taxis currently in a ride",
	})

	var err error
	if events, err = register(reg, events); err != nil {
		return nil, err
	}
	if revenue, err = register(reg, revenue); err != nil {
		return nil, err
	}
	if distance, err = register(reg, distance); err != nil {
		return nil, err
	}
	if utilization, err = register(reg, utilization); err != nil {
		return nil, err
	}
	return &PromSink{events: events, revenue: revenue, distance: distance, utilization: utilization}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordEvent counts the event; completed rides also add revenue and distance.
func (s *PromSink) RecordEvent(ev model.HistoryEvent) error {
	s.events.WithLabelValues(ev.Kind.String()).Inc()
	if ev.Kind == model.EventRideCompleted {
		s.revenue.Add(ev.Price)
		s.distance.Add(ev.DistanceKm)
	}
	return nil
}

// RecordFleetState sets the utilization gauge.
func (s *PromSink) RecordFleetState(st coremetrics.FleetState) error {
	online := st.Available + st.Busy()
	if online == 0 {
		s.utilization.Set(0)
		return nil
	}
	s.utilization.Set(float64(st.Busy()) / float64(online))
	return nil
}
