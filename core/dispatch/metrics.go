package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ordersAssigned prometheus.Counter
	ordersFailed   *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	taxisByState   *prometheus.GaugeVec
	pickupDistance prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.CounterVec, prometheus.Gauge, *prometheus.GaugeVec, prometheus.Histogram) {
	assigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxidispatch_orders_assigned_total",
		Help: "Requests handed to a taxi",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxidispatch_orders_failed_total",
		Help: "Failed assignment attempts by reason",
	}, []string{"reason"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taxidispatch_order_queue_depth",
		Help: "Requests waiting in the shared queue",
	})
	taxis := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taxidispatch_taxis",
		Help: "Taxis per state",
	}, []string{"state"})
	pickup := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taxidispatch_pickup_distance_km",
		Help:    "Distance between the assigned taxi and the pickup point",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 150},
	})
	return assigned, failed, depth, taxis, pickup
}

func init() {
	ordersAssigned, ordersFailed, queueDepth, taxisByState, pickupDistance = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ordersAssigned, ordersFailed, queueDepth, taxisByState, pickupDistance)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ordersAssigned, ordersFailed, queueDepth, taxisByState, pickupDistance = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
