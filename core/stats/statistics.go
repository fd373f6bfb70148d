// Package stats accumulates ride statistics. Every field is updated
// atomically on its own, so concurrent writers never take a shared lock.
package stats

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (f *atomicFloat) Load() float64 { return math.Float64frombits(f.bits.Load()) }

// TaxiStats is the per-taxi rollup.
type TaxiStats struct {
	rides    atomic.Int64
	distance atomicFloat
	revenue  atomicFloat
}

func (s *TaxiStats) record(distance, price float64) {
	s.rides.Add(1)
	s.distance.Add(distance)
	s.revenue.Add(price)
}

func (s *TaxiStats) RidesCompleted() int64  { return s.rides.Load() }
func (s *TaxiStats) TotalDistance() float64 { return s.distance.Load() }
func (s *TaxiStats) TotalRevenue() float64  { return s.revenue.Load() }

// Statistics is the process-wide accumulator. Its counters only grow.
type Statistics struct {
	startedAt      time.Time
	ridesCompleted atomic.Int64
	ordersAssigned atomic.Int64
	ordersFailed   atomic.Int64
	totalDistance  atomicFloat
	totalRevenue   atomicFloat
	taxis          sync.Map // int -> *TaxiStats
}

// New returns an empty accumulator whose uptime starts now.
func New() *Statistics {
	return &Statistics{startedAt: time.Now()}
}

// RecordCompletedRide adds one ride to the global and per-taxi totals.
func (s *Statistics) RecordCompletedRide(taxiID int, distance, price float64) {
	s.ridesCompleted.Add(1)
	s.totalDistance.Add(distance)
	s.totalRevenue.Add(price)
	v, _ := s.taxis.LoadOrStore(taxiID, &TaxiStats{})
	v.(*TaxiStats).record(distance, price)
}

// RecordOrderAssigned counts one successful assignment.
func (s *Statistics) RecordOrderAssigned() { s.ordersAssigned.Add(1) }

// RecordOrderFailed counts one failed assignment attempt.
func (s *Statistics) RecordOrderFailed() { s.ordersFailed.Add(1) }

func (s *Statistics) StartedAt() time.Time   { return s.startedAt }
func (s *Statistics) RidesCompleted() int64  { return s.ridesCompleted.Load() }
func (s *Statistics) OrdersAssigned() int64  { return s.ordersAssigned.Load() }
func (s *Statistics) OrdersFailed() int64    { return s.ordersFailed.Load() }
func (s *Statistics) TotalDistance() float64 { return s.totalDistance.Load() }
func (s *Statistics) TotalRevenue() float64  { return s.totalRevenue.Load() }

// Taxi returns the rollup for id, if that taxi completed at least one ride.
func (s *Statistics) Taxi(id int) (*TaxiStats, bool) {
	v, ok := s.taxis.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*TaxiStats), true
}

// TaxiSummary is one row of the per-taxi breakdown.
type TaxiSummary struct {
	TaxiID         int     `json:"taxi_id" yaml:"taxi_id"`
	RidesCompleted int64   `json:"rides_completed" yaml:"rides_completed"`
	TotalDistance  float64 `json:"total_distance_km" yaml:"total_distance_km"`
	TotalRevenue   float64 `json:"total_revenue" yaml:"total_revenue"`
	AverageFare    float64 `json:"average_fare" yaml:"average_fare"`
}

// Summary is a point-in-time copy of every counter plus derived values.
// TaxiRevenueMean and TaxiRevenueStdDev only cover taxis with at least one ride.
type Summary struct {
	StartedAt         time.Time     `json:"started_at" yaml:"started_at"`
	Uptime            time.Duration `json:"uptime" yaml:"uptime"`
	RidesCompleted    int64         `json:"rides_completed" yaml:"rides_completed"`
	OrdersAssigned    int64         `json:"orders_assigned" yaml:"orders_assigned"`
	OrdersFailed      int64         `json:"orders_failed" yaml:"orders_failed"`
	TotalDistance     float64       `json:"total_distance_km" yaml:"total_distance_km"`
	TotalRevenue      float64       `json:"total_revenue" yaml:"total_revenue"`
	AverageRide       float64       `json:"average_ride_km" yaml:"average_ride_km"`
	AverageFare       float64       `json:"average_fare" yaml:"average_fare"`
	RidesPerMinute    float64       `json:"rides_per_minute" yaml:"rides_per_minute"`
	TaxiRevenueMean   float64       `json:"taxi_revenue_mean" yaml:"taxi_revenue_mean"`
	TaxiRevenueStdDev float64       `json:"taxi_revenue_stddev" yaml:"taxi_revenue_stddev"`
	Taxis             []TaxiSummary `json:"taxis" yaml:"taxis"`
}

// Summary computes the derived figures as of now.
func (s *Statistics) Summary(now time.Time) Summary {
	rides := s.RidesCompleted()
	sum := Summary{
		StartedAt:      s.startedAt,
		Uptime:         now.Sub(s.startedAt),
		RidesCompleted: rides,
		OrdersAssigned: s.OrdersAssigned(),
		OrdersFailed:   s.OrdersFailed(),
		TotalDistance:  s.TotalDistance(),
		TotalRevenue:   s.TotalRevenue(),
	}
	if rides > 0 {
		sum.AverageRide = sum.TotalDistance / float64(rides)
		sum.AverageFare = sum.TotalRevenue / float64(rides)
	}
	if secs := int64(sum.Uptime.Seconds()); secs > 0 {
		sum.RidesPerMinute = float64(rides) * 60 / float64(secs)
	}

	s.taxis.Range(func(k, v any) bool {
		ts := v.(*TaxiStats)
		row := TaxiSummary{
			TaxiID:         k.(int),
			RidesCompleted: ts.RidesCompleted(),
			TotalDistance:  ts.TotalDistance(),
			TotalRevenue:   ts.TotalRevenue(),
		}
		if row.RidesCompleted > 0 {
			row.AverageFare = row.TotalRevenue / float64(row.RidesCompleted)
		}
		sum.Taxis = append(sum.Taxis, row)
		return true
	})
	sort.Slice(sum.Taxis, func(i, j int) bool { return sum.Taxis[i].TaxiID < sum.Taxis[j].TaxiID })

	revenues := make([]float64, len(sum.Taxis))
	for i, row := range sum.Taxis {
		revenues[i] = row.TotalRevenue
	}
	switch len(revenues) {
	case 0:
	case 1:
		sum.TaxiRevenueMean = revenues[0]
	default:
		sum.TaxiRevenueMean, sum.TaxiRevenueStdDev = stat.MeanStdDev(revenues, nil)
	}
	return sum
}
