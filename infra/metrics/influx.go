package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/stats"
	"github.com/kilianp07/taxidispatch/infra/logger"
)

// InfluxConfig holds the connection settings of the influx sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes ride events, fleet censuses and the final summary to an
// InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordEvent writes one ride_event point.
func (s *InfluxSink) RecordEvent(ev model.HistoryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("ride_event").
		AddTag("kind", ev.Kind.String())
	if ev.TaxiID != 0 {
		p = p.AddTag("taxi_id", strconv.Itoa(ev.TaxiID))
	}
	p = p.AddField("distance_km", round3(ev.DistanceKm)).
		AddField("price", round3(ev.Price)).
		AddField("request_id", ev.RequestID).
		SetTime(ev.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFleetState writes a fleet_state point.
func (s *InfluxSink) RecordFleetState(st coremetrics.FleetState) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_state").
		AddField("available", st.Available).
		AddField("en_route", st.EnRoute).
		AddField("offline", st.Offline).
		AddField("queue_depth", st.QueueDepth).
		AddField("transporting", st.Transporting).
		SetTime(st.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSummary writes the totals of a run as one run_summary point.
func (s *InfluxSink) RecordSummary(sum stats.Summary) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("run_summary").
		AddField("orders_assigned", sum.OrdersAssigned).
		AddField("orders_failed", sum.OrdersFailed).
		AddField("rides_completed", sum.RidesCompleted).
		AddField("rides_per_minute", round3(sum.RidesPerMinute)).
		AddField("total_distance_km", round3(sum.TotalDistance)).
		AddField("total_revenue", round3(sum.TotalRevenue)).
		SetTime(sum.StartedAt.Add(sum.Uptime))
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
