// Package generator produces synthetic ride requests at a fixed pace.
package generator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/taxidispatch/core/geo"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
)

// Config controls the pace and shape of generated requests.
type Config struct {
	Interval      time.Duration
	Total         int // <= 0 means unbounded
	CitySize      float64
	MinDistanceKm float64
	MaxDistanceKm float64
	Seed          int64 // 0 selects a time based seed
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.CitySize <= 0 {
		c.CitySize = 100
	}
	if c.MinDistanceKm <= 0 {
		c.MinDistanceKm = 5
	}
	if c.MaxDistanceKm < c.MinDistanceKm {
		c.MaxDistanceKm = math.Max(50, c.MinDistanceKm)
	}
}

// Queue accepts generated requests without blocking.
type Queue interface {
	Push(r model.Request)
	Len() int
}

// Recorder stores the creation event of a request.
type Recorder interface {
	OrderCreated(r model.Request) model.HistoryEvent
}

var ordersGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "taxidispatch_orders_generated_total",
	Help: "Ride requests produced by the generator",
}, []string{"priority"})

func init() {
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers generator metrics. A nil registerer selects the default one.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ordersGenerated)
}

// Generator pushes one request per interval until Total is reached, Stop is
// called or the context ends.
type Generator struct {
	cfg    Config
	queue  Queue
	hist   Recorder
	labels LabelSource
	rand   *rand.Rand
	log    logger.Logger

	generated atomic.Int64
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates a generator. labels and log may be nil.
func New(cfg Config, q Queue, hist Recorder, labels LabelSource, log logger.Logger) *Generator {
	cfg.SetDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if labels == nil {
		labels = &SequenceLabels{}
	}
	return &Generator{
		cfg:    cfg,
		queue:  q,
		hist:   hist,
		labels: labels,
		rand:   rand.New(rand.NewSource(seed)),
		log:    logger.OrNop(log),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run generates requests until done. It must be called once.
func (g *Generator) Run(ctx context.Context) {
	defer close(g.done)
	g.log.Infof("client generator started (interval: %s, total: %d)", g.cfg.Interval, g.cfg.Total)
	defer func() {
		g.log.Infof("client generator finished, %d orders created", g.generated.Load())
	}()

	for g.cfg.Total <= 0 || int(g.generated.Load()) < g.cfg.Total {
		select {
		case <-ctx.Done():
			return
		case <-g.stop:
			return
		default:
		}

		req := g.Generate(time.Now())
		g.queue.Push(req)
		n := g.generated.Add(1)
		if g.hist != nil {
			g.hist.OrderCreated(req)
		}
		ordersGenerated.WithLabelValues(req.Priority.String()).Inc()
		g.log.Infof("new order %s, %d pending", req, g.queue.Len())

		if g.cfg.Total > 0 && int(n) >= g.cfg.Total {
			g.log.Infof("order limit reached: %d", g.cfg.Total)
			return
		}

		timer := time.NewTimer(g.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-g.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Generate draws one request created at now. Not safe for concurrent use.
func (g *Generator) Generate(now time.Time) model.Request {
	pickup := geo.Point{X: g.rand.Float64() * g.cfg.CitySize, Y: g.rand.Float64() * g.cfg.CitySize}
	dist := g.cfg.MinDistanceKm + g.rand.Float64()*(g.cfg.MaxDistanceKm-g.cfg.MinDistanceKm)
	bearing := g.rand.Float64() * 2 * math.Pi
	dest := geo.Clamp(geo.Offset(pickup, dist, bearing), 0, g.cfg.CitySize)
	return model.NewRequestAt(pickup, dest, DrawPriority(g.rand.Float64()), g.labels.Next(), now)
}

// DrawPriority maps a uniform sample in [0,1) to a priority tier:
// 5% VIP, 15% elevated, the rest normal.
func DrawPriority(u float64) model.Priority {
	switch {
	case u < 0.05:
		return model.PriorityVIP
	case u < 0.20:
		return model.PriorityElevated
	default:
		return model.PriorityNormal
	}
}

// Stop ends generation at the next boundary. Safe to call more than once.
func (g *Generator) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Generated is the number of requests pushed so far.
func (g *Generator) Generated() int { return int(g.generated.Load()) }

// Done is closed when Run returns.
func (g *Generator) Done() <-chan struct{} { return g.done }
