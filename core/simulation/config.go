package simulation

import (
	"fmt"
	"time"

	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/fleet"
	"github.com/kilianp07/taxidispatch/core/generator"
	"github.com/kilianp07/taxidispatch/core/history"
	"github.com/kilianp07/taxidispatch/core/taxi"
)

// DefaultTotalRequests is the request budget used when the configuration
// does not name one.
const DefaultTotalRequests = 50

// Settings is the "simulation" configuration section.
type Settings struct {
	// TotalRequests is the number of generated requests; zero or negative means unbounded.
	TotalRequests   int           `json:"total_requests"`
	RequestInterval time.Duration `json:"request_interval"`
	QueueCapacity   int           `json:"queue_capacity"`
	CitySize        float64       `json:"city_size"`
	MinDistanceKm   float64       `json:"min_distance_km"`
	MaxDistanceKm   float64       `json:"max_distance_km"`
	TimeScale       float64       `json:"time_scale"`
	ExitWhenDone    bool          `json:"exit_when_done"`
	Seed            int64         `json:"seed"`
}

// SetDefaults fills unset fields.
func (s *Settings) SetDefaults() {
	if s.RequestInterval <= 0 {
		s.RequestInterval = 2 * time.Second
	}
	if s.QueueCapacity <= 0 {
		s.QueueCapacity = 100
	}
	if s.CitySize <= 0 {
		s.CitySize = 100
	}
	if s.MinDistanceKm <= 0 {
		s.MinDistanceKm = 5
	}
	if s.MaxDistanceKm <= 0 {
		s.MaxDistanceKm = 50
	}
	if s.TimeScale <= 0 {
		s.TimeScale = taxi.DefaultTimeScale
	}
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	if s.MaxDistanceKm < s.MinDistanceKm {
		return fmt.Errorf("simulation.max_distance_km (%g) is below min_distance_km (%g)", s.MaxDistanceKm, s.MinDistanceKm)
	}
	return nil
}

func (s Settings) generatorConfig() generator.Config {
	return generator.Config{
		Interval:      s.RequestInterval,
		Total:         s.TotalRequests,
		CitySize:      s.CitySize,
		MinDistanceKm: s.MinDistanceKm,
		MaxDistanceKm: s.MaxDistanceKm,
		Seed:          s.Seed,
	}
}

// ShutdownConfig bounds every phase of Shutdown.
type ShutdownConfig struct {
	DrainPoll    time.Duration `json:"drain_poll"`
	DrainGrace   time.Duration `json:"drain_grace"`
	DrainTimeout time.Duration `json:"drain_timeout"`
	PoolGrace    time.Duration `json:"pool_grace"`
}

// SetDefaults fills unset fields.
func (c *ShutdownConfig) SetDefaults() {
	if c.DrainPoll <= 0 {
		c.DrainPoll = time.Second
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 3 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 2 * time.Minute
	}
	if c.PoolGrace <= 0 {
		c.PoolGrace = 10 * time.Second
	}
}

// HistoryConfig sizes the in-memory event log.
type HistoryConfig struct {
	Capacity int `json:"capacity"`
}

func (c *HistoryConfig) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = history.DefaultCapacity
	}
}

// Config groups every setting of the simulation core.
type Config struct {
	Simulation Settings          `json:"simulation"`
	Fleet      fleet.Composition `json:"fleet"`
	Dispatch   dispatch.Config   `json:"dispatch"`
	Taxi       taxi.Config       `json:"taxi"`
	Shutdown   ShutdownConfig    `json:"shutdown"`
	History    HistoryConfig     `json:"history"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	c.Fleet.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Taxi.TimeScale = c.Simulation.TimeScale
	c.Taxi.SetDefaults()
	c.Shutdown.SetDefaults()
	c.History.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Fleet.Validate(); err != nil {
		return err
	}
	return c.Dispatch.Validate()
}
