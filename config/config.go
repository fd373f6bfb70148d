package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/fleet"
	"github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/simulation"
	"github.com/kilianp07/taxidispatch/core/taxi"
	"github.com/kilianp07/taxidispatch/infra/mqtt"
)

// EnvPrefix marks environment overrides. Nested keys use "__", so
// TAXI_SIMULATION__TOTAL_REQUESTS sets simulation.total_requests.
const EnvPrefix = "TAXI_"

type Config struct {
	Simulation simulation.Settings       `json:"simulation"`
	Fleet      fleet.Composition         `json:"fleet"`
	Dispatch   dispatch.Config           `json:"dispatch"`
	Taxi       taxi.Config               `json:"taxi"`
	Shutdown   simulation.ShutdownConfig `json:"shutdown"`
	History    simulation.HistoryConfig  `json:"history"`
	Journal    journal.Config            `json:"journal"`
	Metrics    metrics.Config            `json:"metrics"`
	MQTT       mqtt.Config               `json:"mqtt"`
	API        APIConfig                 `json:"api"`
	Sentry     SentryConfig              `json:"sentry"`
}

// Load reads the optional file at path, applies environment overrides and
// fills defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	// Seeded before unmarshaling so that an explicit zero survives.
	cfg := Config{Simulation: simulation.Settings{TotalRequests: simulation.DefaultTotalRequests}}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	core := c.Core()
	core.SetDefaults()
	c.Simulation, c.Fleet, c.Dispatch, c.Taxi, c.Shutdown, c.History =
		core.Simulation, core.Fleet, core.Dispatch, core.Taxi, core.Shutdown, core.History
	if c.Journal.Enabled {
		c.Journal.SetDefaults()
	}
	c.MQTT.SetDefaults()
	c.API.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Core().Validate(); err != nil {
		return err
	}
	if c.Journal.Enabled {
		if err := c.Journal.Validate(); err != nil {
			return err
		}
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	return c.Sentry.Validate()
}

// Core returns the sections consumed by the simulation engine.
func (c *Config) Core() simulation.Config {
	return simulation.Config{
		Simulation: c.Simulation,
		Fleet:      c.Fleet,
		Dispatch:   c.Dispatch,
		Taxi:       c.Taxi,
		Shutdown:   c.Shutdown,
		History:    c.History,
	}
}
