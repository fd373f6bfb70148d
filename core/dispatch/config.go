package dispatch

import (
	"fmt"
	"time"
)

// Config defines dispatcher timing settings.
type Config struct {
	PollTimeout         time.Duration `json:"poll_timeout"`
	AssignmentTimeout   time.Duration `json:"assignment_timeout"`
	RetryBackoff        time.Duration `json:"retry_backoff"`
	ReportDelay         time.Duration `json:"report_delay"`
	ReportInterval      time.Duration `json:"report_interval"`
	ReporterStopTimeout time.Duration `json:"reporter_stop_timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.AssignmentTimeout <= 0 {
		c.AssignmentTimeout = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.ReportDelay <= 0 {
		c.ReportDelay = 5 * time.Second
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = 10 * time.Second
	}
	if c.ReporterStopTimeout <= 0 {
		c.ReporterStopTimeout = 5 * time.Second
	}
}

// Validate rejects settings that would make the loops spin.
func (c Config) Validate() error {
	if c.PollTimeout < time.Millisecond {
		return fmt.Errorf("dispatch.poll_timeout must be at least 1ms")
	}
	if c.ReportInterval < time.Millisecond {
		return fmt.Errorf("dispatch.report_interval must be at least 1ms")
	}
	return nil
}
