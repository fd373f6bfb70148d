// Package journal keeps an append-only audit trail of history events. The
// journal is never read back to restore state.
package journal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
)

// Query defines filters for retrieving events. Zero values match everything.
type Query struct {
	Start     time.Time
	End       time.Time
	Kind      model.EventKind
	TaxiID    int
	RequestID int64
	// Limit keeps only the most recent matches when positive.
	Limit int
}

// Matches reports whether ev passes every filter except Limit.
func (q Query) Matches(ev model.HistoryEvent) bool {
	if !q.Start.IsZero() && ev.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && ev.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != 0 && ev.Kind != q.Kind {
		return false
	}
	if q.TaxiID != 0 && ev.TaxiID != q.TaxiID {
		return false
	}
	if q.RequestID != 0 && ev.RequestID != q.RequestID {
		return false
	}
	return true
}

// apply sorts matches oldest first and trims them to the limit.
func (q Query) apply(evs []model.HistoryEvent) []model.HistoryEvent {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
	if q.Limit > 0 && len(evs) > q.Limit {
		evs = evs[len(evs)-q.Limit:]
	}
	return evs
}

// Store persists history events and supports querying.
type Store interface {
	Append(ctx context.Context, ev model.HistoryEvent) error
	Query(ctx context.Context, q Query) ([]model.HistoryEvent, error)
	Close() error
}

const (
	BackendJSONL         = "jsonl"
	BackendJSONLRotating = "jsonl_rotating"
	BackendSQLite        = "sqlite"
)

// Config defines settings for the journal.
type Config struct {
	Enabled bool `json:"enabled"`
	// Backend selects the store type: "jsonl", "jsonl_rotating" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// Rotation settings, used by jsonl_rotating only.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendJSONL
	}
	if c.Path == "" {
		if c.Backend == BackendSQLite {
			c.Path = "journal.db"
		} else {
			c.Path = "journal.jsonl"
		}
	}
	if c.Backend == BackendJSONLRotating && c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendJSONL, BackendJSONLRotating, BackendSQLite:
	default:
		return fmt.Errorf("journal.backend: unknown backend %q", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	return nil
}

// Open creates the store selected by cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendJSONL:
		return NewJSONLStore(cfg.Path)
	case BackendJSONLRotating:
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}
