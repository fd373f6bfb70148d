package metrics

import (
	"errors"

	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/stats"
)

// MultiSink fans out to several sinks. Every sink is called even when an
// earlier one fails; the errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Sinks returns the wrapped sinks.
func (m *MultiSink) Sinks() []Sink { return m.sinks }

func (m *MultiSink) RecordEvent(ev model.HistoryEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordEvent(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordFleetState(st FleetState) error {
	var errs []error
	for _, s := range m.sinks {
		if r, ok := s.(FleetStateRecorder); ok {
			if err := r.RecordFleetState(st); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordSummary(sum stats.Summary) error {
	var errs []error
	for _, s := range m.sinks {
		if r, ok := s.(SummaryRecorder); ok {
			if err := r.RecordSummary(sum); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// CloseSink releases s and, for a MultiSink, every wrapped sink. Sinks with a
// Close method of either form are closed; others are left alone.
func CloseSink(s Sink) error {
	switch c := s.(type) {
	case *MultiSink:
		var errs []error
		for _, inner := range c.sinks {
			errs = append(errs, CloseSink(inner))
		}
		return errors.Join(errs...)
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
