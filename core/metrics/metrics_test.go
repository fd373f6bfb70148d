package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/taxidispatch/core/factory"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/stats"
)

type recordSink struct {
	events, states, summaries int
	err                       error
}

func (r *recordSink) RecordEvent(model.HistoryEvent) error { r.events++; return r.err }
func (r *recordSink) RecordFleetState(FleetState) error    { r.states++; return nil }
func (r *recordSink) RecordSummary(stats.Summary) error    { r.summaries++; return nil }

type eventsOnly struct{ n int }

func (e *eventsOnly) RecordEvent(model.HistoryEvent) error { e.n++; return nil }

func TestMultiSinkForwards(t *testing.T) {
	s1 := &recordSink{err: errors.New("down")}
	s2 := &recordSink{}
	s3 := &eventsOnly{}
	m := NewMultiSink(s1, s2, s3)

	err := m.RecordEvent(model.HistoryEvent{})
	assert.ErrorContains(t, err, "down")
	require.NoError(t, m.RecordFleetState(FleetState{}))
	require.NoError(t, m.RecordSummary(stats.Summary{}))

	assert.Equal(t, 1, s1.events)
	assert.Equal(t, 1, s2.events)
	assert.Equal(t, 1, s3.n)
	assert.Equal(t, 1, s2.states)
	assert.Equal(t, 1, s2.summaries)
}

func TestNewSinkFromYAML(t *testing.T) {
	data := `sinks:
  - type: nop
  - type: nop
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	s, err := NewSink(cfg.Sinks)
	require.NoError(t, err)
	assert.IsType(t, &MultiSink{}, s)

	s, err = NewSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	_, err = NewSink([]factory.ModuleConfig{{Type: "carrier-pigeon"}})
	assert.Error(t, err)
}

func TestFleetStateFromCounts(t *testing.T) {
	now := time.Now()
	st := FleetStateFromCounts(map[model.TaxiState]int{
		model.StateAvailable:       4,
		model.StateEnRouteToPickup: 2,
		model.StateTransporting:    3,
		model.StateOffline:         1,
	}, 7, now)
	assert.Equal(t, 4, st.Available)
	assert.Equal(t, 5, st.Busy())
	assert.Equal(t, 1, st.Offline)
	assert.Equal(t, 7, st.QueueDepth)
	assert.Equal(t, now, st.Time)
}

type closingSink struct {
	NopSink
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

type failingCloser struct{ NopSink }

func (failingCloser) Close() error { return errors.New("flush failed") }

func TestCloseSinkWalksMultiSink(t *testing.T) {
	a, b := &closingSink{}, &closingSink{}
	err := CloseSink(NewMultiSink(a, NewMultiSink(b, failingCloser{}), NopSink{}))
	assert.ErrorContains(t, err, "flush failed")
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	c := &closingSink{}
	require.NoError(t, CloseSink(c))
	assert.True(t, c.closed)
	assert.NoError(t, CloseSink(NopSink{}))
}
