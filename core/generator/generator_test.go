package generator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/geo"
	"github.com/kilianp07/taxidispatch/core/history"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/queue"
)

type sliceQueue struct {
	mu   sync.Mutex
	reqs []model.Request
}

func (s *sliceQueue) Push(r model.Request) {
	s.mu.Lock()
	s.reqs = append(s.reqs, r)
	s.mu.Unlock()
}

func (s *sliceQueue) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func TestDrawPriority(t *testing.T) {
	cases := []struct {
		u    float64
		want model.Priority
	}{
		{0, model.PriorityVIP},
		{0.0499, model.PriorityVIP},
		{0.05, model.PriorityElevated},
		{0.1999, model.PriorityElevated},
		{0.2, model.PriorityNormal},
		{0.999, model.PriorityNormal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DrawPriority(c.u), "u=%v", c.u)
	}
}

func TestGenerateDeterministicAndBounded(t *testing.T) {
	cfg := Config{Seed: 42}
	g1 := New(cfg, &sliceQueue{}, nil, &SequenceLabels{}, nil)
	g2 := New(cfg, &sliceQueue{}, nil, &SequenceLabels{}, nil)
	now := time.Unix(0, 0)
	for i := 0; i < 200; i++ {
		a, b := g1.Generate(now), g2.Generate(now)
		assert.Equal(t, a.Pickup, b.Pickup)
		assert.Equal(t, a.Destination, b.Destination)
		assert.Equal(t, a.Priority, b.Priority)

		for _, p := range []geo.Point{a.Pickup, a.Destination} {
			assert.True(t, p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100, "point %v out of city", p)
		}
		assert.LessOrEqual(t, a.Distance(), 50.0+1e-9)
		assert.True(t, a.Priority.Valid())
	}
}

func TestRunProducesExactlyTotal(t *testing.T) {
	q := queue.NewPriorityQueue(8)
	hist := history.New(0)
	g := New(Config{Interval: time.Millisecond, Total: 5, Seed: 1}, q, hist, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g.Run(ctx)

	assert.Equal(t, 5, g.Generated())
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, 5, hist.Count())
	for _, ev := range hist.All() {
		assert.Equal(t, model.EventOrderCreated, ev.Kind)
		assert.Contains(t, ev.Description, "priority: ")
	}
	select {
	case <-g.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestStopEndsUnboundedRun(t *testing.T) {
	q := &sliceQueue{}
	g := New(Config{Interval: 10 * time.Millisecond, Seed: 3}, q, nil, nil, nil)
	go g.Run(context.Background())

	require.Eventually(t, func() bool { return g.Generated() >= 2 }, 2*time.Second, 5*time.Millisecond)
	g.Stop()
	g.Stop()
	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("generator did not stop")
	}
	assert.Equal(t, g.Generated(), q.Len())
}

func TestRunCanceled(t *testing.T) {
	g := New(Config{Interval: time.Hour, Seed: 3}, &sliceQueue{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)
	require.Eventually(t, func() bool { return g.Generated() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("generator ignored cancellation")
	}
}

func TestLabelSources(t *testing.T) {
	s := &SequenceLabels{}
	assert.Equal(t, "Client-1", s.Next())
	assert.Equal(t, "Client-2", s.Next())

	f := NewFakerLabels(7)
	name := f.Next()
	assert.NotEmpty(t, name)
	assert.Contains(t, name, " ")
	assert.Equal(t, name, NewFakerLabels(7).Next())
}
