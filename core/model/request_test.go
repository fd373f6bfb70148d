package model

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/geo"
)

func TestRequestIDsStrictlyIncreasing(t *testing.T) {
	prev := NewRequest(geo.Point{}, geo.Point{X: 1}, PriorityNormal, "a").ID
	for i := 0; i < 100; i++ {
		id := NewRequest(geo.Point{}, geo.Point{X: 1}, PriorityNormal, "a").ID
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestRequestIDsUniqueAcrossGoroutines(t *testing.T) {
	const workers, per = 8, 200
	var (
		mu  sync.Mutex
		ids = make(map[int64]struct{}, workers*per)
		wg  sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				r := NewRequest(geo.Point{}, geo.Point{}, PriorityNormal, "")
				mu.Lock()
				ids[r.ID] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ids, workers*per)
}

func TestRequestDistance(t *testing.T) {
	r := NewRequest(geo.Point{X: 10}, geo.Point{X: 20}, PriorityNormal, "c")
	assert.InDelta(t, 10.0, r.Distance(), 1e-9)
}

func TestRequestDefaultLabel(t *testing.T) {
	r := NewRequest(geo.Point{}, geo.Point{}, PriorityNormal, "")
	assert.Contains(t, r.ClientLabel, "Client-")
}

func TestRequestBefore(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	low := NewRequestAt(geo.Point{}, geo.Point{}, PriorityNormal, "r1", t0)
	high := NewRequestAt(geo.Point{}, geo.Point{}, PriorityVIP, "r2", t0.Add(time.Second))
	assert.True(t, high.Before(low))
	assert.False(t, low.Before(high))

	older := NewRequestAt(geo.Point{}, geo.Point{}, PriorityElevated, "o", t0)
	newer := NewRequestAt(geo.Point{}, geo.Point{}, PriorityElevated, "n", t0.Add(time.Millisecond))
	assert.True(t, older.Before(newer))

	tieA := NewRequestAt(geo.Point{}, geo.Point{}, PriorityNormal, "a", t0)
	tieB := NewRequestAt(geo.Point{}, geo.Point{}, PriorityNormal, "b", t0)
	assert.True(t, tieA.Before(tieB))
	assert.False(t, tieB.Before(tieA))
}

func TestRequestOrderingIsTotal(t *testing.T) {
	t0 := time.Now()
	var reqs []Request
	for i := 0; i < 30; i++ {
		reqs = append(reqs, NewRequestAt(geo.Point{}, geo.Point{}, Priority(i%3), "", t0.Add(time.Duration(i%5)*time.Second)))
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Before(reqs[j]) })
	for i := 1; i < len(reqs); i++ {
		a, b := reqs[i-1], reqs[i]
		require.GreaterOrEqual(t, a.Priority, b.Priority)
		if a.Priority == b.Priority {
			require.False(t, b.CreatedAt.Before(a.CreatedAt))
		}
	}
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "VIP", PriorityVIP.String())
	assert.False(t, Priority(3).Valid())
}
