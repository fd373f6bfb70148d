package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/geo"
	"github.com/kilianp07/taxidispatch/core/model"
)

func newEvent(reqID int64) model.HistoryEvent {
	return model.NewHistoryEvent(model.EventOrderCreated, reqID, 0, "c", "d")
}

func TestLogIsBounded(t *testing.T) {
	l := New(0)
	for i := 1; i <= 501; i++ {
		l.Append(newEvent(int64(i)))
	}
	require.Equal(t, 500, l.Count())

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(501), recent[0].RequestID)
	assert.Equal(t, int64(500), recent[1].RequestID)
	assert.Equal(t, int64(499), recent[2].RequestID)

	all := l.All()
	require.Len(t, all, 500)
	assert.Equal(t, int64(2), all[len(all)-1].RequestID, "oldest event must be dropped")
}

func TestRecentBounds(t *testing.T) {
	l := New(10)
	assert.Empty(t, l.Recent(5))
	l.Append(newEvent(1))
	l.Append(newEvent(2))
	assert.Len(t, l.Recent(50), 2)
	assert.Empty(t, l.Recent(0))
	assert.Empty(t, l.Recent(-1))
}

func TestConcurrentAppend(t *testing.T) {
	l := New(100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.Append(newEvent(int64(i)))
				_ = l.Recent(10)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, l.Count())
}

type capturePublisher struct {
	mu     sync.Mutex
	events []model.HistoryEvent
}

func (c *capturePublisher) Publish(ev model.HistoryEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func TestTypedHelpers(t *testing.T) {
	l := New(10)
	pub := &capturePublisher{}
	l.SetPublisher(pub)

	req := model.NewRequest(geo.Point{X: 0, Y: 0}, geo.Point{X: 3, Y: 4}, model.PriorityVIP, "Ada")
	created := l.OrderCreated(req)
	assert.Equal(t, model.EventOrderCreated, created.Kind)
	assert.Equal(t, "priority: VIP, distance: 5.0 km", created.Description)
	assert.Zero(t, created.TaxiID)

	assigned := l.OrderAssigned(req, 3, model.Comfort, 2.25)
	assert.Equal(t, 3, assigned.TaxiID)
	assert.Contains(t, assigned.Description, model.Comfort.Label)

	l.OrderFailed(req, "no available taxi")
	l.RideStarted(req, 3, 5, 75)
	done := l.RideCompleted(req, 3, 5, 75)
	assert.InDelta(t, 75.0, done.Price, 1e-9)
	assert.Equal(t, "revenue: 75.00, distance: 5.0 km", done.Description)

	assert.Equal(t, 5, l.Count())
	assert.Len(t, pub.events, 5)
	assert.Equal(t, model.EventRideCompleted, l.Recent(1)[0].Kind)
	assert.Equal(t, "Ada", l.Recent(1)[0].ClientLabel)
}
