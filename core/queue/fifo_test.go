package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := NewFIFO[int](0)
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Offer(context.Background(), i, time.Millisecond))
	}
	for i := 1; i <= 5; i++ {
		v, err := q.Poll(context.Background(), time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Zero(t, q.Len())
}

func TestFIFOOfferTimeoutWhenFull(t *testing.T) {
	q := NewFIFO[string](1)
	require.NoError(t, q.Offer(context.Background(), "a", time.Millisecond))
	err := q.Offer(context.Background(), "b", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, q.Len())
}

func TestFIFOOfferUnblocksWhenDrained(t *testing.T) {
	q := NewFIFO[string](1)
	require.NoError(t, q.Offer(context.Background(), "a", time.Millisecond))
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.Poll(context.Background(), time.Second)
	}()
	require.NoError(t, q.Offer(context.Background(), "b", time.Second))
	v, err := q.Poll(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestFIFOPollTimeoutAndCancel(t *testing.T) {
	q := NewFIFO[int](0)
	_, err := q.Poll(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = q.Poll(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFIFOTakeCountsUntilDone(t *testing.T) {
	q := NewFIFO[int](0)
	ctx := context.Background()
	require.NoError(t, q.Offer(ctx, 1, time.Second))
	assert.Equal(t, 1, q.Pending())

	v, err := q.Take(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Zero(t, q.Len())
	assert.Equal(t, 1, q.Pending())

	q.Done()
	assert.Zero(t, q.Pending())
	q.Done()
	assert.Zero(t, q.Pending())

	require.NoError(t, q.Offer(ctx, 2, time.Second))
	_, err = q.Poll(ctx, time.Second)
	require.NoError(t, err)
	assert.Zero(t, q.Pending())
}
