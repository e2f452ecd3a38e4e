package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/italolelis/segment_coordinator/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, capacity int) (*SubscriberPool, redis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tel, err := telemetry.New(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	pool := NewSubscriberPool(client, capacity, tel)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	return pool, client
}

func TestSubscriberPool_DeliversMessages(t *testing.T) {
	pool, client := newTestPool(t, DefaultPoolCapacity)
	ctx := context.Background()

	var delivered atomic.Int64

	cancel, err := pool.Subscribe(ctx, "segmentd:complete:a", func(payload string) {
		if payload == "1" {
			delivered.Add(1)
		}
	})
	require.NoError(t, err)

	defer cancel()

	require.NoError(t, client.Publish(ctx, "segmentd:complete:a", "1").Err())

	require.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// A second publish is a second delivery, never a replay.
	require.NoError(t, client.Publish(ctx, "segmentd:complete:a", "1").Err())

	require.Eventually(t, func() bool {
		return delivered.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubscriberPool_ChannelIsolation(t *testing.T) {
	pool, client := newTestPool(t, DefaultPoolCapacity)
	ctx := context.Background()

	var a, b atomic.Int64

	cancelA, err := pool.Subscribe(ctx, "segmentd:complete:a", func(string) { a.Add(1) })
	require.NoError(t, err)

	defer cancelA()

	cancelB, err := pool.Subscribe(ctx, "segmentd:complete:b", func(string) { b.Add(1) })
	require.NoError(t, err)

	defer cancelB()

	require.NoError(t, client.Publish(ctx, "segmentd:complete:b", "1").Err())

	require.Eventually(t, func() bool {
		return b.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Zero(t, a.Load())
}

func TestSubscriberPool_CancelStopsDelivery(t *testing.T) {
	pool, client := newTestPool(t, DefaultPoolCapacity)
	ctx := context.Background()

	var delivered atomic.Int64

	cancel, err := pool.Subscribe(ctx, "segmentd:complete:a", func(string) { delivered.Add(1) })
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "segmentd:complete:a", "1").Err())

	require.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	require.NoError(t, client.Publish(ctx, "segmentd:complete:a", "1").Err())

	// Give a stale handler time to fire before asserting it didn't.
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, delivered.Load())

	// Cancel is single-shot; calling it again must not disturb the pool.
	cancel()
	assert.Equal(t, 1, pool.IdleSize())
}

func TestSubscriberPool_ReusesPooledConnection(t *testing.T) {
	pool, _ := newTestPool(t, DefaultPoolCapacity)
	ctx := context.Background()

	cancel, err := pool.Subscribe(ctx, "segmentd:complete:a", func(string) {})
	require.NoError(t, err)

	cancel()
	require.Equal(t, 1, pool.IdleSize())

	// The next subscribe must draw from the pool, not dial again.
	cancel, err = pool.Subscribe(ctx, "segmentd:complete:b", func(string) {})
	require.NoError(t, err)
	assert.Zero(t, pool.IdleSize())

	cancel()
	assert.Equal(t, 1, pool.IdleSize())
}

func TestSubscriberPool_IdleCapacity(t *testing.T) {
	const capacity = 2

	pool, _ := newTestPool(t, capacity)
	ctx := context.Background()

	// Acquiring never blocks on capacity: more concurrent subscriptions
	// than the pool holds are fine, the cap only bounds idle retention.
	cancels := make([]func(), 0, 4)

	for i := 0; i < 4; i++ {
		cancel, err := pool.Subscribe(ctx, "segmentd:complete:a", func(string) {})
		require.NoError(t, err)

		cancels = append(cancels, cancel)
	}

	for _, cancel := range cancels {
		cancel()
	}

	assert.Equal(t, capacity, pool.IdleSize())
}

func TestSubscriberPool_Close(t *testing.T) {
	pool, _ := newTestPool(t, DefaultPoolCapacity)
	ctx := context.Background()

	cancelIdle, err := pool.Subscribe(ctx, "segmentd:complete:a", func(string) {})
	require.NoError(t, err)
	cancelIdle()

	cancelActive, err := pool.Subscribe(ctx, "segmentd:complete:b", func(string) {})
	require.NoError(t, err)

	require.NoError(t, pool.Close(ctx))
	assert.Zero(t, pool.IdleSize())

	// Close is idempotent.
	require.NoError(t, pool.Close(ctx))

	// An in-flight subscription cancelled after disposal disconnects
	// instead of re-pooling.
	cancelActive()
	assert.Zero(t, pool.IdleSize())

	_, err = pool.Subscribe(ctx, "segmentd:complete:c", func(string) {})
	assert.ErrorIs(t, err, coordination.ErrHubClosed)
}
