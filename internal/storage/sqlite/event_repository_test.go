package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *EventRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewEventRepository(db)
}

func TestEventRepository_RecordAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	events := []coordination.Event{
		{Operation: "acquire_lock", StoreKey: "segmentd:lock:a", OwnerID: "worker-1", Outcome: "success", RecordedAt: base},
		{Operation: "extend_lock", StoreKey: "segmentd:lock:a", OwnerID: "worker-1", Outcome: "success", RecordedAt: base.Add(time.Second)},
		{Operation: "acquire_lock", StoreKey: "segmentd:lock:b", OwnerID: "worker-2", Outcome: "rejected", RecordedAt: base.Add(2 * time.Second)},
		{Operation: "mark_completed", StoreKey: "segmentd:completed:a", Outcome: "success", RecordedAt: base.Add(3 * time.Second)},
	}

	for _, event := range events {
		require.NoError(t, repo.Record(ctx, event))
	}

	records, err := repo.GetEvents(ctx, []string{"segmentd:lock:a", "segmentd:completed:a"}, 50)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first; the other segment's event is filtered out.
	assert.Equal(t, "mark_completed", records[0].Operation)
	assert.Equal(t, "extend_lock", records[1].Operation)
	assert.Equal(t, "acquire_lock", records[2].Operation)

	assert.Equal(t, "worker-1", records[1].OwnerID)
	assert.Empty(t, records[0].OwnerID)
	assert.True(t, records[0].RecordedAt.Equal(base.Add(3*time.Second)))
}

func TestEventRepository_GetEventsLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.Record(ctx, coordination.Event{
			Operation:  "extend_lock",
			StoreKey:   "segmentd:lock:a",
			OwnerID:    "worker-1",
			Outcome:    "success",
			RecordedAt: time.Now(),
		}))
	}

	records, err := repo.GetEvents(ctx, []string{"segmentd:lock:a"}, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestEventRepository_GetEventsEmpty(t *testing.T) {
	repo := newTestRepository(t)

	records, err := repo.GetEvents(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = repo.GetEvents(context.Background(), []string{"segmentd:lock:missing"}, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
