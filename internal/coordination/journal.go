package coordination

import (
	"context"
	"time"

	"github.com/italolelis/segment_coordinator/internal/logctx"
)

// Event is one lease mutation as seen by the journal.
type Event struct {
	Operation  string
	StoreKey   string
	OwnerID    string
	Outcome    string
	RecordedAt time.Time
}

// EventSink receives lease mutations for durable local journaling.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}

// JournaledLeaseStore wraps a LeaseStore and journals every lease
// mutation to an EventSink. Journal failures are logged and swallowed;
// the store operation's result always stands on its own. Read
// operations pass through unjournaled.
type JournaledLeaseStore struct {
	LeaseStore

	sink EventSink
}

// NewJournaledLeaseStore creates a new journaled lease store.
func NewJournaledLeaseStore(store LeaseStore, sink EventSink) *JournaledLeaseStore {
	return &JournaledLeaseStore{
		LeaseStore: store,
		sink:       sink,
	}
}

// AcquireLock attempts the conditional lease create and journals the outcome.
func (s *JournaledLeaseStore) AcquireLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	acquired, err := s.LeaseStore.AcquireLock(ctx, key, ownerID, ttl)
	s.record(ctx, "acquire_lock", key, ownerID, acquired, err)

	return acquired, err
}

// ExtendLock renews the lease and journals the outcome.
func (s *JournaledLeaseStore) ExtendLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	extended, err := s.LeaseStore.ExtendLock(ctx, key, ownerID, ttl)
	s.record(ctx, "extend_lock", key, ownerID, extended, err)

	return extended, err
}

// ReleaseLock deletes the owned lease and journals the outcome.
func (s *JournaledLeaseStore) ReleaseLock(ctx context.Context, key, ownerID string) (bool, error) {
	released, err := s.LeaseStore.ReleaseLock(ctx, key, ownerID)
	s.record(ctx, "release_lock", key, ownerID, released, err)

	return released, err
}

// MarkCompleted writes the completion marker and journals the outcome.
func (s *JournaledLeaseStore) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	err := s.LeaseStore.MarkCompleted(ctx, key, ttl)
	s.record(ctx, "mark_completed", key, "", err == nil, err)

	return err
}

func (s *JournaledLeaseStore) record(ctx context.Context, operation, key, ownerID string, ok bool, opErr error) {
	out := outcome(ok)
	if opErr != nil {
		out = "error"
	}

	event := Event{
		Operation:  operation,
		StoreKey:   key,
		OwnerID:    ownerID,
		Outcome:    out,
		RecordedAt: time.Now(),
	}

	if err := s.sink.Record(ctx, event); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to journal lease event", "operation", operation, "err", err)
	}
}
