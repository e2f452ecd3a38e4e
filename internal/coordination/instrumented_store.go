package coordination

import (
	"context"
	"time"

	"github.com/italolelis/segment_coordinator/internal/segment"
	"github.com/italolelis/segment_coordinator/internal/telemetry"
)

// InstrumentedLeaseStore wraps a LeaseStore with telemetry.
type InstrumentedLeaseStore struct {
	store     LeaseStore
	telemetry *telemetry.Telemetry
}

// NewInstrumentedLeaseStore creates a new instrumented lease store.
func NewInstrumentedLeaseStore(store LeaseStore, tel *telemetry.Telemetry) *InstrumentedLeaseStore {
	return &InstrumentedLeaseStore{
		store:     store,
		telemetry: tel,
	}
}

// AcquireLock attempts the conditional lease create with telemetry.
func (s *InstrumentedLeaseStore) AcquireLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	var acquired bool

	var err error

	instrumentedErr := s.telemetry.InstrumentStoreOperation(ctx, "acquire_lock", func(ctx context.Context) error {
		acquired, err = s.store.AcquireLock(ctx, key, ownerID, ttl)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	s.telemetry.RecordClaimAttempt(outcome(acquired))

	return acquired, nil
}

// ExtendLock renews the lease with telemetry.
func (s *InstrumentedLeaseStore) ExtendLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	var extended bool

	var err error

	instrumentedErr := s.telemetry.InstrumentStoreOperation(ctx, "extend_lock", func(ctx context.Context) error {
		extended, err = s.store.ExtendLock(ctx, key, ownerID, ttl)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	s.telemetry.RecordLeaseExtend(outcome(extended))

	return extended, nil
}

// ReleaseLock deletes the owned lease with telemetry.
func (s *InstrumentedLeaseStore) ReleaseLock(ctx context.Context, key, ownerID string) (bool, error) {
	var released bool

	var err error

	instrumentedErr := s.telemetry.InstrumentStoreOperation(ctx, "release_lock", func(ctx context.Context) error {
		released, err = s.store.ReleaseLock(ctx, key, ownerID)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	s.telemetry.RecordLeaseRelease(outcome(released))

	return released, nil
}

// SetStatus writes the status record with telemetry.
func (s *InstrumentedLeaseStore) SetStatus(ctx context.Context, key string, status segment.Status, ttl time.Duration) error {
	return s.telemetry.InstrumentStoreOperation(ctx, "set_status", func(ctx context.Context) error {
		return s.store.SetStatus(ctx, key, status, ttl)
	})
}

// GetStatus reads the status record with telemetry.
func (s *InstrumentedLeaseStore) GetStatus(ctx context.Context, key string) (segment.Status, error) {
	var status segment.Status

	var err error

	instrumentedErr := s.telemetry.InstrumentStoreOperation(ctx, "get_status", func(ctx context.Context) error {
		status, err = s.store.GetStatus(ctx, key)

		return err
	})

	if instrumentedErr != nil {
		return "", instrumentedErr
	}

	return status, nil
}

// MarkCompleted writes the completion marker with telemetry.
func (s *InstrumentedLeaseStore) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	err := s.telemetry.InstrumentStoreOperation(ctx, "mark_completed", func(ctx context.Context) error {
		return s.store.MarkCompleted(ctx, key, ttl)
	})
	if err != nil {
		return err
	}

	s.telemetry.RecordCompletion()

	return nil
}

// IsCompleted reads the completion marker with telemetry.
func (s *InstrumentedLeaseStore) IsCompleted(ctx context.Context, key string) (bool, error) {
	var completed bool

	var err error

	instrumentedErr := s.telemetry.InstrumentStoreOperation(ctx, "is_completed", func(ctx context.Context) error {
		completed, err = s.store.IsCompleted(ctx, key)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	return completed, nil
}

// Publish publishes a notification with telemetry.
func (s *InstrumentedLeaseStore) Publish(ctx context.Context, channel, payload string) error {
	err := s.telemetry.InstrumentStoreOperation(ctx, "publish", func(ctx context.Context) error {
		return s.store.Publish(ctx, channel, payload)
	})
	if err != nil {
		return err
	}

	s.telemetry.RecordNotificationPublished()

	return nil
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}

	return "rejected"
}
