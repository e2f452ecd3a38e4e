package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/italolelis/segment_coordinator/internal/storage"
	"github.com/italolelis/segment_coordinator/internal/telemetry"
)

// InstrumentedEventRepository wraps EventRepository with telemetry.
type InstrumentedEventRepository struct {
	repo      *EventRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedEventRepository creates a new instrumented event repository.
func NewInstrumentedEventRepository(db *sql.DB, tel *telemetry.Telemetry) *InstrumentedEventRepository {
	return &InstrumentedEventRepository{
		repo:      NewEventRepository(db),
		telemetry: tel,
	}
}

// Record appends one lease event with telemetry.
func (r *InstrumentedEventRepository) Record(ctx context.Context, event coordination.Event) error {
	return r.telemetry.InstrumentOperation(ctx, "journal_record_event", "journal", func(ctx context.Context) error {
		return r.repo.Record(ctx, event)
	})
}

// GetEvents reads back journaled events with telemetry.
func (r *InstrumentedEventRepository) GetEvents(ctx context.Context, storeKeys []string, limit int) ([]storage.EventRecord, error) {
	var result []storage.EventRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentOperation(ctx, "journal_get_events", "journal", func(ctx context.Context) error {
		result, err = r.repo.GetEvents(ctx, storeKeys, limit)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
