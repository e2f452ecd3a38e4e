package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/italolelis/segment_coordinator/internal/storage"
)

// EventRepository journals lease events in SQLite. The journal is local
// to one coordinator instance; the shared store remains the only
// authority on leases.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record appends one lease event to the journal.
func (r *EventRepository) Record(ctx context.Context, event coordination.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO segment_events (operation, store_key, owner_id, outcome, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		event.Operation, event.StoreKey, event.OwnerID, event.Outcome, event.RecordedAt.UTC().Format(time.RFC3339Nano),
	)

	return err
}

// GetEvents returns the most recent events recorded against any of the
// given store keys, newest first.
func (r *EventRepository) GetEvents(ctx context.Context, storeKeys []string, limit int) ([]storage.EventRecord, error) {
	if len(storeKeys) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(storeKeys)-1) + "?"
	args := make([]any, 0, len(storeKeys)+1)

	for _, key := range storeKeys {
		args = append(args, key)
	}

	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, operation, store_key, owner_id, outcome, recorded_at
		FROM segment_events
		WHERE store_key IN (`+placeholders+`)
		ORDER BY id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []storage.EventRecord

	for rows.Next() {
		var record storage.EventRecord

		var ownerID sql.NullString

		var recordedAt string

		if err := rows.Scan(&record.ID, &record.Operation, &record.StoreKey, &ownerID, &record.Outcome, &recordedAt); err != nil {
			return nil, err
		}

		if ownerID.Valid {
			record.OwnerID = ownerID.String
		}

		record.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, err
		}

		events = append(events, record)
	}

	return events, rows.Err()
}
