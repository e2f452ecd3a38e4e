package storage

import (
	"context"
	"time"
)

// EventRecord is one journaled lease operation. The journal is an
// append-only local audit trail; it never participates in mutual
// exclusion decisions.
type EventRecord struct {
	ID         int64
	Operation  string
	StoreKey   string
	OwnerID    string
	Outcome    string
	RecordedAt time.Time
}

// EventReadRepository reads back journaled events for inspection.
type EventReadRepository interface {
	GetEvents(ctx context.Context, storeKeys []string, limit int) ([]EventRecord, error)
}
