package coordination

import (
	"context"
	"time"

	"github.com/italolelis/segment_coordinator/internal/segment"
)

// LeaseStore is the semantic layer over the shared store's atomic
// primitives. Implementations must perform ExtendLock and ReleaseLock
// as single server-side operations (scripts or transactions); a
// client-side read-then-write reintroduces the ownership race the
// owner check exists to prevent.
type LeaseStore interface {
	// AcquireLock creates the lease record with the given TTL only if
	// no record exists. Returns false without error when another owner
	// already holds the lease.
	AcquireLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error)

	// ExtendLock resets the lease TTL if and only if the stored owner
	// matches ownerID. Returns false on owner mismatch or absent lease.
	ExtendLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes the lease record if and only if the stored
	// owner matches ownerID. Returns false on owner mismatch or absent
	// lease.
	ReleaseLock(ctx context.Context, key, ownerID string) (bool, error)

	SetStatus(ctx context.Context, key string, status segment.Status, ttl time.Duration) error

	// GetStatus returns the stored status, or the empty status when no
	// record exists.
	GetStatus(ctx context.Context, key string) (segment.Status, error)

	MarkCompleted(ctx context.Context, key string, ttl time.Duration) error

	IsCompleted(ctx context.Context, key string) (bool, error)

	// Publish delivers payload to the channel's current subscribers.
	// At-most-once: absent subscribers never see the message.
	Publish(ctx context.Context, channel, payload string) error
}

// NotificationHub delivers published messages to local callbacks over a
// bounded set of reusable subscriber connections.
type NotificationHub interface {
	// Subscribe registers handler for every message on channel and
	// returns a cancel function that tears the subscription down and
	// returns the underlying connection to the hub. The cancel
	// function never fails; teardown errors are logged and swallowed.
	Subscribe(ctx context.Context, channel string, handler func(payload string)) (func(), error)

	// Close disposes all idle connections. After Close, Subscribe
	// fails with ErrHubClosed.
	Close(ctx context.Context) error
}
