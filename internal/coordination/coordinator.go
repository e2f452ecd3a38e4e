package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/italolelis/segment_coordinator/internal/logctx"
	"github.com/italolelis/segment_coordinator/internal/segment"
)

const (
	// DefaultLeaseDuration bounds how long a crashed worker can hold a
	// segment before the store reclaims it.
	DefaultLeaseDuration = 60 * time.Second

	// DefaultCompletionTTL keeps completion markers queryable long
	// after the job finished.
	DefaultCompletionTTL = 7 * 24 * time.Hour
)

// Coordinator implements the claim-lease and completion-notification
// protocol for segments. All mutual exclusion happens server-side in
// the store; the coordinator holds no in-process locks.
type Coordinator struct {
	store LeaseStore
	hub   NotificationHub
	keys  segment.Keys

	leaseDuration time.Duration
	completionTTL time.Duration
}

func NewCoordinator(store LeaseStore, hub NotificationHub, keys segment.Keys, leaseDuration, completionTTL time.Duration) *Coordinator {
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}

	if completionTTL <= 0 {
		completionTTL = DefaultCompletionTTL
	}

	return &Coordinator{
		store:         store,
		hub:           hub,
		keys:          keys,
		leaseDuration: leaseDuration,
		completionTTL: completionTTL,
	}
}

// LeaseDuration returns the configured lease duration.
func (c *Coordinator) LeaseDuration() time.Duration {
	return c.leaseDuration
}

// Claim attempts to take the exclusive lease on a segment for workerID.
// Contention is not an error: when another owner holds the lease the
// returned claim has Acquired=false and its Extend/Release are no-ops,
// so callers use a single code path regardless of outcome.
func (c *Coordinator) Claim(ctx context.Context, id segment.Identity, workerID string) (*Claim, error) {
	logger := logctx.LoggerFromContext(ctx)
	lockKey := c.keys.Lock(id)

	claim := &Claim{
		SegmentKey: id.Key(),
		OwnerID:    workerID,
		store:      c.store,
		lockKey:    lockKey,
		lease:      c.leaseDuration,
	}

	acquired, err := c.store.AcquireLock(ctx, lockKey, workerID, c.leaseDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire segment lease: %w", err)
	}

	if !acquired {
		logger.Debug("segment already claimed", "segment", claim.SegmentKey, "worker_id", workerID)

		return claim, nil
	}

	claim.Acquired = true
	claim.ExpiresAt = time.Now().Add(c.leaseDuration)

	// Status outlives the lock so late queries see "was processing"
	// rather than a gap between lease expiry and completion.
	if err := c.store.SetStatus(ctx, c.keys.Status(id), segment.StatusProcessing, 2*c.leaseDuration); err != nil {
		// Don't leave a lease behind that nobody knows about.
		if _, releaseErr := c.store.ReleaseLock(ctx, lockKey, workerID); releaseErr != nil {
			logger.Error("failed to roll back segment lease", "segment", claim.SegmentKey, "err", releaseErr)
		}

		return nil, fmt.Errorf("failed to record processing status: %w", err)
	}

	logger.Debug("segment claimed", "segment", claim.SegmentKey, "worker_id", workerID, "expires_at", claim.ExpiresAt)

	return claim, nil
}

// ExtendClaim renews workerID's lease on a segment without requiring
// the original Claim value, for callers that hold their claim across
// process boundaries. The owner check is the same server-side one.
func (c *Coordinator) ExtendClaim(ctx context.Context, id segment.Identity, workerID string) (bool, error) {
	return c.store.ExtendLock(ctx, c.keys.Lock(id), workerID, c.leaseDuration)
}

// ReleaseClaim releases workerID's lease on a segment if it still owns
// it. A mismatched or absent lease is a silent no-op.
func (c *Coordinator) ReleaseClaim(ctx context.Context, id segment.Identity, workerID string) error {
	_, err := c.store.ReleaseLock(ctx, c.keys.Lock(id), workerID)

	return err
}

// IsSegmentCompleted reports whether the segment has ever been finished,
// independent of any current lease.
func (c *Coordinator) IsSegmentCompleted(ctx context.Context, id segment.Identity) (bool, error) {
	return c.store.IsCompleted(ctx, c.keys.Completion(id))
}

// MarkSegmentCompleted durably records that a segment is finished. It
// deliberately does not require holding the lease: a worker that raced
// past its own lease expiry while finishing work may still report
// completion, since completion is idempotent and monotonic.
func (c *Coordinator) MarkSegmentCompleted(ctx context.Context, id segment.Identity) error {
	if err := c.store.MarkCompleted(ctx, c.keys.Completion(id), c.completionTTL); err != nil {
		return fmt.Errorf("failed to mark segment completed: %w", err)
	}

	if err := c.store.SetStatus(ctx, c.keys.Status(id), segment.StatusCompleted, c.completionTTL); err != nil {
		return fmt.Errorf("failed to record completed status: %w", err)
	}

	return nil
}

// GetSegmentStatus returns the advisory status record, or the empty
// status when none exists.
func (c *Coordinator) GetSegmentStatus(ctx context.Context, id segment.Identity) (segment.Status, error) {
	return c.store.GetStatus(ctx, c.keys.Status(id))
}

// PublishSegmentComplete notifies current subscribers that the segment
// finished. Fire-and-forget: nothing is retried and absent subscribers
// never learn about it.
func (c *Coordinator) PublishSegmentComplete(ctx context.Context, id segment.Identity) error {
	return c.store.Publish(ctx, c.keys.CompletionChannel(id), segment.CompletionMarker)
}

// SubscribeToSegmentComplete invokes callback once per completion
// message published for the segment while subscribed. The returned
// cancel function is single-shot and never fails.
//
// A publish that happens before the subscription is active is lost;
// callers that cannot tolerate that should use WaitForSegment, which
// re-checks the completion record after subscribing.
func (c *Coordinator) SubscribeToSegmentComplete(ctx context.Context, id segment.Identity, callback func()) (func(), error) {
	return c.hub.Subscribe(ctx, c.keys.CompletionChannel(id), func(payload string) {
		if payload == segment.CompletionMarker {
			callback()
		}
	})
}

// WaitForSegment blocks until the segment is completed or ctx is done.
// It subscribes first and checks the completion record second, closing
// the window where a completion published between check and subscribe
// would be missed.
func (c *Coordinator) WaitForSegment(ctx context.Context, id segment.Identity) error {
	done := make(chan struct{}, 1)

	cancel, err := c.SubscribeToSegmentComplete(ctx, id, func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}

	defer cancel()

	completed, err := c.IsSegmentCompleted(ctx, id)
	if err != nil {
		return err
	}

	if completed {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disposes the notification hub. The coordinator must not be used
// afterwards.
func (c *Coordinator) Close(ctx context.Context) error {
	return c.hub.Close(ctx)
}
