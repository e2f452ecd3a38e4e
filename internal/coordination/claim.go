package coordination

import (
	"context"
	"time"
)

// Claim is the result of a claim attempt and the capability to manage
// the lease it may hold. Only the worker that acquired the lease can
// extend or release it; the owner check happens server-side in the
// store, the fields here are just the capability's coordinates.
type Claim struct {
	SegmentKey string
	OwnerID    string
	Acquired   bool
	// ExpiresAt is meaningful only when Acquired is true.
	ExpiresAt time.Time

	store   LeaseStore
	lockKey string
	lease   time.Duration
}

// Extend renews the lease for the full lease duration. It returns false
// when this claim never acquired the lease, when the lease already
// expired, or when another worker holds it now.
func (c *Claim) Extend(ctx context.Context) (bool, error) {
	if !c.Acquired {
		return false, nil
	}

	ok, err := c.store.ExtendLock(ctx, c.lockKey, c.OwnerID, c.lease)
	if err != nil {
		return false, err
	}

	if ok {
		c.ExpiresAt = time.Now().Add(c.lease)
	}

	return ok, nil
}

// Release deletes the lease if this claim still owns it. Releasing an
// unacquired, expired, or reclaimed lease is a no-op. Status and
// completion records are untouched; they live on their own TTLs.
func (c *Claim) Release(ctx context.Context) error {
	if !c.Acquired {
		return nil
	}

	_, err := c.store.ReleaseLock(ctx, c.lockKey, c.OwnerID)

	return err
}
