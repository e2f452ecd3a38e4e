package redis

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/italolelis/segment_coordinator/internal/segment"
	"github.com/redis/go-redis/v9"
)

// extendScript renews a lease only when the stored owner matches. The
// check and the PEXPIRE run as one server-side script, so a worker
// whose lease expired and was reclaimed can never refresh the new
// owner's lease.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes a lease only when the stored owner matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseStore implements coordination.LeaseStore on Redis. The lease
// record is the lock key holding the owner id with a PX expiry; its
// existence is the sole source of truth for "currently claimed".
type LeaseStore struct {
	client redis.UniversalClient
}

func NewLeaseStore(client redis.UniversalClient) *LeaseStore {
	return &LeaseStore{client: client}
}

// AcquireLock creates the lease with SET NX PX. Two concurrent calls
// for the same key resolve to exactly one winner inside Redis.
func (s *LeaseStore) AcquireLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, key, ownerID, ttl).Result()
	if err != nil {
		return false, &coordination.StoreError{Operation: "acquire_lock", Key: key, Err: err}
	}

	return acquired, nil
}

// ExtendLock resets the lease TTL if ownerID still owns it.
func (s *LeaseStore) ExtendLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	renewed, err := extendScript.Run(ctx, s.client, []string{key}, ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, &coordination.StoreError{Operation: "extend_lock", Key: key, Err: err}
	}

	return renewed == 1, nil
}

// ReleaseLock deletes the lease if ownerID still owns it.
func (s *LeaseStore) ReleaseLock(ctx context.Context, key, ownerID string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, s.client, []string{key}, ownerID).Int64()
	if err != nil {
		return false, &coordination.StoreError{Operation: "release_lock", Key: key, Err: err}
	}

	return deleted == 1, nil
}

// GetLockOwner returns the owner holding the lease, or the empty string
// when the lease is absent.
func (s *LeaseStore) GetLockOwner(ctx context.Context, key string) (string, error) {
	owner, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}

	if err != nil {
		return "", &coordination.StoreError{Operation: "get_lock_owner", Key: key, Err: err}
	}

	return owner, nil
}

func (s *LeaseStore) SetStatus(ctx context.Context, key string, status segment.Status, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, string(status), ttl).Err(); err != nil {
		return &coordination.StoreError{Operation: "set_status", Key: key, Err: err}
	}

	return nil
}

func (s *LeaseStore) GetStatus(ctx context.Context, key string) (segment.Status, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}

	if err != nil {
		return "", &coordination.StoreError{Operation: "get_status", Key: key, Err: err}
	}

	return segment.Status(value), nil
}

func (s *LeaseStore) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, segment.CompletionMarker, ttl).Err(); err != nil {
		return &coordination.StoreError{Operation: "mark_completed", Key: key, Err: err}
	}

	return nil
}

func (s *LeaseStore) IsCompleted(ctx context.Context, key string) (bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, &coordination.StoreError{Operation: "is_completed", Key: key, Err: err}
	}

	return value == segment.CompletionMarker, nil
}

func (s *LeaseStore) Publish(ctx context.Context, channel, payload string) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return &coordination.StoreError{Operation: "publish", Key: channel, Err: err}
	}

	return nil
}

// CountActiveLeases counts live lease records matching pattern with a
// cursor scan, for observability only.
func (s *LeaseStore) CountActiveLeases(ctx context.Context, pattern string) (int64, error) {
	var count int64

	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, &coordination.StoreError{Operation: "count_active_leases", Key: pattern, Err: err}
		}

		count += int64(len(keys))

		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
