package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseCacheNamespace = "graphd"

// LeaseCache is a Redis-backed fast path for lease-expiry detection,
// grounded on the teacher's redis_wisp_store.go TTL-set pattern: active
// leases live in a single ZSET scored by lease_until, and ExpiredSince
// answers "which leases expired" with one ZRANGEBYSCORE. It is never
// authoritative — Postgres lease_until is the source of truth, and the
// reclaim sweep scans the jobs table on every tick whether or not a
// cache is attached.
type LeaseCache struct {
	client    *redis.Client
	namespace string
}

// NewLeaseCache connects to Redis at redisURL ("redis://host:port/db").
func NewLeaseCache(redisURL string) (*LeaseCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &LeaseCache{client: client, namespace: defaultLeaseCacheNamespace}, nil
}

func (c *LeaseCache) Close() error { return c.client.Close() }

func (c *LeaseCache) leaseSetKey() string {
	return c.namespace + ":jobqueue:leases"
}

// TrackLease records/refreshes a job's lease expiry. Errors are discarded,
// neither logged nor returned — the cache is best-effort.
func (c *LeaseCache) TrackLease(ctx context.Context, jobID uuid.UUID, leaseUntil time.Time) {
	c.client.ZAdd(ctx, c.leaseSetKey(), redis.Z{
		Score:  float64(leaseUntil.Unix()),
		Member: jobID.String(),
	})
}

// Untrack removes a job from the lease set, on complete or fail.
func (c *LeaseCache) Untrack(ctx context.Context, jobID uuid.UUID) {
	c.client.ZRem(ctx, c.leaseSetKey(), jobID.String())
}

// ExpiredSince returns job ids whose tracked lease_until is at or before
// now, removing them from the set as it reads them so a crashed reclaimer
// doesn't process the same id twice from the cache (Postgres lease_until
// remains the authoritative check the reclaim sweep performs regardless).
func (c *LeaseCache) ExpiredSince(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	members, err := c.client.ZRangeByScore(ctx, c.leaseSetKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("lease cache: zrangebyscore: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := c.client.Pipeline()
	for _, m := range members {
		pipe.ZRem(ctx, c.leaseSetKey(), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("lease cache: zrem expired: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
