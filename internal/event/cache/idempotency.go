// Package cache provides a Redis read-through cache for idempotency lookups.
//
// The cache is a fast path only: the authoritative idempotency mapping is the
// database unique constraint. A miss, a stale entry, or a Redis outage all
// degrade to the store lookup, never to incorrect behavior. Keys are
// namespaced per tenant, so a cache hit can never cross the tenant boundary;
// the cached event is still fetched through the tenant-scoped store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"audittrail/internal/tenancy"
	"audittrail/pkg/domain"
)

// IdempotencyCache maps (tenant, idempotency key) to a stored event ID.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotency creates a cache over the given Redis client.
func NewIdempotency(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{client: client, ttl: ttl}
}

func cacheKey(tc tenancy.Context, key string) string {
	return fmt.Sprintf("idem:%s:%s", tc.TenantID(), key)
}

// Get returns the cached event ID for the key, if present.
func (c *IdempotencyCache) Get(ctx context.Context, tc tenancy.Context, key string) (domain.EventID, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(tc, key)).Result()
	if err == redis.Nil {
		return domain.EventID{}, false, nil
	}
	if err != nil {
		return domain.EventID{}, false, fmt.Errorf("idempotency cache get: %w", err)
	}
	id, err := domain.ParseEventID(raw)
	if err != nil {
		// A corrupt entry is treated as a miss; the store remains authoritative.
		return domain.EventID{}, false, nil
	}
	return id, true, nil
}

// Put records the mapping. The permanent record is the database row; the TTL
// only bounds cache memory.
func (c *IdempotencyCache) Put(ctx context.Context, tc tenancy.Context, key string, id domain.EventID) error {
	if err := c.client.Set(ctx, cacheKey(tc, key), id.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency cache put: %w", err)
	}
	return nil
}
