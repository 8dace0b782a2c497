package billing

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PlanCache remembers resolved plan tiers per billing customer. Misses and
// cache errors are indistinguishable to callers.
type PlanCache interface {
	Get(ctx context.Context, customerID string) (PlanTier, bool)
	Set(ctx context.Context, customerID string, tier PlanTier)
}

// MemoryPlanCache is an in-process LRU plan cache with TTL
type MemoryPlanCache struct {
	cache *expirable.LRU[string, PlanTier]
}

// NewMemoryPlanCache creates an in-process plan cache
func NewMemoryPlanCache(size int, ttl time.Duration) *MemoryPlanCache {
	if size <= 0 {
		size = 4096
	}
	return &MemoryPlanCache{
		cache: expirable.NewLRU[string, PlanTier](size, nil, ttl),
	}
}

// Get returns a cached tier
func (c *MemoryPlanCache) Get(_ context.Context, customerID string) (PlanTier, bool) {
	return c.cache.Get(customerID)
}

// Set caches a tier
func (c *MemoryPlanCache) Set(_ context.Context, customerID string, tier PlanTier) {
	c.cache.Add(customerID, tier)
}

// RedisPlanCache shares resolved tiers between processes
type RedisPlanCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisPlanCache creates a Redis-backed plan cache from a redis:// URL
func NewRedisPlanCache(redisURL string, ttl time.Duration) (*RedisPlanCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisPlanCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
		prefix: "tenantd:plan:",
	}, nil
}

// Get returns a cached tier
func (c *RedisPlanCache) Get(ctx context.Context, customerID string) (PlanTier, bool) {
	val, err := c.client.Get(ctx, c.prefix+customerID).Result()
	if err != nil {
		return "", false
	}
	tier, err := ParsePlanTier(val)
	if err != nil {
		return "", false
	}
	return tier, true
}

// Set caches a tier
func (c *RedisPlanCache) Set(ctx context.Context, customerID string, tier PlanTier) {
	c.client.Set(ctx, c.prefix+customerID, string(tier), c.ttl)
}

// Close closes the Redis client
func (c *RedisPlanCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *RedisPlanCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
