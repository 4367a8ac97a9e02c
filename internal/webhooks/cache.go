package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/internal/logger"
)

const cacheKeyPrefix = "hookshot:subs"

// Cache stores matching-subscription lookups in Redis. Entries are keyed by a
// per-tenant generation so a single INCR invalidates everything for that tenant.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a cache with the given entry TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func generationKey(tenantID string) string {
	return fmt.Sprintf("%s:gen:%s", cacheKeyPrefix, tenantID)
}

func entryKey(tenantID string, gen int64, event string) string {
	return fmt.Sprintf("%s:%s:%d:%s", cacheKeyPrefix, tenantID, gen, event)
}

func (c *Cache) generation(ctx context.Context, tenantID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached subscriptions for an event. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, tenantID, event string) (subs []*Subscription, ok bool, err error) {
	gen, err := c.generation(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, entryKey(tenantID, gen, event)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached subscriptions: %w", err)
	}
	return subs, true, nil
}

// Set stores subs under the tenant's current generation.
func (c *Cache) Set(ctx context.Context, tenantID, event string, subs []*Subscription) error {
	gen, err := c.generation(ctx, tenantID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to encode subscriptions: %w", err)
	}
	return c.client.Set(ctx, entryKey(tenantID, gen, event), raw, c.ttl).Err()
}

// InvalidateTenant bumps the tenant generation. Old entries expire by TTL.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID string) error {
	return c.client.Incr(ctx, generationKey(tenantID)).Err()
}

// Finder looks up the active subscriptions for an event.
type Finder interface {
	FindActiveByEvent(ctx context.Context, tenantID, event string) ([]*Subscription, error)
}

// CachedFinder reads through the cache. Cache failures fall back to the store.
type CachedFinder struct {
	store  Finder
	cache  *Cache
	logger *zap.SugaredLogger
}

// NewCachedFinder wraps store with cache.
func NewCachedFinder(store Finder, cache *Cache) *CachedFinder {
	return &CachedFinder{store: store, cache: cache, logger: logger.NewLogger("subscription-cache")}
}

// FindActiveByEvent implements Finder.
func (f *CachedFinder) FindActiveByEvent(ctx context.Context, tenantID, event string) ([]*Subscription, error) {
	subs, ok, err := f.cache.Get(ctx, tenantID, event)
	if err != nil {
		f.logger.Warnw("Subscription cache read failed", "tenant_id", tenantID, "event", event, "error", err)
	}
	if ok {
		return subs, nil
	}

	subs, err = f.store.FindActiveByEvent(ctx, tenantID, event)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Set(ctx, tenantID, event, subs); err != nil {
		f.logger.Warnw("Subscription cache write failed", "tenant_id", tenantID, "event", event, "error", err)
	}
	return subs, nil
}
