// Package cache provides a read-through, invalidate-on-write entity
// cache over an in-process ristretto substrate.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultTTL = time.Hour

	numCounters = 100_000
	maxCost     = 1 << 26
	bufferItems = 64
)

// Loader fetches an entity from the persistent store on a cache miss.
type Loader func(ctx context.Context) (any, error)

// EntityCache caches small persisted entities keyed by
// {entityType, entityId}. The cache is purely derived state: it may be
// discarded at any time and rebuilt from the persistent store.
type EntityCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// New returns an EntityCache with the given TTL. A non-positive TTL
// falls back to one hour.
func New(ttl time.Duration) (*EntityCache, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &EntityCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached value for {entityType, entityID}, or invokes
// loader against the persistent store on a miss and populates the
// cache. Substrate unavailability degrades to an unconditional miss.
func (c *EntityCache) Get(ctx context.Context, entityType, entityID string, loader Loader) (any, error) {
	if c == nil || c.cache == nil {
		return loader(ctx)
	}

	key := entityKey(entityType, entityID)
	if val, ok := c.cache.Get(key); ok {
		return val, nil
	}

	val, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if !c.cache.SetWithTTL(key, val, 1, c.ttl) {
		slog.Warn("entity cache rejected set", "entity_type", entityType, "entity_id", entityID)
		return val, nil
	}
	c.cache.Wait()
	return val, nil
}

// Invalidate removes the entity's cached keys. Once it returns, the
// next Get for that entity is a miss and reloads from the persistent
// store. Callers must invalidate after every durable write to the
// backing entity.
func (c *EntityCache) Invalidate(entityType, entityID string) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Del(entityKey(entityType, entityID))
	// Del goes through the same buffered pipeline as Set; draining it
	// makes the post-invalidation miss guarantee hold.
	c.cache.Wait()
}

// Close releases the substrate.
func (c *EntityCache) Close() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Close()
}

func entityKey(entityType, entityID string) string {
	return entityType + ":" + entityID
}
