// Package fleetcache caches the fleet migration sweep in Redis so repeated
// dashboard polls do not hammer the platform database. Cache failures are
// treated as misses; the sweep always has the store to fall back on.
package fleetcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
)

const (
	cacheKey   = "orbiter:fleet:migration-status"
	defaultTTL = 30 * time.Second
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ service.FleetCache = (*Cache)(nil)

func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if client == nil {
		panic("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) Get(ctx context.Context) ([]service.FleetEntry, bool) {
	payload, err := c.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("fleet cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var entries []service.FleetEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		c.logger.Warn("fleet cache payload corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return entries, true
}

func (c *Cache) Set(ctx context.Context, entries []service.FleetEntry) {
	payload, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warn("fleet cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("fleet cache write failed", zap.Error(err))
	}
}
