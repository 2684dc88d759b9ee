package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

const keyPrefix = "sc"

// commander is the slice of the redis client the cache needs; tests
// substitute a fake.
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache stores computed result sets under (tenant, environment,
// normalized query) keys. The store is a performance optimization: any
// failure degrades to a forced miss, never to a request abort. Every
// round-trip is bounded well under the overall request budget.
type Cache struct {
	client    commander
	opTimeout time.Duration
}

func New(client *redis.Client, opTimeout time.Duration) *Cache {
	return newWithCommander(client, opTimeout)
}

func newWithCommander(client commander, opTimeout time.Duration) *Cache {
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &Cache{client: client, opTimeout: opTimeout}
}

// Key derives the composite cache key. Every component is hashed
// individually: tenant and environment arrive from client-controlled
// headers, so raw values could smuggle the key delimiter and alias
// another tenant's keyspace. The query is normalized first so phrasing
// variants collapse.
func Key(tenantID, environment, query string) string {
	return fmt.Sprintf("%s:%x:%x:%x",
		keyPrefix,
		sha256.Sum256([]byte(tenantID)),
		sha256.Sum256([]byte(environment)),
		sha256.Sum256([]byte(domain.NormalizeQuery(query))))
}

func tenantPattern(tenantID string) string {
	return fmt.Sprintf("%s:%x:*", keyPrefix, sha256.Sum256([]byte(tenantID)))
}

func (c *Cache) Lookup(ctx context.Context, tctx domain.TenantContext, query string) (*domain.CacheEntry, bool) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	key := Key(tctx.TenantID, tctx.Environment, query)
	raw, err := c.client.Get(opCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.warn("cache_lookup_failed", tctx, err)
		return nil, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.warn("cache_entry_corrupt", tctx, err)
		return nil, false
	}
	// Redis TTL is authoritative, but double-check so a clock-skewed or
	// persisted entry is never served past its window.
	if entry.Expired(time.Now().UTC()) {
		return nil, false
	}
	return &entry, true
}

func (c *Cache) Store(ctx context.Context, tctx domain.TenantContext, query string, entry domain.CacheEntry) {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.warn("cache_store_failed", tctx, err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	key := Key(tctx.TenantID, tctx.Environment, query)
	if err := c.client.Set(opCtx, key, raw, ttl).Err(); err != nil {
		c.warn("cache_store_failed", tctx, err)
	}
}

// InvalidateTenant purges every entry the tenant owns, across all
// environments. Privileged operation, allowed to surface errors.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, tenantPattern(tenantID), 100).Result()
		if err != nil {
			return fmt.Errorf("scan tenant cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete tenant cache keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *Cache) warn(action string, tctx domain.TenantContext, err error) {
	slog.Warn(action,
		"tenant_id", tctx.TenantID,
		"correlation_id", tctx.CorrelationID,
		"error", err,
	)
}
