package scripts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/langbridge/bridge-engine/internal/logging"
)

// Cache is an optional read-through cache of whole scripts, keyed by
// name, in front of Repository.Load, backed by Redis. It never
// substitutes for signature verification: every value served from the
// cache is the same signed SavedScript that would have come from the
// index file, and Load re-checks that entry's HMAC signature before
// returning it. The cache exists purely to spare repeated full-script
// reads under load; it is not a second source of truth.
type Cache struct {
	repo *Repository
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCache wraps repo with a Redis-backed read-through cache at addr.
func NewCache(repo *Repository, addr string, ttl time.Duration) *Cache {
	return &Cache{
		repo: repo,
		rdb:  redis.NewClient(&redis.Options{Addr: addr}),
		ttl:  ttl,
	}
}

func cacheKey(name string) string { return "bridge:script:" + sanitize(name) }

// Load checks Redis first; on a miss (or any Redis error, since Redis
// is an accelerator and never a hard dependency) it falls through to
// the underlying Repository and populates the cache on success.
func (c *Cache) Load(ctx context.Context, name string) (*SavedScript, error) {
	if raw, err := c.rdb.Get(ctx, cacheKey(name)).Bytes(); err == nil {
		var s SavedScript
		if jsonErr := json.Unmarshal(raw, &s); jsonErr == nil {
			if verify(c.repo.signingSecret, s.Code, s.Signature) {
				return &s, nil
			}
			logging.Op().Warn("script cache: cached entry failed signature check, evicting", "name", name)
			c.rdb.Del(ctx, cacheKey(name))
		}
	}

	s, err := c.repo.Load(name)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(s); jsonErr == nil {
		if err := c.rdb.Set(ctx, cacheKey(name), raw, c.ttl).Err(); err != nil {
			logging.Op().Debug("script cache: set failed, continuing without caching", "name", name, "error", err)
		}
	}
	return s, nil
}

// Invalidate evicts name from the cache. Save and Delete on the
// underlying Repository should call this so a subsequent Load doesn't
// serve a stale entry for the remainder of its TTL.
func (c *Cache) Invalidate(ctx context.Context, name string) {
	c.rdb.Del(ctx, cacheKey(name))
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }
