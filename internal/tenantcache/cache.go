// Package tenantcache provides a per-tenant Redis-backed result cache whose
// entries are invalidated by bumping a monotonic revision counter rather
// than by deleting keys.
package tenantcache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Config configures the Redis connection and cache namespacing.
type Config struct {
	Addr                    string
	Password                string
	DB                      int
	TLSInsecureSkipVerify   bool
	Namespace               string // e.g. "spacesai"
	SchemaVersion           int    // bump to invalidate every key at once on a format change
	DefaultTTL              time.Duration
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
}

// Cache is a namespaced, revision-aware result cache over Redis.
type Cache struct {
	client  redis.UniversalClient
	ns      string
	ttl     time.Duration
	breaker *breaker
}

// New constructs a Cache. It pings Redis once; a failed ping still returns a
// usable Cache (requests will simply miss through the breaker) so retrieval
// never hard-fails on cache unavailability.
func New(cfg Config) *Cache {
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ft := cfg.BreakerFailureThreshold
	if ft <= 0 {
		ft = 5
	}
	cd := cfg.BreakerCooldown
	if cd <= 0 {
		cd = 30 * time.Second
	}
	c := &Cache{
		client:  client,
		ns:      fmt.Sprintf("%s:v%d", cfg.Namespace, cfg.SchemaVersion),
		ttl:     ttl,
		breaker: newBreaker(ft, cd),
	}
	pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Msg("tenantcache_initial_ping_failed")
		c.breaker.recordFailure(err)
	} else {
		c.breaker.recordSuccess()
	}
	return c
}

func (c *Cache) revKey(kind, userID, spaceID string) string {
	if spaceID != "" {
		return fmt.Sprintf("%s:rev:%s:u%s:s%s", c.ns, kind, userID, spaceID)
	}
	return fmt.Sprintf("%s:rev:%s:u%s", c.ns, kind, userID)
}

func (c *Cache) entryKey(scope, fingerprint string) string {
	return fmt.Sprintf("%s:e:%s:%s", c.ns, scope, fingerprint)
}

// BumpRevision increments the revision counter for (kind, userID, spaceID),
// invalidating every previously cached entry scoped under it without a
// delete pass.
func (c *Cache) BumpRevision(ctx context.Context, kind, userID, spaceID string) (int64, error) {
	if !c.breaker.allow() {
		return 0, errUnavailable
	}
	n, err := c.client.Incr(ctx, c.revKey(kind, userID, spaceID)).Result()
	if err != nil {
		c.breaker.recordFailure(err)
		return 0, err
	}
	c.breaker.recordSuccess()
	return n, nil
}

// GetRevision returns the current revision, 0 if unset.
func (c *Cache) GetRevision(ctx context.Context, kind, userID, spaceID string) (int64, error) {
	if !c.breaker.allow() {
		return 0, errUnavailable
	}
	n, err := c.client.Get(ctx, c.revKey(kind, userID, spaceID)).Int64()
	if err == redis.Nil {
		c.breaker.recordSuccess()
		return 0, nil
	}
	if err != nil {
		c.breaker.recordFailure(err)
		return 0, err
	}
	c.breaker.recordSuccess()
	return n, nil
}

// Scope builds the cache-key scope string: tenant + revision, so a key
// naturally stops matching once the revision bumps.
func Scope(userID, spaceID string, revision int64) string {
	if spaceID != "" {
		return fmt.Sprintf("u%s:s%s:r%d", userID, spaceID, revision)
	}
	return fmt.Sprintf("u%s:r%d", userID, revision)
}

// Get fetches and unmarshals a cached entry. ok is false on miss, breaker
// trip, or unmarshal failure (never an error the caller must handle).
func (c *Cache) Get(ctx context.Context, scope, fingerprint string, out any) (ok bool) {
	if !c.breaker.allow() {
		return false
	}
	raw, err := c.client.Get(ctx, c.entryKey(scope, fingerprint)).Bytes()
	if err == redis.Nil {
		c.breaker.recordSuccess()
		c.breaker.recordMiss()
		return false
	}
	if err != nil {
		c.breaker.recordFailure(err)
		return false
	}
	c.breaker.recordSuccess()
	if jsonErr := json.Unmarshal(raw, out); jsonErr != nil {
		log.Warn().Err(jsonErr).Msg("tenantcache_unmarshal_failed")
		c.breaker.recordMiss()
		return false
	}
	c.breaker.recordHit()
	return true
}

// Set marshals and stores a cache entry under the default TTL.
func (c *Cache) Set(ctx context.Context, scope, fingerprint string, val any) {
	if !c.breaker.allow() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		log.Warn().Err(err).Msg("tenantcache_marshal_failed")
		return
	}
	if err := c.client.Set(ctx, c.entryKey(scope, fingerprint), data, c.ttl).Err(); err != nil {
		c.breaker.recordFailure(err)
		log.Warn().Err(err).Msg("tenantcache_set_failed")
		return
	}
	c.breaker.recordSuccess()
	c.breaker.recordSet()
}

// Status reports the breaker's current health for diagnostics endpoints.
func (c *Cache) Status() Status { return c.breaker.status() }

// Close releases the underlying Redis connection.
func (c *Cache) Close() error { return c.client.Close() }
