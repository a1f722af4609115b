package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// idCache is the narrow caching boundary the service needs: cache a
// server by ID, and drop it whenever the underlying row changes.
type idCache interface {
	Get(ctx context.Context, id string) (*Server, bool)
	Set(ctx context.Context, s *Server)
	Invalidate(ctx context.Context, id string)
}

// redisIDCache caches Get(id) lookups in Redis to take read pressure off
// Postgres for hot servers (status polling, health checks).
type redisIDCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisIDCache builds a cache backed by an already-connected Redis
// client. A nil client disables caching: a no-op cache is returned.
func NewRedisIDCache(client redis.UniversalClient, ttl time.Duration) idCache {
	if client == nil {
		return noopCache{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisIDCache{client: client, ttl: ttl}
}

func (c *redisIDCache) key(id string) string {
	return "mcp:server:" + id
}

func (c *redisIDCache) Get(ctx context.Context, id string) (*Server, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// Cache errors are not fatal: fall through to the database.
			_ = fmt.Errorf("registry cache get: %w", err)
		}
		return nil, false
	}
	var s Server
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func (c *redisIDCache) Set(ctx context.Context, s *Server) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(s.ID), raw, c.ttl).Err()
}

func (c *redisIDCache) Invalidate(ctx context.Context, id string) {
	_ = c.client.Del(ctx, c.key(id)).Err()
}

// noopCache is used when no Redis client is configured.
type noopCache struct{}

func (noopCache) Get(context.Context, string) (*Server, bool) { return nil, false }
func (noopCache) Set(context.Context, *Server)                {}
func (noopCache) Invalidate(context.Context, string)          {}
