package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	statsVersionKey = "fees:stats:version"
	statsKeyPrefix  = "fees:stats"
)

// RedisStatsCache caches ledger statistics under a versioned key. Bumping the
// version orphans the previous entry, which then expires by TTL.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedisStatsCache instantiates the cache helper.
func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStatsCache{client: client, ttl: ttl}
}

func (c *RedisStatsCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, statsVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Fetch returns cached statistics or loads, stores and returns them.
// Concurrent misses on the same version share one loader call.
func (c *RedisStatsCache) Fetch(ctx context.Context, loader func(context.Context) (Statistics, error)) (Statistics, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("%s:%d", statsKeyPrefix, ver)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var stats Statistics
		if jerr := json.Unmarshal(raw, &stats); jerr == nil {
			return stats, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		stats, err := loader(ctx)
		if err != nil {
			return Statistics{}, err
		}
		if payload, err := json.Marshal(stats); err == nil {
			_ = c.client.Set(ctx, key, payload, c.ttl).Err()
		}
		return stats, nil
	})
	if err != nil {
		return Statistics{}, err
	}
	return v.(Statistics), nil
}

// Invalidate bumps the cache version.
func (c *RedisStatsCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, statsVersionKey).Err()
}
