package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/pkg/platform/sentinel"
)

// Redis key prefix for cached permission decisions.
const decisionKeyPrefix = "wp:d:"

// RedisDecisionCache shares permission decisions across instances. Only the
// derived yes/no decision is stored, never the permission set itself.
type RedisDecisionCache struct {
	client *redis.Client
}

// NewRedisDecisionCache constructs a Redis-backed decision cache.
func NewRedisDecisionCache(client *redis.Client) *RedisDecisionCache {
	return &RedisDecisionCache{client: client}
}

func (c *RedisDecisionCache) Get(ctx context.Context, key string) (bool, error) {
	value, err := c.client.Get(ctx, decisionKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, sentinel.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("redis get decision: %w", err)
	}
	return value == "1", nil
}

func (c *RedisDecisionCache) Set(ctx context.Context, key string, allowed bool, ttl time.Duration) error {
	value := "0"
	if allowed {
		value = "1"
	}
	if err := c.client.Set(ctx, decisionKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set decision: %w", err)
	}
	return nil
}
