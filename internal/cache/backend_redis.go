package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/pkg/platform/sentinel"
)

const (
	// Redis key prefixes for cached values and tag membership sets.
	valueKeyPrefix = "wc:k:"
	tagKeyPrefix   = "wc:t:"
)

// RedisBackend is the production cache backend for distributed deployments.
// Values live under wc:k:<key> with a TTL; each tag keeps a wc:t:<tag> set of
// member keys so invalidation never has to enumerate the keyspace.
//
// Tag sets carry a TTL slightly above the value TTL so orphaned members age
// out on their own; invalidation propagation is therefore bounded by one
// value TTL even if an invalidation is lost.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend constructs a Redis-backed cache backend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, valueKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, tags []Tag, ttl time.Duration) error {
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, valueKeyPrefix+key, value, ttl)
	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag.String()
		pipe.SAdd(ctx, tagKey, key)
		pipe.Expire(ctx, tagKey, ttl+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) InvalidateTags(ctx context.Context, tags []Tag) error {
	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag.String()

		members, err := b.client.SMembers(ctx, tagKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis smembers %s: %w", tagKey, err)
		}

		pipe := b.client.TxPipeline()
		for _, member := range members {
			pipe.Del(ctx, valueKeyPrefix+member)
		}
		pipe.Del(ctx, tagKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis invalidate %s: %w", tagKey, err)
		}
	}
	return nil
}
