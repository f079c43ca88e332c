package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultCachePrefix = "promo:salesrule:"

// RedisQueryCache 是 ReadCache 的 Redis 实现，epoch 保存在单独的计数器里
type RedisQueryCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisQueryCache(client redis.UniversalClient, ttl time.Duration) *RedisQueryCache {
	return &RedisQueryCache{client: client, prefix: defaultCachePrefix, ttl: ttl}
}

func (c *RedisQueryCache) epochKey() string {
	return c.prefix + "epoch"
}

// Epoch 计数器不存在时为 0
func (c *RedisQueryCache) Epoch(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.epochKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read cache epoch")
	}
	return n, nil
}

func (c *RedisQueryCache) Bump(ctx context.Context) error {
	return errors.Wrap(c.client.Incr(ctx, c.epochKey()).Err(), "bump cache epoch")
}

func (c *RedisQueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read query cache")
	}
	return data, true, nil
}

// Set 旧 epoch 的键不会再被读取，靠 TTL 过期
func (c *RedisQueryCache) Set(ctx context.Context, key string, value []byte) error {
	return errors.Wrap(c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(), "write query cache")
}
