package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisIntentCache struct {
	client *redis.Client
}

func NewRedisIntentCache(addr string, password string, db int) *RedisIntentCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisIntentCache{client: client}
}

func (c *RedisIntentCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisIntentCache) Close() error {
	return c.client.Close()
}

func (c *RedisIntentCache) Get(ctx context.Context, intentID string) (string, bool, error) {
	val, err := c.client.Get(ctx, "intent:"+intentID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisIntentCache) Set(ctx context.Context, intentID string, saleID string, ttl time.Duration) error {
	if saleID == "" {
		return nil
	}
	return c.client.Set(ctx, "intent:"+intentID, saleID, ttl).Err()
}
