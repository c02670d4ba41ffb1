package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProvider adapts a redis client to the cache.Store contract. TTLs are
// enforced server-side by Redis key expiry.
type RedisProvider struct {
	RedisClient *redis.Client
}

func NewRedisProvider(redisClient *redis.Client) (*RedisProvider, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("invalid redis client: nil pointer provided")
	}
	return &RedisProvider{RedisClient: redisClient}, nil
}

func (p *RedisProvider) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := p.RedisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (p *RedisProvider) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := p.RedisClient.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (p *RedisProvider) Delete(ctx context.Context, key string) error {
	if err := p.RedisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
