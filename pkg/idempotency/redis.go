package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "voyage:idempotency:"

// RedisStore backs the key store with Redis so deduplication holds across
// worker instances. Records use SET with expiry; Redis handles eviction.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStore{
		client: redis.NewClient(options),
		ttl:    ttl,
	}, nil
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	count, err := s.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to probe idempotency key: %w", err)
	}

	return count > 0, nil
}

func (s *RedisStore) Record(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, keyPrefix+key, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record idempotency key: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
