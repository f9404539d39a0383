package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"games-catalog-service/internal/config"
	"games-catalog-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// TopSearchedCache caches the search-hit aggregation. Only the raw counts are
// cached; promotion pricing is always resolved live.
type TopSearchedCache interface {
	Get(ctx context.Context, size int) ([]domain.HitCount, error)
	Set(ctx context.Context, size int, counts []domain.HitCount, ttl time.Duration) error
	Close() error
}

type RedisTopCache struct {
	client redis.Cmdable
	prefix string
	close  func() error
}

// NewRedisTopCache connects to Redis and verifies the connection.
func NewRedisTopCache(cfg config.RedisConfig) (*RedisTopCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisTopCache{client: client, prefix: cfg.Prefix, close: client.Close}, nil
}

func (c *RedisTopCache) key(size int) string {
	return fmt.Sprintf("%s:top-searched:%d", c.prefix, size)
}

func (c *RedisTopCache) Get(ctx context.Context, size int) ([]domain.HitCount, error) {
	data, err := c.client.Get(ctx, c.key(size)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var counts []domain.HitCount
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return counts, nil
}

func (c *RedisTopCache) Set(ctx context.Context, size int, counts []domain.HitCount, ttl time.Duration) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, c.key(size), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisTopCache) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// Noop is used when no Redis address is configured; every lookup misses.
type Noop struct{}

func (Noop) Get(context.Context, int) ([]domain.HitCount, error) { return nil, ErrCacheMiss }

func (Noop) Set(context.Context, int, []domain.HitCount, time.Duration) error { return nil }

func (Noop) Close() error { return nil }

// New returns a Redis-backed cache, or Noop when cfg.Addr is empty.
func New(cfg config.RedisConfig) (TopSearchedCache, error) {
	if cfg.Addr == "" {
		return Noop{}, nil
	}
	return NewRedisTopCache(cfg)
}
