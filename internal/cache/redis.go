package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusmatch/engine/internal/config"
)

const (
	likeCountTTL = time.Hour
	// Swipe counters outlive their day so a late reader near midnight still hits.
	swipeCountTTL = 48 * time.Hour
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForLikeCount is the cached count of inbound positive reactions.
func (c *RedisCache) KeyForLikeCount(userID uint64) string {
	return fmt.Sprintf("likes:count:%d", userID)
}

// KeyForSwipeCount is the cached number of swipes userID made on day.
func (c *RedisCache) KeyForSwipeCount(userID uint64, day string) string {
	return fmt.Sprintf("swipes:%d:%s", userID, day)
}

// KeyForStreakWarning marks that a streak warning went out for day.
func (c *RedisCache) KeyForStreakWarning(userID uint64, day string) string {
	return fmt.Sprintf("streak:warned:%d:%s", userID, day)
}

// GetCount reads an integer counter. ok is false on a cache miss.
func (c *RedisCache) GetCount(ctx context.Context, key string) (n int64, ok bool, err error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		// corrupt value: treat as miss so the caller refills from the DB
		return 0, false, nil
	}
	return n, true, nil
}

// SetCount stores a counter with ttl.
func (c *RedisCache) SetCount(ctx context.Context, key string, n int64, ttl time.Duration) error {
	return c.Client.Set(ctx, key, n, ttl).Err()
}

// IncrIfPresent bumps a counter only when it is already cached, so a miss is
// never turned into a wrong partial count.
func (c *RedisCache) IncrIfPresent(ctx context.Context, key string, delta int64, ttl time.Duration) error {
	n, err := c.Client.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return err
	}
	pipe := c.Client.TxPipeline()
	pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// GetSwipeCount returns the cached swipe count for a user and day.
func (c *RedisCache) GetSwipeCount(ctx context.Context, userID uint64, day string) (int64, bool, error) {
	return c.GetCount(ctx, c.KeyForSwipeCount(userID, day))
}

func (c *RedisCache) SetSwipeCount(ctx context.Context, userID uint64, day string, n int64) error {
	return c.SetCount(ctx, c.KeyForSwipeCount(userID, day), n, swipeCountTTL)
}

func (c *RedisCache) IncrSwipeCount(ctx context.Context, userID uint64, day string) error {
	return c.IncrIfPresent(ctx, c.KeyForSwipeCount(userID, day), 1, swipeCountTTL)
}

// GetLikeCount returns the cached inbound-like count and refreshes its TTL.
func (c *RedisCache) GetLikeCount(ctx context.Context, userID uint64) (int64, bool, error) {
	key := c.KeyForLikeCount(userID)
	n, ok, err := c.GetCount(ctx, key)
	if ok {
		_ = c.Client.Expire(ctx, key, likeCountTTL).Err()
	}
	return n, ok, err
}

func (c *RedisCache) SetLikeCount(ctx context.Context, userID uint64, n int64) error {
	return c.SetCount(ctx, c.KeyForLikeCount(userID), n, likeCountTTL)
}

// InvalidateLikeCount drops the cached count; the next read recounts.
func (c *RedisCache) InvalidateLikeCount(ctx context.Context, userID uint64) error {
	return c.Del(ctx, c.KeyForLikeCount(userID))
}

// MarkOnce sets key if absent and reports whether this call set it.
func (c *RedisCache) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, key, 1, ttl).Result()
}
