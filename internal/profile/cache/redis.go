// Package cache holds composite view caches for the profile service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"waterlily/internal/profile/models"
	"waterlily/pkg/platform/sentinel"
)

const (
	keyPrefix  = "waterlily:profile:"
	DefaultTTL = 5 * time.Minute
)

// RedisCache stores assembled views as JSON with a TTL. Writes invalidate the
// key, so the TTL only bounds staleness from writers that bypass the service.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func Key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (c *RedisCache) Get(ctx context.Context, userID int64) (*models.CompositeView, error) {
	data, err := c.client.Get(ctx, Key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cached profile: %w", err)
	}
	var view models.CompositeView
	if err := json.Unmarshal(data, &view); err != nil {
		// A value we cannot read is as good as a miss; the next Set replaces it.
		return nil, sentinel.ErrNotFound
	}
	return &view, nil
}

func (c *RedisCache) Set(ctx context.Context, userID int64, view *models.CompositeView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal cached profile: %w", err)
	}
	if err := c.client.Set(ctx, Key(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached profile: %w", err)
	}
	return nil
}
