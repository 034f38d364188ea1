package utils

import (
	"Dyvine/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

// Get reads a cached value into dest.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// Set writes a cached value.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, string(data), expiration).Err()
}

// Delete removes a cache entry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Exists checks whether a cache key exists.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// BuildCacheKey builds a cache key.
func BuildCacheKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key += fmt.Sprintf(":%v", param)
	}
	return key
}

const CacheKeyUserProfile = "dyvine:user:profile"

// GetUserProfileFromCache reads a cached profile. A nil cache always misses.
func GetUserProfileFromCache(ctx context.Context, cache Cache, userID string) (*model.UserProfile, bool) {
	if cache == nil {
		return nil, false
	}
	var result model.UserProfile
	if err := cache.Get(ctx, BuildCacheKey(CacheKeyUserProfile, userID), &result); err != nil {
		return nil, false
	}
	return &result, true
}

// SetUserProfileToCache writes a cached profile.
func SetUserProfileToCache(ctx context.Context, cache Cache, profile *model.UserProfile, expiration time.Duration) error {
	if cache == nil || profile == nil {
		return nil
	}
	return cache.Set(ctx, BuildCacheKey(CacheKeyUserProfile, profile.UserID), profile, expiration)
}
