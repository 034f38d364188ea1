package utils

import (
	"Dyvine/model"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestUserProfileCacheRoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	_, ok := GetUserProfileFromCache(ctx, cache, "u1")
	assert.False(t, ok)

	require.NoError(t, SetUserProfileToCache(ctx, cache, &model.UserProfile{UserID: "u1", Nickname: "ann", PostCount: 3}, time.Minute))
	assert.True(t, mr.Exists("dyvine:user:profile:u1"))

	got, ok := GetUserProfileFromCache(ctx, cache, "u1")
	require.True(t, ok)
	assert.Equal(t, "ann", got.Nickname)
	assert.Equal(t, int64(3), got.PostCount)

	mr.FastForward(2 * time.Minute)
	_, ok = GetUserProfileFromCache(ctx, cache, "u1")
	assert.False(t, ok)
}

func TestNilCacheAlwaysMisses(t *testing.T) {
	_, ok := GetUserProfileFromCache(context.Background(), nil, "u1")
	assert.False(t, ok)
	assert.NoError(t, SetUserProfileToCache(context.Background(), nil, &model.UserProfile{UserID: "u1"}, time.Minute))
}

func TestRedisCacheMissAndDelete(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	var v string
	assert.ErrorIs(t, cache.Get(ctx, "k", &v), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "k", "v", 0))
	ok, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, "k"))
	ok, err = cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildCacheKey(t *testing.T) {
	assert.Equal(t, "a:1:b", BuildCacheKey("a", 1, "b"))
}
