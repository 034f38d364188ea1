package repo

import (
	"Dyvine/internal/apperr"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLockIsExclusive(t *testing.T) {
	_, rdb := newMiniRedis(t)
	ctx := context.Background()

	first := NewRedisLock(rdb, "lock:a", time.Minute)
	require.NoError(t, first.Lock(ctx))
	second := NewRedisLock(rdb, "lock:a", time.Minute)
	assert.ErrorIs(t, second.Lock(ctx), errLockBusy)

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx))
}

func TestRedisUnlockKeepsForeignToken(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(rdb, "lock:b", time.Minute)
	require.NoError(t, lock.Lock(ctx))
	mr.Set("lock:b", "someone-else")
	require.NoError(t, lock.Unlock(ctx))

	v, err := mr.Get("lock:b")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisLockerConflict(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	locker := NewRedisLocker(rdb, "dyvine:")
	ctx := context.Background()

	unlock, err := locker.TryLock(ctx, "livestream:u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("dyvine:livestream:u1"))

	_, err = locker.TryLock(ctx, "livestream:u1", time.Minute)
	assert.True(t, apperr.IsCode(err, apperr.Conflict))

	require.NoError(t, unlock(ctx))
	_, err = locker.TryLock(ctx, "livestream:u1", time.Minute)
	assert.NoError(t, err)
}

func TestRedisLockerTTLExpires(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	locker := NewRedisLocker(rdb, "")
	ctx := context.Background()

	_, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = locker.TryLock(ctx, "k", time.Second)
	assert.NoError(t, err)
}
