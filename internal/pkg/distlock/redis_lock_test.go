package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLockMutualExclusion(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "dispatch:campaign:c1", time.Minute)
	second := NewRedisLock(client, "dispatch:campaign:c1", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, first.Release(ctx))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be free after release")
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	owner := NewRedisLock(client, "dispatch:campaign:c2", time.Minute)
	intruder := NewRedisLock(client, "dispatch:campaign:c2", time.Minute)

	ok, err := owner.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A foreign release must not free the owner's lock.
	require.NoError(t, intruder.Release(ctx))

	ok, err = intruder.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLockDifferentKeysIndependent(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "dispatch:campaign:a", time.Minute)
	b := NewRedisLock(client, "dispatch:campaign:b", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExtend(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "dispatch:campaign:c3", time.Minute)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NoError(t, lock.Extend(ctx, 2*time.Minute))
}
