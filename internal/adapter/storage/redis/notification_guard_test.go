package redis_test

import (
	"context"
	"testing"
	"time"

	"invoice-financing/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGuard(t *testing.T) (*miniredis.Miniredis, *redis.NotificationGuard) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewNotificationGuard(client)
}

func TestNotificationGuard_Acquire(t *testing.T) {
	mr, guard := setupGuard(t)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second delivery must not claim")

	ok, err = guard.Acquire(ctx, "evt_2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	val, err := mr.Get("notification:evt_1")
	require.NoError(t, err)
	assert.Equal(t, "processing", val)
	assert.Equal(t, time.Minute, mr.TTL("notification:evt_1"))
}

func TestNotificationGuard_ClaimExpires(t *testing.T) {
	mr, guard := setupGuard(t)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "evt_1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = guard.Acquire(ctx, "evt_1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotificationGuard_MarkDone(t *testing.T) {
	mr, guard := setupGuard(t)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.MarkDone(ctx, "evt_1", 24*time.Hour))

	val, err := mr.Get("notification:evt_1")
	require.NoError(t, err)
	assert.Equal(t, "done", val)
	assert.Equal(t, 24*time.Hour, mr.TTL("notification:evt_1"))

	// A finished notification is not released by a stale caller.
	require.NoError(t, guard.Release(ctx, "evt_1"))
	assert.True(t, mr.Exists("notification:evt_1"))

	ok, err = guard.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotificationGuard_Release(t *testing.T) {
	mr, guard := setupGuard(t)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	assert.False(t, mr.Exists("notification:evt_1"))

	ok, err = guard.Acquire(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released claim can be taken by a retry")

	require.NoError(t, guard.Release(ctx, "never-claimed"))
}

func TestNotificationGuard_RedisDown(t *testing.T) {
	mr, guard := setupGuard(t)
	mr.Close()

	_, err := guard.Acquire(context.Background(), "evt_1", time.Minute)
	assert.Error(t, err)
}
