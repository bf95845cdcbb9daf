//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	testtool "video_ingest_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAssetLock(t *testing.T) {
	ctx := context.Background()
	c, addr, err := testtool.StartRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	client := redis.NewClient(&redis.Options{Addr: addr})
	lock := NewRedisAssetLock(client, "test:lock:")

	unlock, ok, err := lock.TryLock(ctx, "a1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// 重複投遞拿不到鎖
	_, ok, err = lock.TryLock(ctx, "a1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, unlock(ctx))

	unlock2, ok, err := lock.TryLock(ctx, "a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// 舊的 unlock 不能刪掉別人的鎖
	require.NoError(t, unlock(ctx))
	_, ok, err = lock.TryLock(ctx, "a1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, unlock2(ctx))
}
