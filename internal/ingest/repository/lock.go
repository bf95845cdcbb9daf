package repository

import (
	"context"
	"fmt"
	"time"

	"video_ingest_service/internal/ingest/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// AssetLock per-asset mutual exclusion across ingest replicas
type AssetLock interface {
	// TryLock ok == false when another holder owns the lock
	TryLock(ctx context.Context, assetID string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// 只刪除自己持有的鎖
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisAssetLock struct {
	client redis.Cmdable
	prefix string
}

// NewRedisAssetLock lock keys are <prefix><assetID>
func NewRedisAssetLock(client redis.Cmdable, prefix string) AssetLock {
	if prefix == "" {
		prefix = "ingest:lock:"
	}
	return &redisAssetLock{client: client, prefix: prefix}
}

func (l *redisAssetLock) TryLock(ctx context.Context, assetID string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := l.prefix + assetID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: lock %s: %v", domain.ErrTransientInfra, assetID, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return unlock, true, nil
}

type noopAssetLock struct{}

// NewNoopAssetLock always acquired, for single replica setups
func NewNoopAssetLock() AssetLock {
	return noopAssetLock{}
}

func (noopAssetLock) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
