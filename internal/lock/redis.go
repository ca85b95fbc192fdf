// Package lock provides a Redis-backed per-user checkout lock.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shop-bot/internal/domain/order"
)

const keyPrefix = "checkout_lock:"

// releaseScript deletes the key only while it still holds our token. A
// plain GET/DEL pair leaves a window after TTL expiry where a stale
// releaser drops a newer holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

var _ order.Locker = (*RedisLocker)(nil)

// RedisLocker serializes checkouts per user with a SET NX key. The value is
// an owner token so a late release cannot drop a lock taken by a newer
// checkout after TTL expiry.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a RedisLocker with the given lock TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire takes the user's checkout lock. It returns order.ErrCheckoutBusy
// when the lock is already held.
func (l *RedisLocker) Acquire(ctx context.Context, userID int64) (func(), error) {
	key := fmt.Sprintf("%s%d", keyPrefix, userID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquire checkout lock")
	}
	if !ok {
		return nil, order.ErrCheckoutBusy
	}

	release := func() {
		if err := l.release(ctx, key, token); err != nil {
			zctx.From(ctx).Warn("release checkout lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, nil
}

// release runs the compare-and-delete script under our owner token.
func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
