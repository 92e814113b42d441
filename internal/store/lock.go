package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
)

// releaseScript deletes the lock key only when it still holds our token, so
// a lock that expired and was re-acquired by another request is never
// released by the first holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// AppLock serializes mutating operations per application via Redis SETNX.
type AppLock struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewAppLock(client *redis.Client, ttl time.Duration, log logger.Logger) *AppLock {
	return &AppLock{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "app_lock"}),
	}
}

func lockKey(appID string) string {
	return "lock:application:" + appID
}

// Acquire takes the per-application lock and returns a release func. When
// another request already holds the lock, the caller gets a precondition
// error and must not proceed.
func (l *AppLock) Acquire(ctx context.Context, appID string) (release func(), err error) {
	token := uuid.NewString()
	key := lockKey(appID)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to acquire lock for %s: %w", appID, err))
	}
	if !ok {
		return nil, brokererrors.NewPreconditionFailed("Application is being processed, try again later")
	}

	return func() {
		// Release runs on its own context so a cancelled request still
		// frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("lock release failed, waiting for TTL expiry", map[string]interface{}{
				"app_id": appID,
				"error":  err.Error(),
			})
		}
	}, nil
}
