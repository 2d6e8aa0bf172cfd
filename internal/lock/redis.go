package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

const (
	redisKeyPrefix = "ledger:lock:"
	retryBackoff   = 50 * time.Millisecond
)

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// Acquire waits up to the lock TTL for a competing holder to finish.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	retries := int(l.ttl / retryBackoff)
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(retryBackoff), retries),
	}

	held, err := l.client.Obtain(ctx, redisKeyPrefix+key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("Acquire: %s: %w", key, domain.ErrLockNotAcquired)
	}
	if err != nil {
		return nil, fmt.Errorf("Acquire: %s: %w", key, err)
	}

	return func() {
		// The caller's ctx may already be cancelled; release must still go out.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := held.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logging.FromContext(ctx).Warn("failed to release redis lock", "key", key, "error", err)
		}
	}, nil
}

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("NewRedisClient: ping %s: %w", addr, err)
	}
	return rdb, nil
}
