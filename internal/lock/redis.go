package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker with SET NX on a shared Redis, so runs are
// exclusive across processes.
type RedisLocker struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

// NewRedisLocker creates a Locker over rdb. Keys are prefixed with keyPrefix.
func NewRedisLocker(rdb redis.UniversalClient, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix}
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("NewRedisClient: ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("lock", lockKey).Msg("Acquired lock")
	return &redisLock{rdb: l.rdb, key: lockKey, value: lockValue}, nil
}

type redisLock struct {
	rdb   redis.UniversalClient
	key   string
	value string
}

func (lk *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.value).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("lock", lk.key).Msg("Released lock")
	return nil
}
