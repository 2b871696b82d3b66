package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "login:attempts:"
	lockKeyPrefix    = "login:lock:"
)

// RedisAttempts は失敗回数を Redis に保存する AttemptTracker です。
// 複数インスタンスで同じ上限を共有できます。
type RedisAttempts struct {
	rdb *redis.Client
}

// NewRedisAttempts は RedisAttempts を作成します。
func NewRedisAttempts(rdb *redis.Client) *RedisAttempts {
	return &RedisAttempts{rdb: rdb}
}

func (r *RedisAttempts) Locked(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.PTTL(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisAttempts) RecordFailure(ctx context.Context, key string) (int, error) {
	attemptKey := attemptKeyPrefix + key

	// 最初の失敗で TTL つきのキーを作り、INCR はその TTL を引き継ぐ
	pipe := r.rdb.TxPipeline()
	pipe.SetNX(ctx, attemptKey, 0, loginWindow)
	incr := pipe.Incr(ctx, attemptKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	count := int(incr.Val())
	if count >= maxLoginAttempts {
		if err := r.rdb.Set(ctx, lockKeyPrefix+key, 1, lockDuration).Err(); err != nil {
			return 0, err
		}
		if err := r.rdb.Del(ctx, attemptKey).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return maxLoginAttempts - count, nil
}

func (r *RedisAttempts) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, attemptKeyPrefix+key, lockKeyPrefix+key).Err()
}
