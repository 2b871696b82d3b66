package main

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/secrets-board/internal/auth"
	"github.com/yourusername/secrets-board/internal/config"
	"github.com/yourusername/secrets-board/internal/jobs"
	"github.com/yourusername/secrets-board/internal/users"
)

// setupBackfiller は QUEUE_REDIS_URL があれば Asynq ワーカーを、なければ同期処理を返します。
func setupBackfiller(cfg *config.Config, store *users.Store, logger zerolog.Logger) (auth.Backfiller, func(), error) {
	if cfg.QueueRedisURL == "" {
		return jobs.NewInline(store), func() {}, nil
	}

	manager, err := jobs.NewManager(cfg.QueueRedisURL, store, logger)
	if err != nil {
		return nil, nil, err
	}
	manager.StartWorkers()
	stop := func() {
		if err := manager.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("failed to stop job workers")
		}
	}
	return manager, stop, nil
}

// setupAttempts は REDIS_URL があれば Redis に、なければメモリにログイン試行を記録します。
func setupAttempts(cfg *config.Config) (auth.AttemptTracker, func(), error) {
	if cfg.RedisURL == "" {
		return auth.NewMemoryAttempts(), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	return auth.NewRedisAttempts(client), func() { _ = client.Close() }, nil
}
