package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/yourusername/secrets-board/internal/users"
)

// Manager は補完ジョブの投入とワーカーの管理を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  ProfileStore
	logger zerolog.Logger
}

// NewManager は Redis URL から Manager を初期化します。
func NewManager(redisURL string, store ProfileStore, logger zerolog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
	mux.HandleFunc(TaskTypeBackfill, manager.handleBackfillTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("asynq server stopped with error")
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	m.server.Shutdown()
	return m.client.Close()
}

// Backfill は補完タスクをキューに投入します。
func (m *Manager) Backfill(ctx context.Context, userID string, provider users.Provider, email string) error {
	payload := BackfillPayload{
		UserID:   userID,
		Provider: provider,
		Email:    email,
	}
	if payload.UserID == "" {
		return fmt.Errorf("payload.UserID is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeBackfill, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		return fmt.Errorf("failed to enqueue backfill for %s: %w", userID, err)
	}
	m.logger.Debug().Str("task.id", info.ID).Str("user.id", userID).Msg("backfill enqueued")
	return nil
}
