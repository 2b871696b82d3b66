package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/yourusername/secrets-board/internal/users"
)

func (m *Manager) handleBackfillTask(ctx context.Context, task *asynq.Task) error {
	var payload BackfillPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid backfill payload: %v: %w", err, asynq.SkipRetry)
	}

	if payload.UserID == "" {
		return fmt.Errorf("missing userId in payload: %w", asynq.SkipRetry)
	}

	err := m.store.Backfill(ctx, payload.UserID, payload.Provider, payload.Email)
	if errors.Is(err, users.ErrNotFound) {
		// 再試行しても解決しない
		return fmt.Errorf("user %s not found: %w", payload.UserID, asynq.SkipRetry)
	}
	return err
}

// Inline は Redis を使わずに補完をその場で実行します。
type Inline struct {
	store ProfileStore
}

// NewInline は Inline を作成します。
func NewInline(store ProfileStore) *Inline {
	return &Inline{store: store}
}

// Backfill は補完を同期的に実行します。
func (i *Inline) Backfill(ctx context.Context, userID string, provider users.Provider, email string) error {
	return i.store.Backfill(ctx, userID, provider, email)
}
