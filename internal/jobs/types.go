// Package jobs はアカウント作成後のプロフィール補完を非同期ジョブとして実行します。
package jobs

import (
	"context"

	"github.com/yourusername/secrets-board/internal/users"
)

const (
	// TaskTypeBackfill はプロフィール補完タスクの種別です。
	TaskTypeBackfill = "user:backfill"

	queueName = "users"
)

// BackfillPayload はプロフィール補完タスクのペイロードです。
type BackfillPayload struct {
	UserID   string         `json:"userId"`
	Provider users.Provider `json:"provider"`
	Email    string         `json:"email"`
}

// ProfileStore は補完先のユーザーストアです。
type ProfileStore interface {
	Backfill(ctx context.Context, id string, provider users.Provider, email string) error
}
