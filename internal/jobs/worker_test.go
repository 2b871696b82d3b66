package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/yourusername/secrets-board/internal/users"
)

type stubProfileStore struct {
	calls []BackfillPayload
	err   error
}

func (s *stubProfileStore) Backfill(ctx context.Context, id string, provider users.Provider, email string) error {
	s.calls = append(s.calls, BackfillPayload{UserID: id, Provider: provider, Email: email})
	return s.err
}

func newTestManager(store ProfileStore) *Manager {
	return &Manager{store: store, logger: zerolog.Nop()}
}

func TestHandleBackfillTask(t *testing.T) {
	store := &stubProfileStore{}
	m := newTestManager(store)

	body, err := json.Marshal(BackfillPayload{UserID: "u-1", Provider: users.ProviderGoogle, Email: "a@example.com"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := m.handleBackfillTask(context.Background(), asynq.NewTask(TaskTypeBackfill, body)); err != nil {
		t.Fatalf("handleBackfillTask returned error: %v", err)
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected one store call, got %d", len(store.calls))
	}
	got := store.calls[0]
	if got.UserID != "u-1" || got.Provider != users.ProviderGoogle || got.Email != "a@example.com" {
		t.Fatalf("unexpected backfill call: %#v", got)
	}
}

func TestHandleBackfillTaskSkipsRetryOnBadInput(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		err     error
	}{
		{name: "malformed json", payload: []byte("{")},
		{name: "missing user", payload: []byte(`{"provider":"local"}`)},
		{name: "unknown user", payload: []byte(`{"userId":"gone"}`), err: users.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(&stubProfileStore{err: tc.err})
			err := m.handleBackfillTask(context.Background(), asynq.NewTask(TaskTypeBackfill, tc.payload))
			if !errors.Is(err, asynq.SkipRetry) {
				t.Fatalf("expected SkipRetry, got %v", err)
			}
		})
	}
}

func TestHandleBackfillTaskRetriesStoreFailure(t *testing.T) {
	storeErr := errors.New("database is locked")
	m := newTestManager(&stubProfileStore{err: storeErr})

	err := m.handleBackfillTask(context.Background(), asynq.NewTask(TaskTypeBackfill, []byte(`{"userId":"u-1"}`)))
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("store failures must stay retryable")
	}
}

func TestInlineBackfill(t *testing.T) {
	store := &stubProfileStore{}
	inline := NewInline(store)

	if err := inline.Backfill(context.Background(), "u-2", users.ProviderLocal, "b@example.com"); err != nil {
		t.Fatalf("Backfill returned error: %v", err)
	}
	if len(store.calls) != 1 || store.calls[0].UserID != "u-2" {
		t.Fatalf("unexpected calls: %#v", store.calls)
	}
}

func TestNewManagerRejectsBadURL(t *testing.T) {
	if _, err := NewManager("not-a-url", &stubProfileStore{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
	if _, err := NewManager("redis://localhost:6379/0", nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for nil store")
	}
}
