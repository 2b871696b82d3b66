package auth

import (
	"context"
	"sync"
	"time"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
	sweepInterval    = time.Minute
)

// AttemptTracker はログイン失敗回数を記録し、上限を超えたクライアントをロックします。
type AttemptTracker interface {
	// Locked はロック中であれば残り時間を返します。
	Locked(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset は記録を消去します。
	Reset(ctx context.Context, key string) error
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// expired は失敗の集計期間とロックの両方が終わっているかを返します。
func (s *attemptState) expired(now time.Time) bool {
	return now.Sub(s.firstAttempt) > loginWindow && !now.Before(s.lockedUntil)
}

// MemoryAttempts はプロセス内で失敗回数を保持する AttemptTracker です。
type MemoryAttempts struct {
	lock      sync.Mutex
	attempts  map[string]*attemptState
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryAttempts は MemoryAttempts を作成します。
func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

func (m *MemoryAttempts) Locked(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	now := m.now()
	if state.expired(now) {
		delete(m.attempts, key)
		return 0, nil
	}
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

func (m *MemoryAttempts) RecordFailure(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	m.sweep(now)

	state, ok := m.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now, lockedUntil: lockedUntilOf(state)}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (m *MemoryAttempts) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}

// sweep は期限切れの記録を削除します。呼び出し側でロックを保持してください。
func (m *MemoryAttempts) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for key, state := range m.attempts {
		if state.expired(now) {
			delete(m.attempts, key)
		}
	}
}

func lockedUntilOf(state *attemptState) time.Time {
	if state == nil {
		return time.Time{}
	}
	return state.lockedUntil
}
