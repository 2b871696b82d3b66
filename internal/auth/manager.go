// Package auth は認証・認可機能を提供します。
//
// パスワードのハッシュ化は bcrypt、セッションは署名付きクッキー、
// 外部IDプロバイダーとの連携は golang.org/x/oauth2 に委ねます。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/secrets-board/internal/config"
	"github.com/yourusername/secrets-board/internal/logutil"
	"github.com/yourusername/secrets-board/internal/users"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnknownProvider    = errors.New("unknown identity provider")
	ErrProviderDisabled   = errors.New("identity provider is not configured")
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrOAuthDenied        = errors.New("oauth authorization denied")
	ErrCSRFMismatch       = errors.New("csrf token mismatch")
)

// UserStore は認証に必要なユーザーストアの操作です。
type UserStore interface {
	UserFinder
	Create(ctx context.Context, user *users.User) error
	FindByUsername(ctx context.Context, username string) (*users.User, error)
	FindOrCreate(ctx context.Context, username string) (*users.User, bool, error)
}

// Backfiller はアカウント作成後に provider と email を補完します。
type Backfiller interface {
	Backfill(ctx context.Context, userID string, provider users.Provider, email string) error
}

// Deps は Manager が利用する協調オブジェクトです。
// Attempts・Sessions・Providers を省略した場合は既定の実装を使います。
type Deps struct {
	Store      UserStore
	Backfiller Backfiller
	Attempts   AttemptTracker
	Sessions   Sessions
	Providers  []*Provider
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	store      UserStore
	backfiller Backfiller
	attempts   AttemptTracker
	sessions   Sessions
	providers  map[string]*Provider
	stateKey   []byte
	bcryptCost int
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if deps.Store == nil {
		return nil, errors.New("store is nil")
	}
	if deps.Backfiller == nil {
		return nil, errors.New("backfiller is nil")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET が設定されていません")
	}

	m := &Manager{
		store:      deps.Store,
		backfiller: deps.Backfiller,
		attempts:   deps.Attempts,
		sessions:   deps.Sessions,
		providers:  make(map[string]*Provider),
		stateKey:   []byte(cfg.SessionSecret),
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	if m.attempts == nil {
		m.attempts = NewMemoryAttempts()
	}
	if m.sessions == nil {
		m.sessions = NewCookieSessions(deps.Store)
	}

	providers := deps.Providers
	if providers == nil {
		providers = ProvidersFromConfig(cfg)
	}
	for _, p := range providers {
		m.providers[string(p.Name)] = p
	}
	return m, nil
}

// Sessions はセッションとユーザーを相互変換する機能を返します。
func (m *Manager) Sessions() Sessions {
	return m.sessions
}

// ProviderEnabled はプロバイダーが利用可能かを返します。
func (m *Manager) ProviderEnabled(name users.Provider) bool {
	_, ok := m.providers[string(name)]
	return ok
}

// RegisterLocal はパスワードをハッシュ化してローカルアカウントを作成します。
func (m *Manager) RegisterLocal(ctx context.Context, username, password string) (*users.User, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &users.User{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := m.store.Create(ctx, user); err != nil {
		return nil, err
	}

	m.backfill(ctx, user.ID, users.ProviderLocal, username)
	return user, nil
}

// VerifyLocal はユーザー名とパスワードを検証します。
func (m *Manager) VerifyLocal(ctx context.Context, username, password string) (*users.User, error) {
	username = normalizeUsername(username)
	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			// 存在しないユーザーでも同程度の時間をかける
			_ = bcrypt.CompareHashAndPassword(m.dummyPasswordHash(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsLocal() {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// FindOrCreate は外部IDに対応するユーザーを検索し、なければ作成します。
func (m *Manager) FindOrCreate(ctx context.Context, identity Identity) (*users.User, error) {
	if identity.Subject == "" {
		return nil, fmt.Errorf("identity subject is required")
	}
	username := users.FederatedUsername(identity.Provider, identity.Subject)
	user, created, err := m.store.FindOrCreate(ctx, username)
	if err != nil {
		return nil, err
	}
	if created || user.Provider == "" {
		m.backfill(ctx, user.ID, identity.Provider, identity.Email)
	}
	return user, nil
}

// backfill の失敗はログインを妨げない
func (m *Manager) backfill(ctx context.Context, userID string, provider users.Provider, email string) {
	if err := m.backfiller.Backfill(ctx, userID, provider, email); err != nil {
		logger := logutil.GetOrDefault(ctx)
		logger.Warn().Err(err).Str("user.id", userID).Str("provider", string(provider)).Msg("profile backfill failed")
	}
}

func (m *Manager) dummyPasswordHash() []byte {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), m.bcryptCost)
	})
	return m.dummyHash
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
