package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-board/internal/users"
)

const (
	SessionCookieName    = "secrets_session"
	sessionKeyUser       = "auth_user"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"
	sessionKeyOAuthNonce = "oauth_nonce"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 2 * time.Hour
	touchInterval      = time.Minute
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// Sessions はログイン中ユーザーとセッションを相互に変換する機能です。
type Sessions interface {
	// Serialize はユーザーをセッションに結びつけます。
	Serialize(c *gin.Context, user *users.User) error
	// Deserialize はセッションからユーザーを復元します。未ログインなら nil を返します。
	Deserialize(c *gin.Context) (*users.User, error)
	// Clear はセッションを破棄します。
	Clear(c *gin.Context) error
}

// UserFinder はセッションのユーザーIDからレコードを引くためのストアです。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// CookieSessions は gin-contrib/sessions の署名付きクッキーにユーザーIDを保存します。
type CookieSessions struct {
	store UserFinder
	now   func() time.Time
}

// NewCookieSessions は CookieSessions を作成します。
func NewCookieSessions(store UserFinder) *CookieSessions {
	return &CookieSessions{store: store, now: time.Now}
}

func (s *CookieSessions) Serialize(c *gin.Context, user *users.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user is required")
	}
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate csrf token: %w", err)
	}

	// セッション固定を防ぐため既存の値はすべて破棄する
	session := sessions.Default(c)
	session.Clear()
	now := s.now()
	session.Set(sessionKeyUser, user.ID)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	c.Set(sessionKeyCSRF, token)
	return nil
}

func (s *CookieSessions) Deserialize(c *gin.Context) (*users.User, error) {
	session := sessions.Default(c)
	id, ok := session.Get(sessionKeyUser).(string)
	if !ok || id == "" {
		return nil, nil
	}

	now := s.now()
	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	lastActive := readUnix(session.Get(sessionKeyLastActive))
	if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime ||
		lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
		return nil, s.forget(session)
	}

	user, err := s.store.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, s.forget(session)
		}
		return nil, err
	}

	if now.Sub(lastActive) >= touchInterval {
		session.Set(sessionKeyLastActive, now.Unix())
		if err := session.Save(); err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
	}
	return user, nil
}

func (s *CookieSessions) Clear(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *CookieSessions) forget(session sessions.Session) error {
	session.Delete(sessionKeyUser)
	session.Delete(sessionKeyIssuedAt)
	session.Delete(sessionKeyLastActive)
	if err := session.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// csrfToken はセッションの CSRF トークンを返し、未発行なら発行します。
func csrfToken(c *gin.Context) (string, error) {
	if token := c.GetString(sessionKeyCSRF); token != "" {
		return token, nil
	}
	session := sessions.Default(c)
	if token, ok := session.Get(sessionKeyCSRF).(string); ok && token != "" {
		return token, nil
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return "", err
	}
	return token, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
