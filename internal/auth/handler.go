package auth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-board/internal/logutil"
	"github.com/yourusername/secrets-board/internal/users"
	"github.com/yourusername/secrets-board/internal/web"
)

type registerForm struct {
	Username string `form:"username" binding:"required,email,max=254"`
	Password string `form:"password" binding:"required,min=8,max=72"`
}

type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// LoginPage は GET /login のハンドラーです。
func (m *Manager) LoginPage(c *gin.Context) {
	web.Render(c, http.StatusOK, "login", gin.H{"Title": "ログイン"})
}

// RegisterPage は GET /register のハンドラーです。
func (m *Manager) RegisterPage(c *gin.Context) {
	web.Render(c, http.StatusOK, "register", gin.H{"Title": "新規登録"})
}

// Register は POST /register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		web.RedirectWithFlash(c, "/register", "有効なメールアドレスと8〜72文字のパスワードを入力してください。")
		return
	}

	user, err := m.RegisterLocal(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrUsernameTaken):
			web.RedirectWithFlash(c, "/register", "このメールアドレスは既に登録されています。")
			return
		case errors.Is(err, ErrInvalidCredentials):
			web.RedirectWithFlash(c, "/register", "有効なメールアドレスと8〜72文字のパスワードを入力してください。")
			return
		}
		web.RenderError(c, http.StatusInternalServerError, err)
		return
	}

	m.establish(c, user)
}

// Login は POST /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logutil.GetOrDefault(ctx)
	ip := c.ClientIP()

	retryAfter, err := m.attempts.Locked(ctx, ip)
	if err != nil {
		// 記録先の障害時はログインを止めない
		logger.Warn().Err(err).Msg("failed to check login lock")
	}
	if retryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		web.Render(c, http.StatusTooManyRequests, "login", gin.H{
			"Title": "ログイン",
			"Error": "試行回数が上限に達しました。しばらくしてから再度お試しください。",
		})
		return
	}

	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		web.RedirectWithFlash(c, "/login", "メールアドレスとパスワードを入力してください。")
		return
	}

	user, err := m.VerifyLocal(ctx, form.Username, form.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			if _, recErr := m.attempts.RecordFailure(ctx, ip); recErr != nil {
				logger.Warn().Err(recErr).Msg("failed to record login failure")
			}
			web.RedirectWithFlash(c, "/login", "メールアドレスまたはパスワードが正しくありません。")
			return
		}
		web.RenderError(c, http.StatusInternalServerError, err)
		return
	}

	if err := m.attempts.Reset(ctx, ip); err != nil {
		logger.Warn().Err(err).Msg("failed to reset login attempts")
	}
	m.establish(c, user)
}

// Logout は GET /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	if err := m.sessions.Clear(c); err != nil {
		web.RenderError(c, http.StatusInternalServerError, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// OAuthStart は GET /auth/:provider のハンドラーです。
func (m *Manager) OAuthStart(c *gin.Context) {
	target, err := m.BeginOAuth(c, c.Param("provider"))
	if err != nil {
		m.respondOAuthError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// OAuthCallback は GET /auth/:provider/secrets のハンドラーです。
func (m *Manager) OAuthCallback(c *gin.Context) {
	identity, err := m.CompleteOAuth(c, c.Param("provider"))
	if err != nil {
		m.respondOAuthError(c, err)
		return
	}

	user, err := m.FindOrCreate(c.Request.Context(), identity)
	if err != nil {
		web.RenderError(c, http.StatusInternalServerError, err)
		return
	}
	m.establish(c, user)
}

func (m *Manager) respondOAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownProvider):
		web.RenderError(c, http.StatusNotFound, err)
	case errors.Is(err, ErrProviderDisabled):
		web.RedirectWithFlash(c, "/login", "このログイン方法は現在利用できません。")
	default:
		logger := logutil.GetOrDefault(c.Request.Context())
		logger.Warn().Err(err).Str("provider", c.Param("provider")).Msg("oauth login failed")
		web.RedirectWithFlash(c, "/login", "外部サービスでのログインに失敗しました。")
	}
}

// establish はセッションを開始して /secrets へ移動します。
func (m *Manager) establish(c *gin.Context, user *users.User) {
	if err := m.sessions.Serialize(c, user); err != nil {
		web.RenderError(c, http.StatusInternalServerError, err)
		return
	}
	c.Redirect(http.StatusFound, "/secrets")
}
