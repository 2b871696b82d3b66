package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-board/internal/web"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "_csrf"
)

// LoadUser はセッションからユーザーを復元して gin.Context に保存するミドルウェアです。
// 同時に CSRF トークンを発行し、ビューとレスポンスヘッダーへ渡します。
func (m *Manager) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := m.sessions.Deserialize(c)
		if err != nil {
			web.RenderError(c, http.StatusInternalServerError, fmt.Errorf("failed to restore session: %w", err))
			return
		}
		if user != nil {
			c.Set(web.ContextUserKey, user)
		}

		token, err := csrfToken(c)
		if err != nil {
			web.RenderError(c, http.StatusInternalServerError, fmt.Errorf("failed to issue csrf token: %w", err))
			return
		}
		c.Set(web.ContextCSRFKey, token)
		c.Header(csrfHeader, token)
		c.Next()
	}
}

// RequireLogin は未ログインのリクエストを /login へリダイレクトします。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if web.CurrentUser(c) == nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// VerifyCSRF はフォームの _csrf フィールドまたは X-CSRF-Token ヘッダーを検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		expected := c.GetString(web.ContextCSRFKey)
		received := c.PostForm(csrfFormField)
		if received == "" {
			received = c.GetHeader(csrfHeader)
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			web.RenderError(c, http.StatusForbidden, ErrCSRFMismatch)
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
