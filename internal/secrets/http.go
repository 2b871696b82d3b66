// Package secrets はシークレットの一覧表示と投稿を扱うハンドラーを提供します。
package secrets

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-board/internal/users"
	"github.com/yourusername/secrets-board/internal/web"
)

// Store はハンドラーが必要とするユーザーストアの操作です。
type Store interface {
	FindAllWithSecret(ctx context.Context) ([]users.User, error)
	UpdateFields(ctx context.Context, id string, fields users.Fields) error
}

// HandlerOptions は投稿内容の制限です。
type HandlerOptions struct {
	MaxLength int
}

// ListHandler は GET /secrets のハンドラーを返します。ログインは不要です。
func ListHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := store.FindAllWithSecret(c.Request.Context())
		if err != nil {
			web.RenderError(c, http.StatusInternalServerError, err)
			return
		}

		texts := make([]string, 0, len(found))
		for i := range found {
			if found[i].HasSecret() {
				texts = append(texts, found[i].SecretText())
			}
		}
		web.Render(c, http.StatusOK, "secrets", gin.H{
			"Title":   "みんなの秘密",
			"Secrets": texts,
		})
	}
}

// SubmitPage は GET /submit のハンドラーを返します。
func SubmitPage(opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		web.Render(c, http.StatusOK, "submit", gin.H{
			"Title":     "秘密を投稿",
			"MaxLength": opts.MaxLength,
			"Current":   web.CurrentUser(c).SecretText(),
		})
	}
}

// SubmitHandler は POST /submit のハンドラーを返します。
// ログイン中ユーザーのシークレットを上書きして /secrets へ移動します。
func SubmitHandler(store Store, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := web.CurrentUser(c)
		if user == nil {
			c.Redirect(http.StatusFound, "/login")
			return
		}

		text, err := Validate(c.PostForm("secret"), opts.MaxLength)
		if err != nil {
			web.RedirectWithFlash(c, "/submit", validationMessage(err))
			return
		}

		err = store.UpdateFields(c.Request.Context(), user.ID, users.Fields{"secret": text})
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				c.Redirect(http.StatusFound, "/login")
				return
			}
			web.RenderError(c, http.StatusInternalServerError, err)
			return
		}
		c.Redirect(http.StatusFound, "/secrets")
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptySecret):
		return "秘密を入力してください。"
	case errors.Is(err, ErrSecretTooLong):
		return "秘密が長すぎます。"
	default:
		return "秘密はテキストで入力してください。"
	}
}
