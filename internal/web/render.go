// Package web はサーバーサイドのビュー描画を提供します。
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-board/internal/logutil"
	"github.com/yourusername/secrets-board/internal/users"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	// ContextUserKey はログイン中ユーザー（*users.User）を gin.Context に保存するキーです。
	ContextUserKey = "web.user"
	// ContextCSRFKey は CSRF トークンを gin.Context に保存するキーです。
	ContextCSRFKey = "web.csrf"

	globalsKey = "web.globals"
)

// Templates は埋め込みテンプレートをすべて読み込みます。
func Templates() (*template.Template, error) {
	return template.New("").ParseFS(templateFS, "templates/*.html")
}

// Globals はすべてのビューに渡す共通値を登録するミドルウェアです。
func Globals(values gin.H) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(globalsKey, values)
		c.Next()
	}
}

// CurrentUser はログイン中のユーザーを返します。未ログインなら nil です。
func CurrentUser(c *gin.Context) *users.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*users.User)
	return user
}

// Render は共通値とフラッシュメッセージを付与してビューを描画します。
func Render(c *gin.Context, status int, view string, data gin.H) {
	merged := gin.H{}
	if globals, ok := c.Get(globalsKey); ok {
		if values, ok := globals.(gin.H); ok {
			for k, v := range values {
				merged[k] = v
			}
		}
	}
	for k, v := range data {
		merged[k] = v
	}

	user := CurrentUser(c)
	merged["CurrentUser"] = user
	merged["Authenticated"] = user != nil
	merged["CSRFToken"] = c.GetString(ContextCSRFKey)
	merged["Flashes"] = takeFlashes(c)

	c.HTML(status, view+".html", merged)
}

// AddFlash は次の画面で一度だけ表示するメッセージを登録します。
func AddFlash(c *gin.Context, message string) {
	session := sessions.Default(c)
	session.AddFlash(message)
	if err := session.Save(); err != nil {
		logger := logutil.GetOrDefault(c.Request.Context())
		logger.Warn().Err(err).Msg("failed to save flash message")
	}
}

// RedirectWithFlash はメッセージを登録してリダイレクトします。
func RedirectWithFlash(c *gin.Context, location, message string) {
	AddFlash(c, message)
	c.Redirect(http.StatusFound, location)
}

// RenderError はエラーを記録し、error ビューを描画して以降のハンドラーを中断します。
func RenderError(c *gin.Context, status int, err error) {
	logger := logutil.GetOrDefault(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		event := logger.Warn()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.Err(err).Int("http.status", status).Msg("request failed")
	}

	Render(c, status, "error", gin.H{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": errorMessage(status),
	})
	c.Abort()
}

func takeFlashes(c *gin.Context) []string {
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := session.Save(); err != nil {
		logger := logutil.GetOrDefault(c.Request.Context())
		logger.Warn().Err(err).Msg("failed to clear flash messages")
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func errorMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return "ページが見つかりませんでした。"
	case http.StatusForbidden:
		return "不正なリクエストです。ページを再読み込みしてからもう一度お試しください。"
	case http.StatusTooManyRequests:
		return "試行回数が上限に達しました。しばらくしてから再度お試しください。"
	default:
		if status >= http.StatusInternalServerError {
			return "サーバー内部でエラーが発生しました。時間をおいて再度お試しください。"
		}
		return "リクエストを処理できませんでした。"
	}
}
