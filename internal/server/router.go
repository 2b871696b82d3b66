// Package server はミドルウェアとルーティングを組み立てます。
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/secrets-board/internal/auth"
	"github.com/yourusername/secrets-board/internal/config"
	"github.com/yourusername/secrets-board/internal/logutil"
	"github.com/yourusername/secrets-board/internal/secrets"
	"github.com/yourusername/secrets-board/internal/users"
	"github.com/yourusername/secrets-board/internal/web"
)

const serviceName = "secrets-board"

// Version はビルド時に -ldflags で上書きできます。
var Version = "0.1.0"

// Deps はルーターが利用する依存関係です。
type Deps struct {
	Config *config.Config
	Auth   *auth.Manager
	Store  secrets.Store
	Logger zerolog.Logger
}

// NewRouter は gin エンジンを作成します。
func NewRouter(deps Deps) (*gin.Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if deps.Auth == nil {
		return nil, errors.New("auth manager is nil")
	}
	if deps.Store == nil {
		return nil, errors.New("store is nil")
	}

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	router := gin.New()
	// 転送ヘッダーは TRUSTED_PROXIES からの接続でだけ信頼する
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.Use(logutil.Middleware(deps.Logger), gin.CustomRecovery(recoverWithErrorView))
	router.SetHTMLTemplate(tmpl)

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.IsRelease(),
		// 外部IDプロバイダーからのリダイレクトでもクッキーを送らせる
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"X-CSRF-Token",
	}
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token", "X-Request-Id"}
	router.Use(cors.New(corsConfig))

	router.Use(web.Globals(gin.H{
		"GoogleEnabled":   deps.Auth.ProviderEnabled(users.ProviderGoogle),
		"FacebookEnabled": deps.Auth.ProviderEnabled(users.ProviderFacebook),
	}))

	router.GET("/health", handleHealth)

	setupRoutes(router, deps)
	router.NoRoute(func(c *gin.Context) {
		web.RenderError(c, http.StatusNotFound, nil)
	})
	return router, nil
}

// setupRoutes は画面と認証周りの配線を行います。
func setupRoutes(router *gin.Engine, deps Deps) {
	authManager := deps.Auth
	opts := secrets.HandlerOptions{MaxLength: deps.Config.MaxSecretLength}

	pages := router.Group("")
	pages.Use(authManager.LoadUser())
	{
		pages.GET("/", handleHome)

		pages.GET("/login", authManager.LoginPage)
		pages.POST("/login", authManager.VerifyCSRF(), authManager.Login)
		pages.GET("/register", authManager.RegisterPage)
		pages.POST("/register", authManager.VerifyCSRF(), authManager.Register)
		pages.GET("/logout", authManager.Logout)

		// state の検証で CSRF を防ぐ
		pages.GET("/auth/:provider", authManager.OAuthStart)
		pages.GET("/auth/:provider/secrets", authManager.OAuthCallback)

		pages.GET("/secrets", secrets.ListHandler(deps.Store))

		protected := pages.Group("")
		protected.Use(authManager.RequireLogin())
		{
			protected.GET("/submit", secrets.SubmitPage(opts))
			protected.POST("/submit", authManager.VerifyCSRF(), secrets.SubmitHandler(deps.Store, opts))
		}
	}
}

// recoverWithErrorView は panic を 500 のエラー画面として返します。
func recoverWithErrorView(c *gin.Context, recovered any) {
	web.RenderError(c, http.StatusInternalServerError, fmt.Errorf("panic: %v", recovered))
}

func handleHome(c *gin.Context) {
	web.Render(c, http.StatusOK, "home", gin.H{"Title": "Secrets"})
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": Version,
	})
}
