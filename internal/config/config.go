// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const releaseMode = "release"

// Config はアプリケーションの設定を保持する構造体です。
// 起動時に一度だけ組み立て、以降は読み取り専用で各コンポーネントへ渡します。
type Config struct {
	// サーバー設定
	Port    string `env:"PORT" envDefault:"3000"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"` // OAuthコールバックURLの基点

	// セッション署名用の秘密鍵（OAuth の state 署名にも使用）
	SessionSecret string `env:"SESSION_SECRET"`

	// CORS許可オリジン
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// X-Forwarded-For を信頼するプロキシ（IP または CIDR）。空なら接続元アドレスだけを使う
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// ユーザーストア
	DatabasePath string `env:"DATABASE_PATH" envDefault:"secrets.db"`

	// 外部IDプロバイダー
	GoogleClientID     string `env:"CLIENT_ID"`
	GoogleClientSecret string `env:"CLIENT_SECRET"`
	FacebookAppID      string `env:"FACEBOOK_APP_ID"`
	FacebookAppSecret  string `env:"FACEBOOK_APP_SECRET"`

	// Redis（空の場合はインメモリ／同期処理にフォールバック）
	RedisURL      string `env:"REDIS_URL"`       // ログイン試行回数の記録先
	QueueRedisURL string `env:"QUEUE_REDIS_URL"` // プロフィール補完ジョブ用 Asynq

	// 投稿制限
	MaxSecretLength int `env:"MAX_SECRET_LENGTH" envDefault:"1000"`

	// ログ設定
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"` // console or json
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	// ローカル開発ではセッション鍵を毎回生成する
	if cfg.SessionSecret == "" && !cfg.IsRelease() {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse は .env ファイルを読まずに現在の環境変数だけから設定を組み立てます。
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CORSAllowedOrigins = trimCSV(cfg.CORSAllowedOrigins)
	if proxies := trimCSV(cfg.TrustedProxies); len(proxies) > 0 {
		cfg.TrustedProxies = proxies
	} else {
		cfg.TrustedProxies = nil
	}
	return cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	if c.MaxSecretLength <= 0 {
		return fmt.Errorf("MAX_SECRET_LENGTH must be positive, got %d", c.MaxSecretLength)
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET must be set together")
	}
	if (c.FacebookAppID == "") != (c.FacebookAppSecret == "") {
		return fmt.Errorf("FACEBOOK_APP_ID and FACEBOOK_APP_SECRET must be set together")
	}

	// 本番環境では厳格にチェックする
	if c.IsRelease() {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes in release mode")
		}
		if !strings.HasPrefix(c.BaseURL, "https://") {
			return fmt.Errorf("BASE_URL must use https in release mode")
		}
	}

	return nil
}

// IsRelease は release モードで動作しているかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == releaseMode
}

// GoogleEnabled は Google ログインの資格情報が設定済みかを返します。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// FacebookEnabled は Facebook ログインの資格情報が設定済みかを返します。
func (c *Config) FacebookEnabled() bool {
	return c.FacebookAppID != "" && c.FacebookAppSecret != ""
}

// CallbackURL はプロバイダーごとの OAuth コールバックURLを返します。
func (c *Config) CallbackURL(provider string) string {
	return c.BaseURL + "/auth/" + provider + "/secrets"
}

func trimCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
