// Package users はユーザーレコードとその永続化を提供します。
package users

import "time"

// Provider はアカウントの認証元を表します。
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// User はユーザーレコードです。
// Username はローカルアカウントではメールアドレス、外部IDでは "google:<id>" 形式の識別子を保持します。
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash"`
	Provider     Provider  `gorm:"size:16;not null;default:''"`
	Email        string    `gorm:"not null;default:''"`
	Secret       *string   // 未投稿の間は NULL
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasSecret は投稿済みのシークレットを持つかを返します。
func (u *User) HasSecret() bool {
	return u != nil && u.Secret != nil
}

// SecretText はシークレットの本文を返します。未投稿なら空文字です。
func (u *User) SecretText() string {
	if !u.HasSecret() {
		return ""
	}
	return *u.Secret
}

// IsLocal はパスワードでログインできるアカウントかを返します。
func (u *User) IsLocal() bool {
	return u != nil && u.PasswordHash != ""
}

// FederatedUsername は外部IDプロバイダーの識別子からユーザー名を組み立てます。
// プロバイダー間で ID が衝突しないよう接頭辞をつけます。
func FederatedUsername(provider Provider, subject string) string {
	return string(provider) + ":" + subject
}
