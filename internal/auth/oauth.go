package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/yourusername/secrets-board/internal/config"
	"github.com/yourusername/secrets-board/internal/users"
)

const (
	googleProfileURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	facebookProfileURL = "https://graph.facebook.com/me?fields=id,email"

	stateTTL        = 10 * time.Minute
	maxProfileBytes = 1 << 20
)

// Identity は外部IDプロバイダーが返した利用者の情報です。
type Identity struct {
	Provider users.Provider
	Subject  string
	Email    string
}

// Provider は OAuth 2.0 の認可コードフローを行う外部IDプロバイダーです。
type Provider struct {
	Name       users.Provider
	OAuth2     *oauth2.Config
	ProfileURL string

	parseProfile func(body []byte) (subject, email string, err error)
}

// NewGoogleProvider は profile と email を要求する Google プロバイダーを作成します。
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		Name: users.ProviderGoogle,
		OAuth2: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"profile", "email"},
		},
		ProfileURL: googleProfileURL,
		parseProfile: func(body []byte) (string, string, error) {
			var profile struct {
				Sub   string `json:"sub"`
				Email string `json:"email"`
			}
			if err := json.Unmarshal(body, &profile); err != nil {
				return "", "", err
			}
			return profile.Sub, profile.Email, nil
		},
	}
}

// NewFacebookProvider は email のみを要求する Facebook プロバイダーを作成します。
func NewFacebookProvider(appID, appSecret, redirectURL string) *Provider {
	return &Provider{
		Name: users.ProviderFacebook,
		OAuth2: &oauth2.Config{
			ClientID:     appID,
			ClientSecret: appSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Facebook,
			Scopes:       []string{"email"},
		},
		ProfileURL: facebookProfileURL,
		parseProfile: func(body []byte) (string, string, error) {
			var profile struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			}
			if err := json.Unmarshal(body, &profile); err != nil {
				return "", "", err
			}
			return profile.ID, profile.Email, nil
		},
	}
}

// ProvidersFromConfig は資格情報が設定されたプロバイダーだけを返します。
func ProvidersFromConfig(cfg *config.Config) []*Provider {
	var providers []*Provider
	if cfg.GoogleEnabled() {
		providers = append(providers, NewGoogleProvider(
			cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL(string(users.ProviderGoogle)),
		))
	}
	if cfg.FacebookEnabled() {
		providers = append(providers, NewFacebookProvider(
			cfg.FacebookAppID, cfg.FacebookAppSecret, cfg.CallbackURL(string(users.ProviderFacebook)),
		))
	}
	return providers
}

func (p *Provider) fetchIdentity(ctx context.Context, token *oauth2.Token) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := p.OAuth2.Client(ctx, token).Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to fetch %s profile: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read %s profile: %w", p.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%s profile endpoint returned %d", p.Name, resp.StatusCode)
	}

	subject, email, err := p.parseProfile(body)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to decode %s profile: %w", p.Name, err)
	}
	if subject == "" {
		return Identity{}, fmt.Errorf("%s profile has no subject", p.Name)
	}
	return Identity{Provider: p.Name, Subject: subject, Email: email}, nil
}

type stateClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider"`
}

// BeginOAuth は認可画面へのリダイレクトURLを返します。
// state には署名付きトークンを使い、照合用の nonce をセッションに保存します。
func (m *Manager) BeginOAuth(c *gin.Context, name string) (string, error) {
	provider, err := m.provider(name)
	if err != nil {
		return "", err
	}

	nonce := uuid.NewString()
	now := m.now()
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
		Provider: name,
	}).SignedString(m.stateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}

	session := sessions.Default(c)
	session.Set(sessionKeyOAuthNonce, nonce)
	if err := session.Save(); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	return provider.OAuth2.AuthCodeURL(state), nil
}

// CompleteOAuth はコールバックを検証し、認可コードを交換して利用者情報を取得します。
func (m *Manager) CompleteOAuth(c *gin.Context, name string) (Identity, error) {
	provider, err := m.provider(name)
	if err != nil {
		return Identity{}, err
	}

	if reason := c.Query("error"); reason != "" {
		return Identity{}, fmt.Errorf("%w: %s", ErrOAuthDenied, reason)
	}
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return Identity{}, fmt.Errorf("%w: missing code or state", ErrInvalidState)
	}

	if err := m.verifyState(c, name, state); err != nil {
		return Identity{}, err
	}

	ctx := c.Request.Context()
	token, err := provider.OAuth2.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to exchange %s code: %w", name, err)
	}
	return provider.fetchIdentity(ctx, token)
}

func (m *Manager) verifyState(c *gin.Context, name, state string) error {
	session := sessions.Default(c)
	expected, _ := session.Get(sessionKeyOAuthNonce).(string)
	// nonce は一度きり
	session.Delete(sessionKeyOAuthNonce)
	if err := session.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (interface{}, error) {
		return m.stateKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != name {
		return fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(claims.ID)) != 1 {
		return fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	return nil
}

func (m *Manager) provider(name string) (*Provider, error) {
	switch users.Provider(name) {
	case users.ProviderGoogle, users.ProviderFacebook:
	default:
		return nil, ErrUnknownProvider
	}
	provider, ok := m.providers[name]
	if !ok {
		return nil, ErrProviderDisabled
	}
	return provider, nil
}
