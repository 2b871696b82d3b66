package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-board/internal/users"
	"github.com/yourusername/secrets-board/internal/web"
)

type stubStore struct {
	listed    []users.User
	listErr   error
	updateErr error

	updatedID     string
	updatedFields users.Fields
}

func (s *stubStore) FindAllWithSecret(ctx context.Context) ([]users.User, error) {
	return s.listed, s.listErr
}

func (s *stubStore) UpdateFields(ctx context.Context, id string, fields users.Fields) error {
	s.updatedID = id
	s.updatedFields = fields
	return s.updateErr
}

func strPtr(s string) *string { return &s }

func newTestRouter(t *testing.T, user *users.User) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tmpl, err := web.Templates()
	if err != nil {
		t.Fatalf("failed to parse templates: %v", err)
	}
	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))))
	router.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(web.ContextUserKey, user)
		}
		c.Next()
	})
	return router
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListHandlerRendersSecrets(t *testing.T) {
	store := &stubStore{listed: []users.User{
		{ID: "1", Secret: strPtr("I sing in the shower")},
		{ID: "2", Secret: strPtr("<script>alert(1)</script>")},
	}}
	router := newTestRouter(t, nil)
	router.GET("/secrets", ListHandler(store))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/secrets", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "I sing in the shower") {
		t.Fatalf("body does not contain secret: %s", body)
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatal("secret was rendered without escaping")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("escaped secret missing: %s", body)
	}
}

func TestListHandlerStoreError(t *testing.T) {
	store := &stubStore{listErr: errors.New("database is locked")}
	router := newTestRouter(t, nil)
	router.GET("/secrets", ListHandler(store))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/secrets", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "database is locked") {
		t.Fatal("internal error leaked to the response")
	}
}

func TestSubmitPageShowsCurrentSecret(t *testing.T) {
	user := &users.User{ID: "u-1", Username: "a@example.com", Secret: strPtr("old secret")}
	router := newTestRouter(t, user)
	router.GET("/submit", SubmitPage(HandlerOptions{MaxLength: 42}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submit", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "old secret") {
		t.Fatalf("current secret missing: %s", body)
	}
	if !strings.Contains(body, `maxlength="42"`) {
		t.Fatalf("maxlength missing: %s", body)
	}
}

func TestSubmitHandlerStoresSecret(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(t, &users.User{ID: "u-1"})
	router.POST("/submit", SubmitHandler(store, HandlerOptions{MaxLength: 100}))

	rec := postForm(router, "/submit", url.Values{"secret": {"  I like pineapple pizza  "}})

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/secrets" {
		t.Fatalf("Location = %q, want /secrets", loc)
	}
	if store.updatedID != "u-1" {
		t.Fatalf("updated id = %q, want u-1", store.updatedID)
	}
	if got := store.updatedFields["secret"]; got != "I like pineapple pizza" {
		t.Fatalf("stored secret = %v", got)
	}
}

func TestSubmitHandlerRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{name: "empty", secret: "   "},
		{name: "too long", secret: strings.Repeat("x", 11)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &stubStore{}
			router := newTestRouter(t, &users.User{ID: "u-1"})
			router.POST("/submit", SubmitHandler(store, HandlerOptions{MaxLength: 10}))

			rec := postForm(router, "/submit", url.Values{"secret": {tc.secret}})

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != "/submit" {
				t.Fatalf("Location = %q, want /submit", loc)
			}
			if store.updatedFields != nil {
				t.Fatalf("store was updated: %#v", store.updatedFields)
			}
		})
	}
}

func TestSubmitHandlerWithoutUser(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(t, nil)
	router.POST("/submit", SubmitHandler(store, HandlerOptions{MaxLength: 10}))

	rec := postForm(router, "/submit", url.Values{"secret": {"hello"}})

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Header().Get("Location"))
	}
	if store.updatedFields != nil {
		t.Fatal("store was updated without a user")
	}
}

func TestSubmitHandlerStoreError(t *testing.T) {
	store := &stubStore{updateErr: errors.New("disk full")}
	router := newTestRouter(t, &users.User{ID: "u-1"})
	router.POST("/submit", SubmitHandler(store, HandlerOptions{MaxLength: 100}))

	rec := postForm(router, "/submit", url.Values{"secret": {"hello"}})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
