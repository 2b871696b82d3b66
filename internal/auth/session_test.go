package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/secrets-board/internal/users"
)

type mapFinder map[string]*users.User

func (f mapFinder) FindByID(_ context.Context, id string) (*users.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

// sessionHarness はクッキーを引き継ぎながらセッションを操作します。
type sessionHarness struct {
	t        *testing.T
	router   *gin.Engine
	sessions *CookieSessions
	cookies  map[string]*http.Cookie
	now      time.Time
	loaded   *users.User
}

func newSessionHarness(t *testing.T, finder UserFinder) *sessionHarness {
	gin.SetMode(gin.TestMode)
	h := &sessionHarness{
		t:       t,
		router:  gin.New(),
		cookies: map[string]*http.Cookie{},
		now:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	h.sessions = NewCookieSessions(finder)
	h.sessions.now = func() time.Time { return h.now }

	h.router.Use(sessions.Sessions("test_session", cookie.NewStore([]byte(testSecret))))
	h.router.GET("/login/:id", func(c *gin.Context) {
		if err := h.sessions.Serialize(c, &users.User{ID: c.Param("id")}); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	h.router.GET("/me", func(c *gin.Context) {
		user, err := h.sessions.Deserialize(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		h.loaded = user
		c.Status(http.StatusNoContent)
	})
	h.router.GET("/logout", func(c *gin.Context) {
		if err := h.sessions.Clear(c); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	return h
}

func (h *sessionHarness) do(path string) {
	h.t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, ck := range h.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(h.t, http.StatusNoContent, rec.Code)
	for _, ck := range rec.Result().Cookies() {
		h.cookies[ck.Name] = ck
	}
}

func (h *sessionHarness) current() *users.User {
	h.t.Helper()
	h.loaded = nil
	h.do("/me")
	return h.loaded
}

func TestCookieSessionsRoundTrip(t *testing.T) {
	h := newSessionHarness(t, mapFinder{"u-1": {ID: "u-1", Username: "a@example.com"}})

	require.Nil(t, h.current())

	h.do("/login/u-1")
	user := h.current()
	require.NotNil(t, user)
	require.Equal(t, "a@example.com", user.Username)

	h.do("/logout")
	require.Nil(t, h.current())
}

func TestCookieSessionsIdleTimeout(t *testing.T) {
	h := newSessionHarness(t, mapFinder{"u-1": {ID: "u-1"}})
	h.do("/login/u-1")

	// アクセスが続く限り維持される
	for i := 0; i < 3; i++ {
		h.now = h.now.Add(idleTimeout - time.Minute)
		require.NotNil(t, h.current())
	}

	h.now = h.now.Add(idleTimeout + time.Second)
	require.Nil(t, h.current())
}

func TestCookieSessionsMaxLifetime(t *testing.T) {
	h := newSessionHarness(t, mapFinder{"u-1": {ID: "u-1"}})
	h.do("/login/u-1")

	start := h.now
	for h.now.Sub(start) < maxSessionLifetime-time.Hour {
		h.now = h.now.Add(time.Hour)
		require.NotNil(t, h.current())
	}

	h.now = start.Add(maxSessionLifetime + time.Minute)
	require.Nil(t, h.current())
}

func TestCookieSessionsDeletedUser(t *testing.T) {
	finder := mapFinder{"u-1": {ID: "u-1"}}
	h := newSessionHarness(t, finder)
	h.do("/login/u-1")

	delete(finder, "u-1")
	require.Nil(t, h.current())
}

func TestSerializeRequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	s := NewCookieSessions(mapFinder{})
	require.Error(t, s.Serialize(c, nil))
}
