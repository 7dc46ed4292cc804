package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/social"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/amoylab/tokenbridge/internal/i18n"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGateway func(backend, token string) (*database.User, error)

func (f stubGateway) Authenticate(_ context.Context, backend, token string) (*database.User, error) {
	return f(backend, token)
}

type fixture struct {
	router *gin.Engine
	now    time.Time
	alice  *database.User
	bob    *database.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	users, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })
	alice := &database.User{Username: "alice", IsActive: true}
	bob := &database.User{Username: "bob", IsActive: false}
	require.NoError(t, users.CreateUser(ctx, alice))
	require.NoError(t, users.CreateUser(ctx, bob))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tokens := storage.NewMemoryStorage()
	pairs := []struct {
		token   string
		user    uint
		expires time.Time
	}{
		{"alice-live", alice.ID, now.Add(time.Hour)},
		{"alice-expired", alice.ID, now},
		{"bob-live", bob.ID, now.Add(time.Hour)},
	}
	for i, p := range pairs {
		id := string(rune('a' + i))
		require.NoError(t, tokens.SaveTokenPair(ctx,
			&storage.AccessToken{ID: id, Token: p.token, UserID: p.user, ApplicationID: "app", Expires: p.expires, CreatedAt: now},
			&storage.RefreshToken{ID: "r" + id, Token: "r-" + p.token, UserID: p.user, ApplicationID: "app", AccessTokenID: id, CreatedAt: now}))
	}

	gw := stubGateway(func(backend, token string) (*database.User, error) {
		switch {
		case backend != "github":
			return nil, social.ErrUnknownBackend
		case token == "good":
			return alice, nil
		case token == "http":
			return nil, &social.HTTPError{Status: 401, Body: `{"message":"Bad credentials"}`}
		case token == "timeout":
			return nil, &social.AuthFailure{Reason: "failed to reach provider"}
		default:
			return nil, nil
		}
	})

	tr, err := i18n.New("en")
	require.NoError(t, err)
	a := NewAuthenticator(zap.NewNop(), tokens, users, gw, tr)
	a.NowFunc = func() time.Time { return now }

	r := gin.New()
	r.Use(i18n.Middleware(tr.DefaultLang()), a.Authenticate())
	r.GET("/open", func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, user.Username+"|"+CredentialFromContext(c))
	})
	r.GET("/protected", a.RequireUser(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	return &fixture{router: r, now: now, alice: alice, bob: bob}
}

func (f *fixture) do(path, authorization string) *httptest.ResponseRecorder {
	return f.doLang(path, authorization, "")
}

func (f *fixture) doLang(path, authorization, lang string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if lang != "" {
		req.Header.Set("X-Lang", lang)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["detail"]
}

func TestAuthenticate_Anonymous(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "anonymous", f.do("/open", "").Body.String())
	assert.Equal(t, "anonymous", f.do("/open", "Basic abc").Body.String())

	w := f.do("/protected", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Authentication credentials were not provided.", detail(t, w))
}

func TestAuthenticate_AccessToken(t *testing.T) {
	f := newFixture(t)

	w := f.do("/open", "Bearer alice-live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice|alice-live", w.Body.String())
	assert.Equal(t, http.StatusNoContent, f.do("/protected", "bearer alice-live").Code)

	w = f.do("/protected", "Bearer alice-expired")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token header. No credentials provided.", detail(t, w))
	assert.Equal(t, `Bearer backend realm="api"`, w.Header().Get("WWW-Authenticate"))

	w = f.do("/protected", "Bearer bob-live")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "User inactive or deleted.", detail(t, w))
}

func TestAuthenticate_Social(t *testing.T) {
	f := newFixture(t)

	w := f.do("/open", "Bearer github good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice|github good", w.Body.String())

	tests := []struct {
		header string
		detail string
	}{
		{"Bearer", "Invalid token header. No backend provided."},
		{"Bearer github", "Invalid token header. No credentials provided."},
		{"Bearer github a b", "Invalid token header. Token string should not contain spaces."},
		{"Bearer myspace good", "Invalid token header. Invalid backend."},
		{"Bearer github nobody", "Bad credentials"},
		{"Bearer github timeout", "Bad credentials"},
		{"Bearer github http", `{"message":"Bad credentials"}`},
	}
	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			w := f.do("/open", tc.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.detail, detail(t, w))
			assert.Equal(t, `Bearer backend realm="api"`, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestAuthenticate_Translated(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path   string
		header string
		status int
		detail string
	}{
		{"/open", "Bearer", http.StatusUnauthorized, "无效的令牌头。未提供后端。"},
		{"/open", "Bearer github a b", http.StatusUnauthorized, "无效的令牌头。令牌字符串不应包含空格。"},
		{"/open", "Bearer github nobody", http.StatusUnauthorized, "凭据错误"},
		{"/open", "Bearer bob-live", http.StatusUnauthorized, "用户未激活或已删除。"},
		{"/protected", "", http.StatusForbidden, "未提供身份认证凭据。"},
		// provider bodies are passed through unchanged
		{"/open", "Bearer github http", http.StatusUnauthorized, `{"message":"Bad credentials"}`},
	}
	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			w := f.doLang(tc.path, tc.header, "zh")
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.detail, detail(t, w))
		})
	}
}
