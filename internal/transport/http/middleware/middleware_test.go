package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"account-api/internal/core/auth"
	"account-api/internal/domain"
	resp "account-api/internal/transport/http/response"
)

func init() { gin.SetMode(gin.TestMode) }

func newAuthorizer(t *testing.T) (*auth.Authorizer, *auth.JWTer) {
	t.Helper()
	j, err := auth.NewJWTer(auth.TokenConfig{
		Secret:   "0123456789abcdef0123456789abcdef",
		Issuer:   "account-api",
		Audience: "account-clients",
	})
	require.NoError(t, err)
	return auth.NewAuthorizer(j), j
}

func decode(t *testing.T, w *httptest.ResponseRecorder) resp.Resp {
	t.Helper()
	var r resp.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func TestAuth(t *testing.T) {
	a, j := newAuthorizer(t)

	r := gin.New()
	r.GET("/me", Auth(a, auth.Authenticated()), func(c *gin.Context) {
		p, ok := PrincipalOf(c)
		require.True(t, ok)
		fromCtx, ok := auth.PrincipalFrom(c.Request.Context())
		require.True(t, ok)
		assert.Equal(t, p, fromCtx)
		c.JSON(http.StatusOK, resp.OK(gin.H{"id": p.ID}))
	})
	r.GET("/admin", Auth(a, auth.Require(domain.RoleAdmin)), func(c *gin.Context) {
		c.JSON(http.StatusOK, resp.OK(nil))
	})

	user := &domain.User{Record: domain.Record{ID: 7}, Email: "a@b.com", Role: domain.RoleUser}
	tok, err := j.Issue(user)
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/me", "Bearer " + tok.Value, http.StatusOK},
		{"user on admin route", "/admin", "Bearer " + tok.Value, http.StatusForbidden},
		{"anonymous on admin route", "/admin", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status != http.StatusOK {
				assert.Equal(t, tc.status, decode(t, w).Code)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyRequestID)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	rid := w.Header().Get(KeyRequestID)
	assert.NotEmpty(t, rid)
	assert.Equal(t, rid, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(KeyRequestID, "given-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "given-id", w.Header().Get(KeyRequestID))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, resp.CodeServerError, decode(t, w).Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) { <-c.Request.Context().Done() })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(8))
	r.POST("/", func(c *gin.Context) {
		var in map[string]any
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, resp.Error(resp.CodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, resp.OK(in))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"password":"far too long"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConcurrencyLimit(t *testing.T) {
	r := gin.New()
	r.Use(ConcurrencyLimit(1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMask(t *testing.T) {
	got := mask(map[string][]string{"Password": {"x"}, "q": {"ada"}})
	assert.Equal(t, []string{"****"}, got["Password"])
	assert.Equal(t, []string{"ada"}, got["q"])
}
