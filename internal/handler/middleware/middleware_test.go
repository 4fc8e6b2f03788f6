package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	jwtpkg "kairos/launch/pkg/jwt"
	"kairos/launch/pkg/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func do(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, m *jwtpkg.Manager, userID string) http.Header {
	t.Helper()
	token, err := m.GenerateAccessToken(userID, userID+"@example.com")
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestJWTAuth(t *testing.T) {
	m := jwtpkg.NewManager("key", "kairos-launch", time.Hour)
	r := newEngine(JWTAuth(m))

	assert.Equal(t, http.StatusUnauthorized, do(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.Header{"Authorization": {"Basic abc"}}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.Header{"Authorization": {"Bearer nope"}}).Code)
	assert.Equal(t, http.StatusOK, do(r, bearer(t, m, "user-1")).Code)
}

func TestAdminAuth(t *testing.T) {
	m := jwtpkg.NewManager("key", "kairos-launch", time.Hour)
	r := newEngine(JWTAuth(m), AdminAuth([]string{"admin-1", ""}))

	assert.Equal(t, http.StatusForbidden, do(r, bearer(t, m, "user-1")).Code)
	assert.Equal(t, http.StatusOK, do(r, bearer(t, m, "admin-1")).Code)

	// Without JWTAuth in front there are no claims.
	bare := newEngine(AdminAuth([]string{"admin-1"}))
	assert.Equal(t, http.StatusUnauthorized, do(bare, nil).Code)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var sawLogger bool
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) {
		logging.FromContext(c.Request.Context()).Info("inside")
		sawLogger = true
		c.Status(http.StatusNoContent)
	})

	w := do(r, http.Header{RequestIDHeader: {"req-42"}})
	require.True(t, sawLogger)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "inside", entries[0].Message)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "request completed", entries[1].Message)
	assert.EqualValues(t, http.StatusNoContent, entries[1].ContextMap()["status"])

	w = do(r, nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/ping", func(c *gin.Context) {
		panic("boom")
	})

	w := do(r, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
