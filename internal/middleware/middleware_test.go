package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(required bool) *gin.Engine {
	r := gin.New()
	r.Use(Auth(testSecret, required))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ActorFrom(c))
	})
	return r
}

func signToken(t *testing.T, claims *Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func doRequest(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ValidToken(t *testing.T) {
	token := signToken(t, &Claims{UserEmail: "analyst@example.com"}, testSecret)

	w := doRequest(newAuthRouter(true), token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analyst@example.com", w.Body.String())
}

func TestAuth_SubjectFallback(t *testing.T) {
	token := signToken(t, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "svc-batch"}}, testSecret)

	w := doRequest(newAuthRouter(true), token)
	assert.Equal(t, "svc-batch", w.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	expired := signToken(t, &Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	}, testSecret)
	wrongKey := signToken(t, &Claims{UserID: "u1"}, "other-secret")

	r := newAuthRouter(true)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, expired).Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, wrongKey).Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "garbage").Code)
}

func TestAuth_OptionalAllowsAnonymous(t *testing.T) {
	w := doRequest(newAuthRouter(false), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, AnonymousActor, w.Body.String())
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(5 * time.Minute)
	rl.Sweep()
	assert.Empty(t, rl.requests)
}

func TestRateLimiter_WindowSlidesPerRequest(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	start := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	now := start
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	now = start.Add(40 * time.Second)
	assert.True(t, rl.Allow("a"))
	now = start.Add(50 * time.Second)
	assert.False(t, rl.Allow("a"))

	// only the first request has left the window
	now = start.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))
	now = start.Add(62 * time.Second)
	assert.False(t, rl.Allow("a"))

	now = start.Add(101 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimit_Middleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewRateLimiter(1, time.Minute)))
	r.GET("/whoami", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "").Code)
}

func TestRecoveryAndLogger(t *testing.T) {
	r := gin.New()
	r.Use(Logger(zap.NewNop()), Recovery(zap.NewNop()))
	r.GET("/whoami", func(c *gin.Context) { panic("boom") })

	w := doRequest(r, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
