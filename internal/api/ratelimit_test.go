package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func requestFrom(addr string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = addr
	return r
}

func TestRateLimiter_PerKeyWindow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 2, Window: time.Minute})
	defer rl.Stop()

	assert.True(t, rl.Allow(requestFrom("10.0.0.1:1234")))
	assert.True(t, rl.Allow(requestFrom("10.0.0.1:5678")))
	assert.False(t, rl.Allow(requestFrom("10.0.0.1:9999")), "same IP, different port")
	assert.True(t, rl.Allow(requestFrom("10.0.0.2:1234")))
}

func TestRateLimiter_MiddlewareEnvelope(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 1, Window: time.Minute})
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"message":"Rate limit exceeded","status":429}`, w.Body.String())
}

func TestAdminGuard_CapsConcurrency(t *testing.T) {
	rls := NewRateLimiters(0)
	defer rls.Stop()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	h := rls.AdminGuard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
	}))

	for i := 0; i < 2; i++ {
		go h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))
	}
	<-started
	<-started

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	close(release)
}

func TestGetClientIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", GetClientIP(requestFrom("10.0.0.1:80")))
	assert.Equal(t, "::1", GetClientIP(requestFrom("[::1]:80")))
	assert.Equal(t, "unix", GetClientIP(requestFrom("unix")))
}
