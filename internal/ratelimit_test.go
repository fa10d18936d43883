package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateLimiterAllow checks that a client is throttled once its burst is spent.
func TestRateLimiterAllow(t *testing.T) {
	limiter := newRateLimiter(1, 1, time.Minute)

	require.True(t, limiter.allow("client"))
	assert.False(t, limiter.allow("client"))
	assert.True(t, limiter.allow("other"), "clients have separate buckets")

	time.Sleep(1100 * time.Millisecond)

	assert.True(t, limiter.allow("client"))
}

// TestRateLimitHandler checks the 429 response and the disabled pass-through.
func TestRateLimitHandler(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	h := NewRateLimitHandler(ok, 1, 1, time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	disabled := NewRateLimitHandler(ok, 0, 0, 0)
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		disabled.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

// TestClientIP checks header precedence when identifying a client.
func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.7:5123"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Real-Ip", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
