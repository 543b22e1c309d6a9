package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/starlabs/star-fee-routing/cranker/pkg/server"
)

func TestRateLimiter_AllowWithRetry(t *testing.T) {
	t.Parallel()

	// One token per hour with a burst of 2.
	rl := server.NewRateLimiter(rate.Every(time.Hour), 2)

	allowed, _ := rl.AllowWithRetry("10.0.0.1")
	require.True(t, allowed)
	allowed, _ = rl.AllowWithRetry("10.0.0.1")
	require.True(t, allowed)

	allowed, retryAfter := rl.AllowWithRetry("10.0.0.1")
	require.False(t, allowed)
	require.Greater(t, retryAfter, time.Duration(0))

	// Other IPs have their own budget.
	allowed, _ = rl.AllowWithRetry("10.0.0.2")
	require.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	rl := server.NewRateLimiter(rate.Every(time.Hour), 1)
	handler := server.RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/vaults/1/distribute", nil)
	req.RemoteAddr = "10.1.1.1:5000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body server.RateLimitError
	decodeBody(t, rec, &body)
	require.Equal(t, "rate_limit_exceeded", body.Error)
	require.GreaterOrEqual(t, body.RetryAfter, 1)
}
