package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/ratelimit"
)

func newLimiter(limit int, now time.Time) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.NewStore(time.Minute, 2), ratelimit.Options{
		MaxRequests: limit,
		Clock:       func() time.Time { return now },
	})
}

func TestRateLimitSetsHeadersAndRejects(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	handler := RateLimit(RateLimitOptions{Limiter: newLimiter(2, now)})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/keys/generate", nil)
		req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	reset := strconv.FormatInt(now.Add(time.Minute).UnixMilli(), 10)

	first := do()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "1", first.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, reset, first.Header().Get(HeaderRateLimitReset))

	second := do()
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get(HeaderRateLimitRemaining))

	third := do()
	require.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "0", third.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, reset, third.Header().Get(HeaderRateLimitReset))
	assert.Equal(t, 2, calls)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(third.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
	assert.Equal(t, "Too many requests. Please try again later.", body.Error.Message)
	assert.EqualValues(t, 2, body.Error.Details["limit"])
}

func TestRateLimitCustomRejectAndHeader(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var rejected ratelimit.Decision
	handler := RateLimit(RateLimitOptions{
		Limiter:        newLimiter(1, now),
		IdentityHeader: "X-Client-ID",
		OnReject: func(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
			rejected = d
			w.WriteHeader(http.StatusTeapot)
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var codes []int
	for _, client := range []string{"svc-a", "svc-b", "svc-a"} {
		req := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
		req.Header.Set("X-Client-ID", client)
		req.Header.Set("X-Forwarded-For", "1.2.3.4")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTeapot}, codes)

	assert.False(t, rejected.Allowed)
	assert.Equal(t, 1, rejected.Limit)
	assert.Equal(t, now.Add(time.Minute), rejected.Reset)
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	called := false
	handler := RateLimit(RateLimitOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/keys", nil))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))
}
