package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/apikey"
	apperrors "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/ratelimit"
	"github.com/keygate/keygate/internal/session"
)

type memoryKeys struct {
	mu     sync.Mutex
	issued int
}

func (m *memoryKeys) Issue(ctx context.Context, userID, name string) (apikey.Issued, error) {
	if strings.TrimSpace(name) == "" {
		return apikey.Issued{}, apikey.ErrNameRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	return apikey.Issued{Record: apikey.Record{ID: strconv.Itoa(m.issued), UserID: userID, Name: name}, Key: "kg_" + strconv.Itoa(m.issued)}, nil
}

func (m *memoryKeys) List(ctx context.Context, userID string) ([]apikey.Record, error) {
	return nil, nil
}

func (m *memoryKeys) Revoke(ctx context.Context, userID, id string) error {
	return apikey.ErrNotFound
}

func (m *memoryKeys) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issued
}

var userSession = session.ProviderFunc(func(r *http.Request) (session.Identity, error) {
	if r.Header.Get("Authorization") == "" {
		return session.Identity{}, session.ErrNoSession
	}
	return session.Identity{UserID: "user-1"}, nil
})

func newTestServer(t *testing.T, limit int, now time.Time) (*Server, *memoryKeys) {
	t.Helper()

	keys := &memoryKeys{}
	limiter := ratelimit.New(ratelimit.NewStore(time.Minute, 4), ratelimit.Options{
		MaxRequests: limit,
		Clock:       func() time.Time { return now },
	})
	srv := New(Options{
		Host:     "127.0.0.1",
		Limiter:  limiter,
		Keys:     keys,
		Sessions: userSession,
	})
	return srv, keys
}

func generate(srv *Server, ip string, authed bool, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/keys/generate", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", ip)
	if authed {
		req.Header.Set("Authorization", "Bearer token")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv, _ := newTestServer(t, 10, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

func TestGenerateRateLimitHeadersAndRejection(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	srv, keys := newTestServer(t, 3, now)
	reset := strconv.FormatInt(now.Add(time.Minute).UnixMilli(), 10)

	for i := 1; i <= 3; i++ {
		rec := generate(srv, "1.2.3.4", true, `{"name":"ci"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(3-i), rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, reset, rec.Header().Get("X-RateLimit-Reset"))
	}

	rec := generate(srv, "1.2.3.4", true, `{"name":"ci"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, reset, rec.Header().Get("X-RateLimit-Reset"))

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
	assert.Equal(t, "Too many requests. Please try again later.", body.Error.Message)
	assert.Equal(t, 3, keys.count(), "rejected request must not reach the handler")

	other := generate(srv, "5.6.7.8", true, `{"name":"ci"}`)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRateLimitRunsBeforeAuthentication(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, 1, now)

	first := generate(srv, "1.2.3.4", false, `{"name":"ci"}`)
	require.Equal(t, http.StatusUnauthorized, first.Code)
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := generate(srv, "1.2.3.4", true, `{"name":"ci"}`)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestValidationErrorsCarryRateLimitHeaders(t *testing.T) {
	srv, _ := newTestServer(t, 5, time.Now())

	rec := generate(srv, "1.2.3.4", true, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestKeysGroupRoutes(t *testing.T) {
	srv, _ := newTestServer(t, 10, time.Now())

	list := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
	list.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))

	revoke := httptest.NewRequest(http.MethodDelete, "/api/keys/missing", nil)
	revoke.Header.Set("Authorization", "Bearer token")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, revoke)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "8", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestHealthRoutesAreNotRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, 1, time.Now())
	srv.Health().MarkStarted()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestServerWithoutLimiterAdmitsEverything(t *testing.T) {
	srv := New(Options{Keys: &memoryKeys{}, Sessions: userSession})

	for i := 0; i < 5; i++ {
		rec := generate(srv, "1.2.3.4", true, `{"name":"ci"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestOptionalRoutes(t *testing.T) {
	srv := New(Options{DisableHealth: true, Debug: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
