package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/apikey"
	"github.com/keygate/keygate/internal/session"
)

type fakeKeys struct {
	issued    []string
	issueErr  error
	records   []apikey.Record
	listErr   error
	revoked   []string
	revokeErr error
}

func (f *fakeKeys) Issue(ctx context.Context, userID, name string) (apikey.Issued, error) {
	if strings.TrimSpace(name) == "" {
		return apikey.Issued{}, apikey.ErrNameRequired
	}
	if f.issueErr != nil {
		return apikey.Issued{}, f.issueErr
	}
	f.issued = append(f.issued, userID+"/"+name)
	return apikey.Issued{
		Record: apikey.Record{ID: "key-1", UserID: userID, Name: name, Prefix: "kg_abcdefg"},
		Key:    "kg_secret",
	}, nil
}

func (f *fakeKeys) List(ctx context.Context, userID string) ([]apikey.Record, error) {
	return f.records, f.listErr
}

func (f *fakeKeys) Revoke(ctx context.Context, userID, id string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, userID+"/"+id)
	return nil
}

func authenticatedAs(userID string) session.Provider {
	return session.ProviderFunc(func(r *http.Request) (session.Identity, error) {
		return session.Identity{UserID: userID}, nil
	})
}

var noSession = session.ProviderFunc(func(r *http.Request) (session.Identity, error) {
	return session.Identity{}, session.ErrNoSession
})

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error.Code, resp.Error.Message
}

func postGenerate(h *KeysHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/keys/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Generate(rec, req)
	return rec
}

func TestGenerateIssuesKey(t *testing.T) {
	keys := &fakeKeys{}
	h := NewKeysHandler(keys, authenticatedAs("user-1"))

	rec := postGenerate(h, `{"name":"ci"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "kg_secret", resp.Key)
	assert.Equal(t, []string{"user-1/ci"}, keys.issued)
}

func TestGenerateRequiresSession(t *testing.T) {
	keys := &fakeKeys{}

	for name, provider := range map[string]session.Provider{
		"NoSession":  noSession,
		"NilSession": nil,
		"EmptyUser":  authenticatedAs(""),
	} {
		t.Run(name, func(t *testing.T) {
			rec := postGenerate(NewKeysHandler(keys, provider), `{"name":"ci"}`)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			code, message := decodeError(t, rec)
			assert.Equal(t, "UNAUTHORIZED", code)
			assert.Equal(t, "Not authenticated", message)
		})
	}
	assert.Empty(t, keys.issued)
}

func TestGenerateSessionChecksBeforeName(t *testing.T) {
	rec := postGenerate(NewKeysHandler(&fakeKeys{}, noSession), `{}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateValidatesName(t *testing.T) {
	h := NewKeysHandler(&fakeKeys{}, authenticatedAs("user-1"))

	for _, body := range []string{``, `{}`, `{"name":""}`, `{"name":"   "}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			rec := postGenerate(h, body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			code, message := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_FAILED", code)
			assert.Equal(t, "Name is required", message)
		})
	}
}

func TestGenerateIssueFailure(t *testing.T) {
	h := NewKeysHandler(&fakeKeys{issueErr: errors.New("disk full")}, authenticatedAs("user-1"))

	rec := postGenerate(h, `{"name":"ci"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	code, message := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", code)
	assert.Equal(t, "Internal server error", message)
}

func TestGenerateSessionBackendFailure(t *testing.T) {
	broken := session.ProviderFunc(func(r *http.Request) (session.Identity, error) {
		return session.Identity{}, errors.New("connection refused")
	})

	rec := postGenerate(NewKeysHandler(&fakeKeys{}, broken), `{"name":"ci"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListKeys(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	keys := &fakeKeys{records: []apikey.Record{
		{ID: "b", Name: "deploy", Prefix: "kg_bbbbbbb", HashedKey: "hash-b", CreatedAt: created.Add(time.Hour)},
		{ID: "a", Name: "ci", Prefix: "kg_aaaaaaa", HashedKey: "hash-a", CreatedAt: created, RevokedAt: &created},
	}}
	h := NewKeysHandler(keys, authenticatedAs("user-1"))

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/keys", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hash-")

	var resp ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Keys, 2)
	assert.Equal(t, "b", resp.Keys[0].ID)
	assert.Nil(t, resp.Keys[0].RevokedAt)
	require.NotNil(t, resp.Keys[1].RevokedAt)
}

func TestListKeysEmpty(t *testing.T) {
	h := NewKeysHandler(&fakeKeys{}, authenticatedAs("user-1"))

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/keys", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"keys":[]}`, rec.Body.String())
}

func TestRevokeKey(t *testing.T) {
	revoke := func(h *KeysHandler, id string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Delete("/api/keys/{id}", h.Revoke)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/keys/"+id, nil))
		return rec
	}

	t.Run("Revoked", func(t *testing.T) {
		keys := &fakeKeys{}
		rec := revoke(NewKeysHandler(keys, authenticatedAs("user-1")), "key-1")

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"user-1/key-1"}, keys.revoked)
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := revoke(NewKeysHandler(&fakeKeys{revokeErr: apikey.ErrNotFound}, authenticatedAs("user-1")), "nope")

		require.Equal(t, http.StatusNotFound, rec.Code)
		code, _ := decodeError(t, rec)
		assert.Equal(t, "NOT_FOUND", code)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		keys := &fakeKeys{}
		rec := revoke(NewKeysHandler(keys, noSession), "key-1")

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, keys.revoked)
	})
}
