package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/apikey"
	apperrors "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/session"
)

const maxGenerateBodyBytes = 4 << 10

// respondWithError writes every handler error through the shared envelope
// writer so codes, logging and error metrics stay uniform.
var respondWithError = apperrors.RespondWithError

// KeyService is the subset of apikey.Service the handlers need.
type KeyService interface {
	Issue(ctx context.Context, userID, name string) (apikey.Issued, error)
	List(ctx context.Context, userID string) ([]apikey.Record, error)
	Revoke(ctx context.Context, userID, id string) error
}

// KeysHandler serves the /api/keys routes. Rate limiting is applied by the
// router before any of these handlers run.
type KeysHandler struct {
	keys     KeyService
	sessions session.Provider
}

// NewKeysHandler wires the key routes to a key service and session provider.
func NewKeysHandler(keys KeyService, sessions session.Provider) *KeysHandler {
	return &KeysHandler{keys: keys, sessions: sessions}
}

// GenerateRequest is the POST /api/keys/generate body.
type GenerateRequest struct {
	Name string `json:"name"`
}

// GenerateResponse carries the plaintext key. It is only ever returned once.
type GenerateResponse struct {
	Key string `json:"key"`
}

// KeyResponse is a listed key without its secret.
type KeyResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// ListResponse wraps the caller's keys.
type ListResponse struct {
	Keys []KeyResponse `json:"keys"`
}

// Generate issues a new key for the session user.
func (h *KeysHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	body := http.MaxBytesReader(w, r.Body, maxGenerateBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		respondWithError(w, r, apperrors.WrapValidationError(r.Context(), err, apperrors.MessageNameRequired))
		return
	}

	issued, err := h.keys.Issue(r.Context(), user.UserID, req.Name)
	switch {
	case stderrors.Is(err, apikey.ErrNameRequired):
		respondWithError(w, r, apperrors.NewValidationError(apperrors.MessageNameRequired))
		return
	case stderrors.Is(err, apikey.ErrNameTooLong):
		respondWithError(w, r, apperrors.WrapValidationError(r.Context(), err, "Name is too long"))
		return
	case err != nil:
		metrics.RecordOperation(metrics.OperationKeyIssue, false)
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, apperrors.MessageInternal))
		return
	}

	metrics.RecordOperation(metrics.OperationKeyIssue, true)
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("API key issued",
			zap.String("user_id", user.UserID),
			zap.String("key_id", issued.Record.ID),
			zap.String("prefix", issued.Record.Prefix),
			zap.String("requestID", middleware.GetRequestID(r.Context())))
	}

	writeJSON(w, http.StatusOK, GenerateResponse{Key: issued.Key})
}

// List returns the session user's keys, newest first.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	records, err := h.keys.List(r.Context(), user.UserID)
	if err != nil {
		metrics.RecordOperation(metrics.OperationKeyList, false)
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, apperrors.MessageInternal))
		return
	}
	metrics.RecordOperation(metrics.OperationKeyList, true)

	resp := ListResponse{Keys: make([]KeyResponse, 0, len(records))}
	for _, rec := range records {
		resp.Keys = append(resp.Keys, KeyResponse{
			ID:        rec.ID,
			Name:      rec.Name,
			Prefix:    rec.Prefix,
			CreatedAt: rec.CreatedAt.UTC(),
			RevokedAt: rec.RevokedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Revoke revokes one of the session user's keys.
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.keys.Revoke(r.Context(), user.UserID, id)
	switch {
	case stderrors.Is(err, apikey.ErrNotFound):
		respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("API key %q not found", id)))
		return
	case err != nil:
		metrics.RecordOperation(metrics.OperationKeyRevoke, false)
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, apperrors.MessageInternal))
		return
	}

	metrics.RecordOperation(metrics.OperationKeyRevoke, true)
	w.WriteHeader(http.StatusNoContent)
}

// authenticate resolves the session user or writes the error response.
func (h *KeysHandler) authenticate(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	if h.sessions == nil {
		respondWithError(w, r, apperrors.NewUnauthorizedError(apperrors.MessageNotAuthenticated))
		return session.Identity{}, false
	}

	user, err := h.sessions.Authenticate(r)
	switch {
	case err == nil && user.UserID != "":
		return user, true
	case err == nil, stderrors.Is(err, session.ErrNoSession):
		respondWithError(w, r, apperrors.NewUnauthorizedError(apperrors.MessageNotAuthenticated))
	default:
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, apperrors.MessageInternal))
	}
	return session.Identity{}, false
}
