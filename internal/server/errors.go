package server

import (
	"net/http"

	apperrors "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/ratelimit"
)

// HandleError writes err as a JSON error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	HandleError(w, r, apperrors.NewNotFoundError("The requested resource was not found"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	HandleError(w, r, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
}

// rejectRateLimited answers a throttled request. The X-RateLimit-* headers
// are already set by the middleware.
func rejectRateLimited(w http.ResponseWriter, r *http.Request, decision ratelimit.Decision) {
	HandleError(w, r, apperrors.NewRateLimitedError(decision.Limit, decision.ResetMillis()))
}
