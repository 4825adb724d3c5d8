package middleware

import (
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/ratelimit"
)

// Rate limit response headers
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

const rateLimitedMessage = "Too many requests. Please try again later."

// Admitter makes an admission decision for a client identity.
type Admitter interface {
	CheckNow(id ratelimit.Identity) ratelimit.Decision
}

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	Limiter        Admitter
	IdentityHeader string

	// OnReject writes the response for a rejected request. When nil a JSON
	// RATE_LIMITED envelope is written.
	OnReject func(w http.ResponseWriter, r *http.Request, decision ratelimit.Decision)
}

// RateLimit counts every request against its client identity, stamps the
// X-RateLimit-* headers on the response and short-circuits with 429 once the
// identity exceeds its window budget.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	onReject := opts.OnReject
	if onReject == nil {
		onReject = writeRateLimited
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			id := ratelimit.IdentityFromRequest(r, opts.IdentityHeader)
			decision := opts.Limiter.CheckNow(id)
			SetRateLimitHeaders(w.Header(), decision)

			if !decision.Allowed {
				if logger := observability.ServerLogger; logger != nil {
					logger.Info("Rate limit exceeded",
						zap.String("identity", string(id)),
						zap.Int("limit", decision.Limit),
						zap.Int64("reset_ms", decision.ResetMillis()),
						zap.String("path", r.URL.Path),
						zap.String("requestID", GetRequestID(r.Context())))
				}
				onReject(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetRateLimitHeaders writes the decision as X-RateLimit-* headers. Reset is
// in epoch milliseconds.
func SetRateLimitHeaders(h http.Header, decision ratelimit.Decision) {
	h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetMillis(), 10))
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, decision ratelimit.Decision) {
	envelope := errors.NewErrorEnvelope("RATE_LIMITED", rateLimitedMessage).
		WithCorrelationID(GetRequestID(r.Context()))
	envelope, _ = envelope.WithContext(map[string]interface{}{
		"limit":    decision.Limit,
		"reset_ms": decision.ResetMillis(),
	})
	writeErrorResponse(w, envelope, http.StatusTooManyRequests)
}
