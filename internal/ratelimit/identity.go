package ratelimit

import (
	"net/http"
	"strings"
)

// DefaultIdentityHeader is the request header used to derive client identity.
const DefaultIdentityHeader = "X-Forwarded-For"

// IdentityFromRequest derives the client identity from header. For a
// comma-separated forwarding chain the first hop is used. Requests without a
// value fall into UnknownIdentity.
func IdentityFromRequest(r *http.Request, header string) Identity {
	if r == nil {
		return UnknownIdentity
	}
	if strings.TrimSpace(header) == "" {
		header = DefaultIdentityHeader
	}

	value := strings.TrimSpace(r.Header.Get(header))
	if value == "" {
		return UnknownIdentity
	}

	first, _, _ := strings.Cut(value, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return UnknownIdentity
	}
	return Identity(first)
}
