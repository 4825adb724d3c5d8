// Package session resolves the authenticated user behind an HTTP request.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/keygate/keygate/internal/config"
)

// ErrNoSession is returned when a request carries no valid session.
var ErrNoSession = errors.New("no valid session")

// Identity is the authenticated principal behind a request.
type Identity struct {
	UserID    string
	SessionID string
}

// Provider authenticates requests.
type Provider interface {
	Authenticate(r *http.Request) (Identity, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(r *http.Request) (Identity, error)

// Authenticate calls f(r).
func (f ProviderFunc) Authenticate(r *http.Request) (Identity, error) {
	return f(r)
}

// FromConfig builds the provider selected by cfg.Provider. The returned close
// function releases any connections the provider holds.
func FromConfig(cfg config.SessionConfig) (Provider, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "jwt":
		p, err := NewJWTProvider(JWTOptions{
			Secret:     []byte(cfg.JWT.Secret),
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
			Leeway:     cfg.JWT.Leeway,
			CookieName: cfg.CookieName,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { return nil }, nil
	case "redis":
		p := NewRedisProviderFromAddr(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, RedisOptions{
			KeyPrefix:  cfg.Redis.KeyPrefix,
			CookieName: cfg.CookieName,
		})
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session provider: %s", cfg.Provider)
	}
}

// bearerToken extracts a token from the Authorization header, falling back
// to cookieName.
func bearerToken(r *http.Request, cookieName string) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return cookieValue(r, cookieName)
}

func cookieValue(r *http.Request, cookieName string) string {
	if r == nil || cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
