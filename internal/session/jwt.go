package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is read when no Authorization header is present.
const DefaultCookieName = "keygate_session"

// JWTOptions configures a JWTProvider.
type JWTOptions struct {
	Secret     []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	CookieName string
}

// Claims are the session token claims. Subject carries the user id.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider authenticates HS256-signed session tokens.
type JWTProvider struct {
	opts   JWTOptions
	parser *jwt.Parser
}

// NewJWTProvider validates opts and builds the parser.
func NewJWTProvider(opts JWTOptions) (*JWTProvider, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("session jwt secret is required")
	}
	if strings.TrimSpace(opts.CookieName) == "" {
		opts.CookieName = DefaultCookieName
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if opts.Leeway > 0 {
		options = append(options, jwt.WithLeeway(opts.Leeway))
	}
	if opts.Issuer != "" {
		options = append(options, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		options = append(options, jwt.WithAudience(opts.Audience))
	}

	return &JWTProvider{opts: opts, parser: jwt.NewParser(options...)}, nil
}

// Authenticate implements Provider.
func (p *JWTProvider) Authenticate(r *http.Request) (Identity, error) {
	raw := bearerToken(r, p.opts.CookieName)
	if raw == "" {
		return Identity{}, ErrNoSession
	}

	claims, err := p.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return Identity{UserID: claims.Subject, SessionID: claims.SessionID}, nil
}

// Parse validates raw and returns its claims.
func (p *JWTProvider) Parse(raw string) (*Claims, error) {
	token, err := p.parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return p.opts.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Sign mints a session token for userID valid for ttl.
func (p *JWTProvider) Sign(userID string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{p.opts.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.opts.Secret)
}
