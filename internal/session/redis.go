package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session hashes in Redis.
const DefaultKeyPrefix = "keygate:session"

const userIDField = "user_id"

// RedisOptions configures a RedisProvider.
type RedisOptions struct {
	KeyPrefix  string
	CookieName string
}

// RedisProvider resolves opaque session ids stored as Redis hashes at
// <prefix>:<id> with a user_id field.
type RedisProvider struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedisProvider wraps an existing client.
func NewRedisProvider(client redis.UniversalClient, opts RedisOptions) *RedisProvider {
	if strings.TrimSpace(opts.KeyPrefix) == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if strings.TrimSpace(opts.CookieName) == "" {
		opts.CookieName = DefaultCookieName
	}
	return &RedisProvider{client: client, opts: opts}
}

// NewRedisProviderFromAddr dials addr lazily.
func NewRedisProviderFromAddr(addr, password string, db int, opts RedisOptions) *RedisProvider {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisProvider(client, opts)
}

// Authenticate implements Provider.
func (p *RedisProvider) Authenticate(r *http.Request) (Identity, error) {
	sessionID := bearerToken(r, p.opts.CookieName)
	if sessionID == "" {
		return Identity{}, ErrNoSession
	}

	userID, err := p.client.HGet(r.Context(), p.key(sessionID), userIDField).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Identity{}, ErrNoSession
		}
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	if strings.TrimSpace(userID) == "" {
		return Identity{}, ErrNoSession
	}
	return Identity{UserID: userID, SessionID: sessionID}, nil
}

// Create stores a new session for userID expiring after ttl and returns its id.
func (p *RedisProvider) Create(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}

	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	sessionID := base64.RawURLEncoding.EncodeToString(raw[:])

	key := p.key(sessionID)
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, userIDField, userID, "created_at", time.Now().UTC().Unix())
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sessionID, nil
}

// Delete removes a session.
func (p *RedisProvider) Delete(ctx context.Context, sessionID string) error {
	return p.client.Del(ctx, p.key(sessionID)).Err()
}

// Ping checks connectivity.
func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

func (p *RedisProvider) key(sessionID string) string {
	return p.opts.KeyPrefix + ":" + sessionID
}
