package apikey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultMaxNameLength bounds the human label attached to a key.
const DefaultMaxNameLength = 100

var (
	ErrNameRequired = errors.New("name is required")
	ErrNameTooLong  = errors.New("name is too long")
	ErrNotFound     = errors.New("api key not found")
)

// Record is the persisted form of an API key. The plaintext secret is never
// part of it.
type Record struct {
	ID        string
	UserID    string
	Name      string
	HashedKey string
	Prefix    string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the key has been revoked.
func (r Record) Revoked() bool {
	return r.RevokedAt != nil
}

// Issued is returned by Issue and carries the plaintext secret exactly once.
type Issued struct {
	Record Record
	Key    string
}

// Repository persists key records.
type Repository interface {
	CreateAPIKey(ctx context.Context, record Record) error
	ListAPIKeys(ctx context.Context, userID string) ([]Record, error)
	// RevokeAPIKey marks the key revoked. It returns ErrNotFound when no
	// active key with id belongs to userID.
	RevokeAPIKey(ctx context.Context, userID, id string, at time.Time) error
	FindAPIKeyByHash(ctx context.Context, hashedKey string) (*Record, error)
}

// Options configures a Service.
type Options struct {
	MaxNameLength int
	Clock         func() time.Time
}

// Service issues, lists and revokes keys for authenticated users.
type Service struct {
	repo          Repository
	generator     *Generator
	maxNameLength int
	clock         func() time.Time
}

// NewService wires a service over repo.
func NewService(repo Repository, generator *Generator, opts Options) *Service {
	if generator == nil {
		generator = NewGenerator(DefaultPrefix, nil)
	}
	maxLen := opts.MaxNameLength
	if maxLen <= 0 {
		maxLen = DefaultMaxNameLength
	}
	return &Service{
		repo:          repo,
		generator:     generator,
		maxNameLength: maxLen,
		clock:         opts.Clock,
	}
}

// ValidateName trims name and enforces the length bound.
func (s *Service) ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > s.maxNameLength {
		return "", fmt.Errorf("%w: max %d characters", ErrNameTooLong, s.maxNameLength)
	}
	return name, nil
}

// Issue creates a key named name for userID and returns its plaintext.
func (s *Service) Issue(ctx context.Context, userID, name string) (Issued, error) {
	name, err := s.ValidateName(name)
	if err != nil {
		return Issued{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return Issued{}, errors.New("user id is required")
	}

	secret, err := s.generator.Generate()
	if err != nil {
		return Issued{}, fmt.Errorf("generate key: %w", err)
	}

	record := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		HashedKey: s.generator.Hash(secret),
		Prefix:    DisplayPrefix(secret),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateAPIKey(ctx, record); err != nil {
		return Issued{}, fmt.Errorf("persist key: %w", err)
	}

	return Issued{Record: record, Key: secret}, nil
}

// List returns userID's keys, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Record, error) {
	records, err := s.repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return records, nil
}

// Revoke disables the key id owned by userID.
func (s *Service) Revoke(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	if err := s.repo.RevokeAPIKey(ctx, userID, id, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("revoke key: %w", err)
	}
	return nil
}

// Verify resolves a presented secret to its active record.
func (s *Service) Verify(ctx context.Context, secret string) (*Record, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrNotFound
	}
	record, err := s.repo.FindAPIKeyByHash(ctx, s.generator.Hash(secret))
	if err != nil {
		return nil, err
	}
	if record == nil || record.Revoked() {
		return nil, ErrNotFound
	}
	return record, nil
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock().UTC()
	}
	return time.Now().UTC()
}
