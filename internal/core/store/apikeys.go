package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/apikey"
)

var _ apikey.Repository = (*Store)(nil)

// CreateAPIKey inserts a new key record.
func (s *Store) CreateAPIKey(ctx context.Context, record apikey.Record) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(record.ID) == "" || strings.TrimSpace(record.UserID) == "" {
		return errors.New("api key id and user id are required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, hashed_key, prefix, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.UserID, record.Name, record.HashedKey, record.Prefix,
		record.CreatedAt.UTC().UnixMilli(), nullableMillis(record.RevokedAt))
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}

	return nil
}

// ListAPIKeys returns userID's keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]apikey.Record, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, name, hashed_key, prefix, created_at, revoked_at
		FROM api_keys
		WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var records []apikey.Record
	for rows.Next() {
		record, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	return records, nil
}

// RevokeAPIKey marks an active key revoked. It returns apikey.ErrNotFound when
// no active key with id belongs to userID.
func (s *Store) RevokeAPIKey(ctx context.Context, userID, id string, at time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = ?
		WHERE id = ? AND user_id = ? AND revoked_at IS NULL
	`, at.UTC().UnixMilli(), strings.TrimSpace(id), strings.TrimSpace(userID))
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if affected == 0 {
		return apikey.ErrNotFound
	}

	return nil
}

// FindAPIKeyByHash returns the record with hashedKey, or nil when none exists.
func (s *Store) FindAPIKeyByHash(ctx context.Context, hashedKey string) (*apikey.Record, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, hashed_key, prefix, created_at, revoked_at
		FROM api_keys
		WHERE hashed_key = ?
	`, hashedKey)

	record, err := scanAPIKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// CountAPIKeys returns the number of active keys across all users.
func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (apikey.Record, error) {
	var (
		record    apikey.Record
		createdAt int64
		revokedAt sql.NullInt64
	)

	if err := row.Scan(&record.ID, &record.UserID, &record.Name, &record.HashedKey, &record.Prefix, &createdAt, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apikey.Record{}, err
		}
		return apikey.Record{}, fmt.Errorf("scan api key: %w", err)
	}

	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	if revokedAt.Valid {
		value := time.UnixMilli(revokedAt.Int64).UTC()
		record.RevokedAt = &value
	}

	return record, nil
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}
