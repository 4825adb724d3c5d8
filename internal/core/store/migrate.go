package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type migration struct {
	version    int
	name       string
	statements []string
}

// migrations are applied in order, once each. Append only.
var migrations = []migration{
	{
		version: 1,
		name:    "create api_keys",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				hashed_key TEXT NOT NULL UNIQUE,
				prefix TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				revoked_at INTEGER
			)`,
		},
	},
	{
		version: 2,
		name:    "index api_keys by owner",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id, created_at)`,
		},
	},
}

// Migrate brings the schema up to date, recording each applied version in
// schema_migrations. Each migration runs in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestSchemaVersion is the version Migrate converges to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}
