package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/apikey"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/core/store"
	"github.com/keygate/keygate/internal/observability"
)

// openStore connects to the key store and migrates it to the latest schema.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	observability.Logger().Debug("Store ready",
		zap.String("driver", db.Driver()),
		zap.Bool("local", db.Local()),
		zap.Int("schema_version", store.LatestSchemaVersion()))
	return db, nil
}

func newKeyService(cfg *config.Config, repo apikey.Repository) *apikey.Service {
	generator := apikey.NewGenerator(cfg.APIKey.Prefix, []byte(cfg.APIKey.Pepper))
	return apikey.NewService(repo, generator, apikey.Options{
		MaxNameLength: cfg.APIKey.MaxNameLength,
	})
}
