package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/session"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that configuration loads, the key store opens and the session provider can be built.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.Logger()
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg := mustLoadConfig()
		if _, _, err := newLimiter(cfg.RateLimit, false); err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Rate limiter configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid",
			zap.Int("window_ms", cfg.RateLimit.WindowMs),
			zap.Int("max_requests", cfg.RateLimit.MaxRequests))

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		db, err := openStore(ctx, cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Key store unavailable", errwrap.WrapDatabaseError(ctx, err, "key store unavailable"))
			return
		}
		_ = db.Close()
		logger.Info("✅ Key store reachable", zap.String("driver", db.Driver()))

		provider, closeProvider, err := session.FromConfig(cfg.Session)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Session provider invalid", errwrap.WrapConfigInvalid(ctx, err, "session provider invalid"))
			return
		}
		defer closeProvider() // nolint:errcheck // best-effort cleanup
		if pinger, ok := provider.(interface{ Ping(context.Context) error }); ok {
			if err := pinger.Ping(ctx); err != nil {
				ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Session backend unreachable", err)
				return
			}
		}
		logger.Info("✅ Session provider ready", zap.String("provider", cfg.Session.Provider))

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
