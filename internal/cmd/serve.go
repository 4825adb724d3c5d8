package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/config"
	errwrap "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/ratelimit"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/server/handlers"
	"github.com/keygate/keygate/internal/session"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// limiterHealthChecker fails when the limiter is tracking more identities
// than the configured ceiling, which points at a stalled sweeper.
type limiterHealthChecker struct {
	limiter *ratelimit.Limiter
	max     int
}

func (l limiterHealthChecker) CheckHealth(ctx context.Context) error {
	if l.max > 0 && l.limiter.Store().Len() > l.max {
		return errwrap.NewServiceUnavailableError("rate limiter is tracking too many identities")
	}
	return nil
}

const maxTrackedIdentities = 1_000_000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (log level only; restart for other settings)

On shutdown the HTTP server drains, the limiter sweeper stops and the key
store and session backend are closed before logs are flushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setOverride(cmd, "host", "server.host", serverHost)
		setOverride(cmd, "port", "server.port", serverPort)

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid")
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, "")
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, config.AppName); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
			zap.Int("metrics_port", cfg.Metrics.Port))

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "failed to open key store")
		}

		sessions, closeSessions, err := session.FromConfig(cfg.Session)
		if err != nil {
			_ = db.Close()
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "session provider invalid")
		}

		limiter, sweeper, err := newLimiter(cfg.RateLimit, true)
		if err != nil {
			_ = db.Close()
			_ = closeSessions()
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "rate limiter invalid")
		}

		health := handlers.NewHealthManager(versionInfo.Version)
		health.RegisterCriticalChecker("ratelimit", limiterHealthChecker{limiter: limiter, max: maxTrackedIdentities})
		health.RegisterChecker("store", handlers.PingChecker(db))
		if pinger, ok := sessions.(interface{ Ping(context.Context) error }); ok {
			health.RegisterChecker("sessions", handlers.PingChecker(pinger))
		}
		if cfg.Metrics.Enabled {
			health.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv := server.New(server.Options{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			Limiter:        limiter,
			IdentityHeader: cfg.RateLimit.IdentityHeader,
			Keys:           newKeyService(cfg, db),
			Sessions:       sessions,
			Health:         health,
			MetricsPort:    cfg.Metrics.Port,
			AdminToken:     cfg.Server.AdminToken,
			DisableHealth:  !cfg.Health.Enabled,
			Debug:          cfg.Debug.Enabled,
		})
		handlers.SetAppName(config.AppName)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: last registered, first executed.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := observability.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.ShutdownMetrics(); err != nil {
				logger.Warn("Metrics exporter shutdown failed", zap.Error(err))
			}
			if err := closeSessions(); err != nil {
				logger.Warn("Session provider close failed", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "key store close failed")
			}
			logger.Info("Key store closed")
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			if sweeper != nil {
				sweeper.Stop()
			}

			logger.Info("HTTP server stopped gracefully",
				zap.Int("tracked_identities", limiter.Store().Len()))
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			reloaded, err := loadConfig()
			if err != nil {
				logger.Error("Failed to reload config", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			if reloaded.Logging.Level != cfg.Logging.Level {
				observability.InitServerLogger(config.AppName, reloaded.Logging.Level, "")
				logger = observability.ServerLogger
				logger.Info("Log level updated", zap.String("level", reloaded.Logging.Level))
			}
			if reloaded.RateLimit != cfg.RateLimit {
				logger.Warn("Rate limit settings changed; restart to apply",
					zap.Int("window_ms", reloaded.RateLimit.WindowMs),
					zap.Int("max_requests", reloaded.RateLimit.MaxRequests))
			}
			cfg = reloaded
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		if sweeper != nil {
			sweeper.Start(cmd.Context())
		}

		errChan := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			errChan <- signals.Listen(cmd.Context())
		}()

		metrics.SetServerStartTime(time.Now().Unix())
		health.MarkStarted()

		if err := <-errChan; err != nil {
			logger.Error("Server stopped with error", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
}
