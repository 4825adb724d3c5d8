package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.Logger()
		version := crucible.GetVersion()

		logger.Info("=== keygate Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + config.AppName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		cfg, err := loadConfig()
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		logger.Info("Server:")
		logger.Info(fmt.Sprintf("  Address:        %s:%d", cfg.Server.Host, cfg.Server.Port))
		logger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		logger.Info("  Admin Token:    " + setOrNot(cfg.Server.AdminToken))
		logger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		logger.Info("")

		logger.Info("Store:")
		logger.Info("  Driver:         " + cfg.Store.Driver)
		if strings.TrimSpace(cfg.Store.URL) != "" {
			logger.Info("  URL:            " + cfg.Store.URL)
			logger.Info("  Auth Token:     " + setOrNot(cfg.Store.AuthToken))
		} else {
			logger.Info("  Path:           " + cfg.Store.Path)
		}
		logger.Info("")

		logger.Info("Rate Limit:")
		logger.Info("  Window:         "+cfg.RateLimit.Window().String(), zap.Int("window_ms", cfg.RateLimit.WindowMs))
		logger.Info(fmt.Sprintf("  Max Requests:   %d", cfg.RateLimit.MaxRequests), zap.Int("max_requests", cfg.RateLimit.MaxRequests))
		logger.Info("  Identity:       " + cfg.RateLimit.IdentityHeader)
		logger.Info("  Sweep:          " + cfg.RateLimit.SweepMode + " every " + cfg.RateLimit.SweepInterval.String())
		logger.Info("")

		logger.Info("Sessions:")
		logger.Info("  Provider:       " + cfg.Session.Provider)
		logger.Info("  Cookie:         " + cfg.Session.CookieName)
		switch cfg.Session.Provider {
		case "redis":
			logger.Info("  Redis Addr:     " + cfg.Session.Redis.Addr)
			logger.Info("  Key Prefix:     " + cfg.Session.Redis.KeyPrefix)
		default:
			logger.Info("  JWT Secret:     " + setOrNot(cfg.Session.JWT.Secret))
			logger.Info("  JWT Issuer:     " + cfg.Session.JWT.Issuer)
		}
		logger.Info("")

		logger.Info("API Keys:")
		logger.Info("  Prefix:         " + cfg.APIKey.Prefix)
		logger.Info("  Pepper:         " + setOrNot(cfg.APIKey.Pepper))
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func setOrNot(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
