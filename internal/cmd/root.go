package cmd

import (
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	// Flag values layered over file and environment config.
	runtimeOverrides = map[string]any{}

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Issue API keys behind a per-client rate limiter",
	Long: `keygate issues API keys for authenticated users and guards the key
endpoints with an in-process fixed-window rate limiter.

Use the subcommands to run the server or manage keys from the command line.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/keygate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading KEYGATE_* variables (default .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

func initLogging() {
	observability.InitCLILogger(config.AppName, verbose)
}

// loadConfig resolves configuration for the running command. Flags set on the
// command line win over every other source.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: cfgFile,
		EnvFile:    envFile,
	}, runtimeOverrides)
	if err != nil {
		return nil, err
	}

	if verbose {
		observability.Logger().Debug("Configuration loaded",
			zap.String("config_file", cfgFile),
			zap.Int("window_ms", cfg.RateLimit.WindowMs),
			zap.Int("max_requests", cfg.RateLimit.MaxRequests),
			zap.String("session_provider", cfg.Session.Provider))
	}
	return cfg, nil
}

// mustLoadConfig exits with CONFIG_INVALID when configuration cannot be loaded.
func mustLoadConfig() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		ExitWithCode(observability.Logger(), foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}
	return cfg
}

// setOverride records a flag value under a dotted config key when the flag
// was set explicitly.
func setOverride(cmd *cobra.Command, flag, key string, value any) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	setNested(runtimeOverrides, key, value)
}

func setNested(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	current := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
