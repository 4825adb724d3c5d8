package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used for HTTP server (STRUCTURED profile)
	ServerLogger *logging.Logger

	fallbackOnce sync.Once
)

// InitCLILogger installs the SIMPLE-profile logger used by every command
// other than serve. verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
}

// InitServerLogger installs the STRUCTURED-profile logger used by serve:
// JSON lines on stderr with correlation ids. environment defaults to
// "production". Calling it again replaces the logger, which is how SIGHUP
// applies a new level.
func InitServerLogger(serviceName, logLevel, environment string) {
	logger, err := logging.New(serverLoggerConfig(serviceName, logLevel, environment))
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

func serverLoggerConfig(serviceName, logLevel, environment string) *logging.LoggerConfig {
	if strings.TrimSpace(environment) == "" {
		environment = "production"
	}
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  environment,
		StaticFields: map[string]any{"component": "api"},
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr", Colorize: false},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// Logger returns the server logger when initialized, otherwise the CLI logger.
// A CLI logger is created on first use if neither has been set up.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	if CLILogger == nil {
		fallbackOnce.Do(func() {
			if CLILogger == nil {
				InitCLILogger("keygate", false)
			}
		})
	}
	return CLILogger
}

// Sync flushes every initialized logger.
func Sync() error {
	var firstErr error
	for _, logger := range []*logging.Logger{ServerLogger, CLILogger} {
		if logger == nil {
			continue
		}
		if err := logger.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// parseLogLevel maps config spellings onto gofulmen severity names.
// Unknown values fall back to INFO.
func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// fatal reports a logger bootstrap failure on stderr and exits. No logger
// exists yet at this point.
func fatal(exitCode foundry.ExitCode, msg string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(exitCode))
}
