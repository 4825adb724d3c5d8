package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/output"
	"github.com/keygate/keygate/internal/ratelimit"
)

var (
	limitsOutput   string
	limitsOut      string
	limitsRequests int
	limitsIdentity string
)

// newLimiter builds the limiter described by cfg. When sweeping is periodic a
// sweeper is returned too; the caller starts and stops it. instrument wires
// decisions and sweeps into metrics and logs.
func newLimiter(cfg config.RateLimitConfig, instrument bool) (*ratelimit.Limiter, *ratelimit.Sweeper, error) {
	mode, err := ratelimit.ParseSweepMode(cfg.SweepMode)
	if err != nil {
		return nil, nil, err
	}

	opts := ratelimit.Options{
		Window:      cfg.Window(),
		MaxRequests: cfg.MaxRequests,
		SweepMode:   mode,
	}
	if instrument {
		opts.Observer = observeDecision
	}

	store := ratelimit.NewStore(cfg.Window(), cfg.Shards)
	limiter := ratelimit.New(store, opts)

	if mode != ratelimit.SweepPeriodic {
		return limiter, nil, nil
	}

	sweeper := ratelimit.NewSweeper(store, cfg.SweepInterval, nil)
	if instrument {
		sweeper.OnSweep = observeSweep
	}
	return limiter, sweeper, nil
}

func observeDecision(id ratelimit.Identity, count int, decision ratelimit.Decision) {
	metrics.RecordRateLimitDecision(decision.Allowed)
	observability.Logger().Debug("Rate limit decision",
		zap.String("identity", string(id)),
		zap.Int("count", count),
		zap.Bool("allowed", decision.Allowed),
		zap.Int("remaining", decision.Remaining),
		zap.Int64("reset_ms", decision.ResetMillis()))
}

func observeSweep(removed, remaining int) {
	metrics.RecordRateLimitSweep(removed, remaining)
	if removed > 0 {
		observability.Logger().Debug("Swept expired rate limit windows",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}

func effectiveLimits(cfg config.RateLimitConfig) output.Limits {
	return output.Limits{
		WindowMs:       cfg.WindowMs,
		MaxRequests:    cfg.MaxRequests,
		IdentityHeader: cfg.IdentityHeader,
		SweepMode:      cfg.SweepMode,
		SweepInterval:  cfg.SweepInterval,
		Shards:         cfg.Shards,
	}
}

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show the effective rate limiter settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		format, err := output.ParseFormat(limitsOutput)
		if err != nil {
			return err
		}

		sink, err := openSink(limitsOut, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatLimits(effectiveLimits(cfg.RateLimit))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

var limitsSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a burst of requests against an in-memory limiter",
	Long: `Replay --requests checks for one identity against a fresh limiter built
from the current configuration and print how many were admitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if limitsRequests <= 0 {
			return fmt.Errorf("--requests must be positive")
		}

		limiter, _, err := newLimiter(cfg.RateLimit, false)
		if err != nil {
			return err
		}

		now := time.Now()
		id := ratelimit.Identity(limitsIdentity)
		var (
			allowed int
			last    ratelimit.Decision
		)
		for i := 0; i < limitsRequests; i++ {
			last = limiter.Check(id, now)
			if last.Allowed {
				allowed++
			}
		}

		lines := []string{
			"Rate Limit Simulation",
			"",
			fmt.Sprintf("identity:  %s", id),
			fmt.Sprintf("window:    %s", limiter.Window()),
			fmt.Sprintf("limit:     %d", last.Limit),
			fmt.Sprintf("requests:  %d", limitsRequests),
			fmt.Sprintf("admitted:  %d", allowed),
			fmt.Sprintf("rejected:  %d", limitsRequests-allowed),
			fmt.Sprintf("remaining: %d", last.Remaining),
			fmt.Sprintf("reset:     %s", last.Reset.UTC().Format(time.RFC3339Nano)),
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.AddCommand(limitsSimulateCmd)

	limitsCmd.Flags().StringVar(&limitsOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml|markdown")
	limitsCmd.Flags().StringVar(&limitsOut, "out", "", "Write output to a file (default stdout)")

	limitsSimulateCmd.Flags().IntVar(&limitsRequests, "requests", 0, "number of requests to replay")
	limitsSimulateCmd.Flags().StringVar(&limitsIdentity, "identity", "127.0.0.1", "client identity to replay as")
}
