package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/apikey"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/output"
)

var (
	keysUser   string
	keysName   string
	keysOutput string
	keysOut    string
	keysOutDir string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys in the local store",
}

var keysIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new API key for a user",
	Long: `Issue a new API key for --user. The plaintext key is printed once and
only its hash is stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(cmd, "keys.issue", func(svc *apikey.Service, sink *outputSink, f output.Formatter) error {
			issued, err := svc.Issue(cmd.Context(), keysUser, keysName)
			metrics.RecordOperation(metrics.OperationKeyIssue, err == nil)
			if err != nil {
				return err
			}

			observability.Logger().Debug("API key issued",
				zap.String("user_id", issued.Record.UserID),
				zap.String("key_id", issued.Record.ID))

			rendered, err := f.FormatIssued(issued)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, rendered)
			return err
		})
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(cmd, "keys.list", func(svc *apikey.Service, sink *outputSink, f output.Formatter) error {
			records, err := svc.List(cmd.Context(), keysUser)
			metrics.RecordOperation(metrics.OperationKeyList, err == nil)
			if err != nil {
				return err
			}

			rendered, err := f.FormatKeys(records)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, rendered)
			return err
		})
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke one of a user's API keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(cmd, "keys.revoke", func(svc *apikey.Service, sink *outputSink, _ output.Formatter) error {
			err := svc.Revoke(cmd.Context(), keysUser, args[0])
			metrics.RecordOperation(metrics.OperationKeyRevoke, err == nil)
			if errors.Is(err, apikey.ErrNotFound) {
				return fmt.Errorf("key %s not found for user %s", args[0], keysUser)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(sink.writer, "revoked %s\n", args[0])
			return err
		})
	},
}

var keysVerifyCmd = &cobra.Command{
	Use:   "verify <key>",
	Short: "Check whether a plaintext key is valid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(cmd, "keys.verify", func(svc *apikey.Service, sink *outputSink, f output.Formatter) error {
			record, err := svc.Verify(cmd.Context(), args[0])
			metrics.RecordOperation(metrics.OperationKeyVerify, err == nil)
			if errors.Is(err, apikey.ErrNotFound) {
				return fmt.Errorf("key is not valid")
			}
			if err != nil {
				return err
			}

			rendered, err := f.FormatKeys([]apikey.Record{*record})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, rendered)
			return err
		})
	},
}

// withKeyService opens the store, builds the key service and output sink and
// hands them to fn. Everything is closed when fn returns.
func withKeyService(cmd *cobra.Command, base string, fn func(*apikey.Service, *outputSink, output.Formatter) error) error {
	if cmd.Flags().Lookup("user") != nil && strings.TrimSpace(keysUser) == "" {
		return fmt.Errorf("--user is required")
	}

	format, err := output.ParseFormat(keysOutput)
	if err != nil {
		return err
	}

	outPath, err := resolveOutPath(keysOut, keysOutDir, base, format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	sink, err := openSink(outPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	return fn(newKeyService(cfg, db), sink, output.NewFormatter(format))
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysIssueCmd, keysListCmd, keysRevokeCmd, keysVerifyCmd)

	keysCmd.PersistentFlags().StringVar(&keysOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml|markdown")
	keysCmd.PersistentFlags().StringVar(&keysOut, "out", "", "Write output to a file (default stdout)")
	keysCmd.PersistentFlags().StringVar(&keysOutDir, "out-dir", "", "Write output to a directory")

	for _, c := range []*cobra.Command{keysIssueCmd, keysListCmd, keysRevokeCmd} {
		c.Flags().StringVar(&keysUser, "user", "", "user ID owning the keys")
	}
	keysIssueCmd.Flags().StringVar(&keysName, "name", "", "display name for the key")
}
