package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/session"
)

var (
	sessionUser string
	sessionTTL  time.Duration
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Work with sessions for the configured provider",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session credential for a user",
	Long: `Create a session for --user using the configured provider and print the
credential. For jwt this is a signed token; for redis it is a session ID
stored with the given TTL. Send it as "Authorization: Bearer <value>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(sessionUser) == "" {
			return fmt.Errorf("--user is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		provider, closeProvider, err := session.FromConfig(cfg.Session)
		if err != nil {
			return err
		}
		defer closeProvider() // nolint:errcheck // best-effort cleanup

		var credential string
		switch p := provider.(type) {
		case *session.JWTProvider:
			credential, err = p.Sign(sessionUser, sessionTTL, time.Now())
		case *session.RedisProvider:
			credential, err = p.Create(cmd.Context(), sessionUser, sessionTTL)
		default:
			return fmt.Errorf("provider %q cannot create sessions", cfg.Session.Provider)
		}
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), credential)
		return err
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionCreateCmd)

	sessionCreateCmd.Flags().StringVar(&sessionUser, "user", "", "user ID for the session")
	sessionCreateCmd.Flags().DurationVar(&sessionTTL, "ttl", time.Hour, "session lifetime")
}
