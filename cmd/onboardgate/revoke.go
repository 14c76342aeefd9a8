package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heartlink/onboardgate/internal/bootstrap"
)

var (
	revokeSession string
	revokeUser    string
	revokeTTL     time.Duration
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Sign out a session or every session of a user",
	Long: `Revoke writes to the Redis revocation store the gate reads on every
request. --session signs out one session until its token would have expired
(--ttl). --user signs out every token of the user issued up to now; tokens
issued after a new sign-in are unaffected. Requires REDIS_URL.`,
	Example: `  onboardgate revoke --session 4b1f...
  onboardgate revoke --user 6f1c...`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if (revokeSession == "") == (revokeUser == "") {
			return errors.New("exactly one of --session or --user is required")
		}
		cfg, err := bootstrap.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required to revoke sessions")
		}

		client, err := bootstrap.OpenRedis(cmd.Context(), cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		store := bootstrap.NewRevocationStore(client)

		if revokeSession != "" {
			if err := store.Revoke(cmd.Context(), revokeSession, time.Now().Add(revokeTTL)); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked session %s\n", revokeSession)
			return err
		}
		if err := store.RevokeAllForUser(cmd.Context(), revokeUser, time.Now()); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked all sessions of user %s\n", revokeUser)
		return err
	},
}

func init() {
	revokeCmd.Flags().StringVarP(&revokeSession, "session", "s", "", "Session id to sign out")
	revokeCmd.Flags().StringVarP(&revokeUser, "user", "u", "", "User id to sign out everywhere")
	revokeCmd.Flags().DurationVar(&revokeTTL, "ttl", time.Hour, "How long a revoked session stays revoked")
}
