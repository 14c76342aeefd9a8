package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heartlink/onboardgate/internal/bootstrap"
	"github.com/heartlink/onboardgate/jwt"
)

var (
	tokenUser    string
	tokenEmail   string
	tokenSession string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	Long: `Signs an HS256 access token with SUPABASE_JWT_SECRET, shaped like the
tokens Supabase issues. Use it to exercise a local gate with curl:

  curl -i localhost:8080/dashboard -H "Authorization: Bearer $(onboardgate token --user u1)"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := bootstrap.LoadConfig(configPath)
		if err != nil {
			return err
		}
		tokens, err := bootstrap.NewTokenManager(cfg.Auth)
		if err != nil {
			return err
		}
		token, err := tokens.Sign(jwt.Identity{
			UserID:    tokenUser,
			Email:     tokenEmail,
			SessionID: tokenSession,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "User id (subject)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim")
	tokenCmd.Flags().StringVar(&tokenSession, "session", "", "Session id claim")
	_ = tokenCmd.MarkFlagRequired("user")
}
