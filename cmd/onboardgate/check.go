package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/internal/bootstrap"
	"github.com/heartlink/onboardgate/middleware"
)

var (
	checkUser string
	checkPath string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one navigation against the configured backend",
	Long: `Check prints, as JSON, the decision the gate would take for --user
navigating to --path. Leave --user empty to check an anonymous visitor.`,
	Example: `  onboardgate check --user 6f1c... --path /dashboard`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !strings.HasPrefix(checkPath, "/") {
			return errors.New("--path must be an absolute path")
		}
		cfg, _, err := loadRuntimeConfig()
		if err != nil {
			return err
		}

		rt, err := bootstrap.NewRuntime(cmd.Context(), cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer rt.Close()

		var sess *onboardgate.Session
		if checkUser != "" {
			sess = &onboardgate.Session{UserID: checkUser}
		}
		d := rt.Gate().Evaluate(cmd.Context(), sess, checkPath)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(middleware.NewCheckResponse(d))
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkUser, "user", "u", "", "User id (empty for anonymous)")
	checkCmd.Flags().StringVarP(&checkPath, "path", "p", "/", "Path to evaluate")
}
