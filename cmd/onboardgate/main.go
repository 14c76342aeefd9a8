// Command onboardgate runs the onboarding gate in front of a web application
// and offers a few operator helpers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heartlink/onboardgate/internal/bootstrap"
)

var configPath string

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:           "onboardgate",
	Short:         "Onboarding gate for signed-in users",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `onboardgate redirects signed-in users who have not verified a phone
number or created a profile, and forwards everyone else to the application.

Configuration is read from --config (YAML) and overridden by environment
variables such as SUPABASE_JWT_SECRET, BACKEND_KIND and REDIS_URL.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/onboardgate.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(revokeCmd)
}

// loadRuntimeConfig reads the config and builds the matching logger.
func loadRuntimeConfig() (bootstrap.Config, *zap.Logger, error) {
	cfg, err := bootstrap.LoadConfig(configPath)
	if err != nil {
		return bootstrap.Config{}, nil, err
	}
	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return bootstrap.Config{}, nil, err
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
