package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string

	settings *config.Settings
	logger   *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bandcamp-verify",
	Short: "Check Bandcamp download codes against a logged-in account",
	Long: `bandcamp-verify checks Bandcamp download codes against the account
whose session cookies you supply, one code at a time with a random delay.

Credentials come from flags, the config file or BANDCAMP_CLIENT_ID,
BANDCAMP_SESSION, BANDCAMP_IDENTITY and BANDCAMP_CRUMB. Use "extract" to
read them from a local browser.

For the interactive interface, use: bandcamp-verify-tui`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		settings.ApplyEnv(os.Getenv)

		logger, err = logging.New(settings.Logging, logLevel, "stderr")
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "Path to config file (JSON or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(verifyCmd, extractCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
