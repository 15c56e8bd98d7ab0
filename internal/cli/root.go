package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/config"
	"github.com/headline-goat/vwo-pulse/internal/logging"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded once per invocation by the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vwop",
	Short: "vwo-pulse - experiment dashboard and reports for VWO",
	Long: `vwo-pulse pulls A/B test campaigns from the VWO API, normalizes their
primary goal metrics and serves them on a small token-protected dashboard.

Running without a subcommand starts the server (same as 'vwop serve').`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: $VWOP_CONFIG or ./vwo-pulse.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	logging.Init(logging.Config{
		Level:  loaded.Log.Level,
		Format: loaded.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	cfg = loaded
	return nil
}
