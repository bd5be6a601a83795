package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"safesight/internal/config"
	"safesight/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "safesight",
		Short: "Generate and cache safety takeaways for listings, locations and videos.",
		Long: `safesight turns reviews, community insights and video transcripts into a short
positive and negative safety checklist using Gemini, and caches the result so
repeat requests for the same subject never call the model twice.

Examples:
  safesight takeaway listing abc123 --input reviews.yaml
  safesight takeaway location --lat 40.71 --lng -74.00 --radius 500 --input insights.yaml
  safesight batch --input batch.yaml
  safesight serve`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.safesight.yaml)")

	rootCmd.AddCommand(NewTakeawayCmd())
	rootCmd.AddCommand(NewBatchCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewCacheCmd())
	rootCmd.AddCommand(NewMigrateCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if cfg.App.Debug {
		level = "debug"
	}
	logger.Configure(level, cfg.Logging.Format)

	if cfg.App.ConfigFile != "" {
		logger.Debug("Using config file", "path", cfg.App.ConfigFile)
	}
}
