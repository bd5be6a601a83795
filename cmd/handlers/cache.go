package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"safesight/internal/config"
	"safesight/internal/jobs"
	"safesight/internal/logger"
)

// NewCacheCmd creates the cache management command
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the takeaway cache",
		Long:  `Show per-table statistics for the takeaway cache and delete expired rows.`,
	}

	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCachePruneCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics and storage information",
		Long:  `Display row counts, fresh (unexpired) row counts and storage size for each takeaway table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd.Context())
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete takeaways that expired before the retention period",
		Long: `Delete takeaway rows whose expiry is older than now minus the retention period.
Reads never return expired rows, so pruning only reclaims space.

Examples:
  safesight cache prune
  safesight cache prune --retention 0s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePrune(cmd.Context(), retention, cmd.Flags().Changed("retention"))
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 0, "Keep rows that expired within this period (default from config: 168h)")
	return cmd
}

func runCacheStats(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close cache store", err)
		}
	}()

	stats, err := backend.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache statistics: %w", err)
	}

	fmt.Println(titleStyle.Render("📊 Cache Statistics"))
	fmt.Printf("Driver: %s\n", stats.Driver)
	fmt.Printf("%-22s %10s %10s\n", "Table", "Rows", "Fresh")
	for _, t := range stats.Tables {
		fmt.Printf("%-22s %10d %10d\n", t.Table, t.Rows, t.Fresh)
	}
	fmt.Printf("%-22s %10d\n", "Total", stats.TotalRows())
	fmt.Printf("💾 Cache size: %.2f MB\n", float64(stats.SizeBytes)/1024/1024)

	return nil
}

func runCachePrune(ctx context.Context, retention time.Duration, override bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !override {
		retention = cfg.Cache.Prune.RetentionDuration()
	}
	if retention < 0 {
		return fmt.Errorf("retention cannot be negative")
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close cache store", err)
		}
	}()

	deleted, err := jobs.NewPruneJob(backend, retention, nil).Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}

	fmt.Printf("🗑️  Pruned %d expired takeaways (retention %s)\n", deleted, retention)
	return nil
}
