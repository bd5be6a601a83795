package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"safesight/internal/config"
	"safesight/internal/jobs"
	"safesight/internal/logger"
	"safesight/internal/server"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the takeaway HTTP API",
		Long: `Start the HTTP API serving find-or-generate for listings, locations and videos.

The server provides:
  • POST /api/takeaways/listings/{listingID}
  • POST /api/takeaways/locations
  • POST /api/takeaways/videos/{videoID}
  • GET /health and GET /metrics

When cache.prune.enabled is set, expired rows older than cache.prune.retention
are deleted every cache.prune.interval.

Examples:
  # Start server on default port 8080
  safesight serve

  # Start on custom port
  safesight serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(port int, host string) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.backend.Ping(ctx); err != nil {
		return fmt.Errorf("cache store ping failed: %w", err)
	}

	if !a.client.HasCredential() {
		log.Warn("No Gemini API key configured; every miss will return default takeaways")
	}

	var pruner *jobs.PruneScheduler
	if cfg.Cache.Prune.Enabled {
		job := jobs.NewPruneJob(a.backend, cfg.Cache.Prune.RetentionDuration(), a.metrics)
		pruner, err = jobs.NewPruneScheduler(job, cfg.Cache.Prune.IntervalDuration())
		if err != nil {
			return err
		}
		if err := pruner.Start(); err != nil {
			return err
		}
		defer func() {
			if err := pruner.Stop(); err != nil {
				log.Error("Failed to stop prune scheduler", "error", err)
			}
		}()
	}

	srv := server.New(a.service, a.backend, a.metrics, serverCfg)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s", serverCfg.Address()))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed, forcing close", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		log.Info("Server stopped successfully")
	}

	return nil
}
