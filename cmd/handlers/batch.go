package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"safesight/internal/config"
	"safesight/internal/core"
	"safesight/internal/logger"
	"safesight/internal/takeaway"
)

const defaultBatchConcurrency = 4

// finder is the part of the orchestrator batch runs need
type finder interface {
	FindOrGenerate(ctx context.Context, req takeaway.Request) *core.Takeaway
}

// NewBatchCmd creates the batch command
func NewBatchCmd() *cobra.Command {
	var (
		input       string
		format      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Find or generate takeaways for many subjects concurrently",
		Long: `Process every listing, location and video in a batch file. Subjects run
concurrently but share one inference rate limiter, so a large batch waits for
quota instead of failing.

Batch file (YAML or JSON):
  concurrency: 4
  listings:
    - listing_id: abc123
      display_name: Loft on Main
      reviews:
        - {text: "Felt safe walking home", rating: 5, author: Ana}
  locations:
    - {latitude: 40.7128, longitude: -74.006, radius: 500, insights: [{text: "Busy at night", sentiment: positive}]}
  videos:
    - {video_id: v42, title: "Night walk", transcript: "..."}

Example:
  safesight batch --input batch.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var file BatchFile
			if err := readInput(input, &file); err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") || file.Concurrency <= 0 {
				file.Concurrency = concurrency
			}
			return runBatchCmd(cmd.Context(), file, format)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Batch file (YAML or JSON)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", defaultBatchConcurrency, "Subjects processed in parallel")

	return cmd
}

func runBatchCmd(ctx context.Context, file BatchFile, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := runBatch(ctx, a.service, file.Requests(), file.Concurrency)
	if err != nil {
		return err
	}
	return renderBatch(os.Stdout, results, format)
}

// runBatch calls FindOrGenerate for every request with at most concurrency in flight.
// Results keep request order. Only cancellation of ctx stops the batch early.
func runBatch(ctx context.Context, svc finder, reqs []takeaway.Request, concurrency int) ([]*core.Takeaway, error) {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	log := logger.Get()
	start := time.Now()
	results := make([]*core.Takeaway, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = svc.FindOrGenerate(gctx, req)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}

	outcomes := make(map[core.Outcome]int)
	for _, t := range results {
		outcomes[t.Outcome]++
	}
	log.Info("Batch complete", "subjects", len(reqs), "duration", time.Since(start), "outcomes", outcomes)

	return results, nil
}

func renderBatch(w io.Writer, results []*core.Takeaway, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, t := range results {
		if err := renderTakeaway(w, t, format); err != nil {
			return err
		}
	}
	return nil
}
