package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"safesight/internal/config"
	"safesight/internal/takeaway"
)

// NewTakeawayCmd creates the takeaway command for single subjects
func NewTakeawayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "takeaway",
		Short: "Find or generate the safety takeaway for one subject",
		Long: `Return the cached takeaway for a listing, location or video, generating and
caching a new one when none is fresh.

Input files are YAML or JSON. Use "-" to read stdin.

Examples:
  safesight takeaway listing abc123 --input reviews.yaml
  safesight takeaway location --lat 40.7128 --lng -74.006 --radius 500 --input insights.yaml
  safesight takeaway video v42 --input video.json --format json`,
	}

	cmd.AddCommand(newTakeawayListingCmd())
	cmd.AddCommand(newTakeawayLocationCmd())
	cmd.AddCommand(newTakeawayVideoCmd())

	return cmd
}

func newTakeawayListingCmd() *cobra.Command {
	var input, format string

	cmd := &cobra.Command{
		Use:   "listing <listing-id>",
		Short: "Takeaway from guest reviews of a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in takeaway.ListingInput
			if err := readInput(input, &in); err != nil {
				return err
			}
			in.ListingID = args[0]
			return runTakeaway(cmd.Context(), in.Request(), format)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "YAML or JSON file with display_name and reviews")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	return cmd
}

func newTakeawayLocationCmd() *cobra.Command {
	var (
		input, format    string
		lat, lng, radius float64
	)

	cmd := &cobra.Command{
		Use:   "location",
		Short: "Takeaway from community insights around a point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in takeaway.LocationInput
			if err := readInput(input, &in); err != nil {
				return err
			}
			if cmd.Flags().Changed("lat") {
				in.Latitude = lat
			}
			if cmd.Flags().Changed("lng") {
				in.Longitude = lng
			}
			if cmd.Flags().Changed("radius") {
				in.Radius = radius
			}
			return runTakeaway(cmd.Context(), in.Request(), format)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "YAML or JSON file with insights")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (overrides the input file)")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude (overrides the input file)")
	cmd.Flags().Float64Var(&radius, "radius", 0, "Radius in meters (overrides the input file)")
	return cmd
}

func newTakeawayVideoCmd() *cobra.Command {
	var input, format string

	cmd := &cobra.Command{
		Use:   "video <video-id>",
		Short: "Takeaway from a short video's transcript and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in takeaway.VideoInput
			if err := readInput(input, &in); err != nil {
				return err
			}
			in.VideoID = args[0]
			return runTakeaway(cmd.Context(), in.Request(), format)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "YAML or JSON file with title, description, transcript and comments")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	return cmd
}

func runTakeaway(ctx context.Context, req takeaway.Request, format string) error {
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

	t := a.service.FindOrGenerate(ctx, req)
	return renderTakeaway(os.Stdout, t, format)
}
