package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"bicodown/pkg/harvester"
	"bicodown/pkg/identifier"
	"bicodown/pkg/ui"
)

var (
	// harvest command flags
	sortOrder      int
	overwrite      bool
	resumeHarvest  bool
	downloadImages bool
	metricsAddr    string
	useTUI         bool
	outputDir      string
	geoTemplate    string
	noMapping      bool
	maxRetries     int
	imageWorkers   int
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest <url-or-code>",
	Short: "Download every comment of a video, episode or season",
	Long: `Download the full comment section of one piece of content into
{output}/{id}_{title}/{id}.csv and print the busiest regions.

The target may be a BV shortcode, an av number, ep/ss ids or any bilibili.com URL
containing one of them.`,
	Example: `  # Harvest a video sorted by likes
  bicodown harvest BV1xx411c7mD

  # Newest first, into a custom directory, with pictures
  bicodown harvest https://www.bilibili.com/video/BV1xx411c7mD --sort 0 -o ./data --images

  # Continue an interrupted run without duplicating rows
  bicodown harvest ep123456 --resume

  # Watch progress in the terminal UI and expose Prometheus metrics
  bicodown harvest ss4321 --tui --metrics-addr :9100`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)
	addHarvestFlags(harvestCmd)
	harvestCmd.Flags().BoolVar(&resumeHarvest, "resume", false, "resume from the last checkpoint")
	harvestCmd.Flags().BoolVar(&useTUI, "tui", false, "use the interactive terminal UI")
}

// addHarvestFlags registers the flags shared by harvest and uploader
func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&sortOrder, "sort", 1, "reply order: 0 time, 1 likes, 2 replies")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing CSV files and checkpoints")
	cmd.Flags().BoolVar(&downloadImages, "images", false, "download comment pictures")
	cmd.Flags().IntVar(&imageWorkers, "workers", 3, "concurrent picture downloads")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default ~/.bicodown/output)")
	cmd.Flags().StringVar(&geoTemplate, "geo-template", "", "GeoJSON FeatureCollection to annotate with region stats")
	cmd.Flags().BoolVar(&noMapping, "no-mapping", false, "skip the GeoJSON region map")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 2, "attempts per page before it is skipped")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	id, err := identifier.Parse(strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	s.serveMetrics(ctx)

	res, err := s.harvest(ctx, id, harvestOptions{resume: resumeHarvest, tui: useTUI})
	if err != nil {
		return err
	}
	if res.State == harvester.StateAborted {
		ui.PrintWarning("Harvest interrupted, rerun with --resume to continue")
	}
	return nil
}
