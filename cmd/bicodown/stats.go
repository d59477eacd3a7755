package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bicodown/pkg/geo"
	"bicodown/pkg/logger"
	"bicodown/pkg/stats"
	"bicodown/pkg/storage"
	"bicodown/pkg/ui"
)

var statsTop int

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <csv>",
	Short: "Rebuild region statistics from a harvested CSV",
	Long: `Reload a dataset written by 'harvest', print the busiest regions and, when a
GeoJSON template is configured, write {id}.geojson next to the CSV.`,
	Example: `  bicodown stats ~/.bicodown/output/BV1xx411c7mD_title/BV1xx411c7mD.csv --geo-template china.json`,
	Args:    cobra.ExactArgs(1),
	RunE:    runStats,
}

// imagesCmd represents the images command
var imagesCmd = &cobra.Command{
	Use:   "images <csv>",
	Short: "Download every picture referenced by a harvested CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runImages,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(imagesCmd)
	statsCmd.Flags().IntVar(&statsTop, "top", 20, "number of regions to print (0 for all)")
	statsCmd.Flags().StringVar(&geoTemplate, "geo-template", "", "GeoJSON FeatureCollection to annotate")
	imagesCmd.Flags().IntVar(&imageWorkers, "workers", 3, "concurrent picture downloads")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	regions, err := stats.FromCSV(path)
	if err != nil {
		return err
	}

	printRegions(regions, statsTop)

	if cfg.Geo.Template == "" {
		return nil
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out, unmatched, err := geo.Annotate(cfg.Geo.Template, regions, id, filepath.Dir(path), log)
	if err != nil {
		return err
	}
	logger.LogUnmatchedRegions(log, unmatched)
	ui.PrintInfo("Region map", out)
	return nil
}

// printRegions prints the top n regions as a table
func printRegions(regions map[string]*stats.RegionStat, n int) {
	ranked := stats.Ranked(regions)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}

	fmt.Fprintf(ui.Output, "%-10s %9s %7s %9s %5s %5s %5s\n", "region", "comments", "users", "likes", "男", "女", "保密")
	for _, r := range ranked {
		fmt.Fprintf(ui.Output, "%-10s %9d %7d %9d %5d %5d %5d\n",
			r.Name, r.Comments, r.UserCount(), r.Likes,
			r.Sex[stats.SexMale], r.Sex[stats.SexFemale], r.Sex[stats.SexSecret])
	}
}

func runImages(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	comments, err := storage.ReadComments(args[0])
	if err != nil {
		return err
	}

	s := &session{cfg: cfg, log: log}
	pool, err := s.newImagePool(filepath.Join(filepath.Dir(args[0]), storage.ImageDirName))
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	pool.Start()
	done := pool.Drain(nil)
	queued := pool.Enqueue(ctx, comments)
	ui.PrintInfo("Pictures queued", fmt.Sprintf("%d from %d comments", queued, len(comments)))

	go func() {
		<-ctx.Done()
		pool.Abort()
	}()
	pool.Stop()
	sum := <-done

	ui.PrintSuccess(fmt.Sprintf("%d downloaded, %d skipped, %d failed", sum.Downloaded, sum.Skipped, sum.Failed))
	if sum.Failed > 0 {
		return fmt.Errorf("%d pictures failed", sum.Failed)
	}
	return ctx.Err()
}
