package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bicodown/pkg/bilibili"
	"bicodown/pkg/identifier"
	"bicodown/pkg/ui"
)

var (
	uploaderLimit    int
	uploaderListOnly bool
)

// uploaderCmd represents the uploader command
var uploaderCmd = &cobra.Command{
	Use:   "uploader <mid>",
	Short: "Harvest every video of an uploader",
	Long: `List the videos of an uploader through the signed space search endpoint,
then harvest the comments of each one in turn.`,
	Example: `  # Harvest the 10 most viewed videos
  bicodown uploader 2 --order click --limit 10

  # Only print the video list
  bicodown uploader 2 --list`,
	Args: cobra.ExactArgs(1),
	RunE: runUploader,
}

var videoOrder string

func init() {
	rootCmd.AddCommand(uploaderCmd)
	addHarvestFlags(uploaderCmd)
	uploaderCmd.Flags().IntVar(&uploaderLimit, "limit", 0, "harvest at most this many videos (0 for all)")
	uploaderCmd.Flags().BoolVar(&uploaderListOnly, "list", false, "list the videos without harvesting")
	uploaderCmd.Flags().StringVar(&videoOrder, "order", "", "video order: pubdate, click or stow")
}

func runUploader(cmd *cobra.Command, args []string) error {
	mid, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || mid <= 0 {
		return fmt.Errorf("invalid uploader mid %q", args[0])
	}

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if videoOrder != "" {
		cfg.Harvest.VideoOrder = videoOrder
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	s, err := newSession(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	s.serveMetrics(ctx)

	videos, err := listVideos(ctx, s.client, mid, cfg.Harvest.VideoOrder, uploaderLimit)
	if err != nil {
		return err
	}
	ui.PrintInfo("Videos", strconv.Itoa(len(videos)))

	if uploaderListOnly {
		for _, v := range videos {
			fmt.Fprintf(ui.Output, "%s  %6d comments  %s\n", v.BVID, v.Comment, v.Title)
		}
		return nil
	}

	var failed int
	for i, v := range videos {
		if ctx.Err() != nil {
			break
		}
		ui.PrintHighlight(fmt.Sprintf("[%d/%d] %s", i+1, len(videos), v.Title))

		if _, err := s.harvest(ctx, identifier.Video(v.BVID), harvestOptions{}); err != nil {
			failed++
			log.WithError(err).WithField("bvid", v.BVID).Error("Harvest failed")
			ui.PrintError("Harvest failed", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(videos))
	}
	return ctx.Err()
}

// listVideos pages through an uploader's videos until the reported count or
// limit is reached
func listVideos(ctx context.Context, client *bilibili.Client, mid int64, order string, limit int) ([]bilibili.VideoSummary, error) {
	var videos []bilibili.VideoSummary
	for page := 1; ; page++ {
		list, err := client.FetchVideoList(ctx, mid, page, order)
		if err != nil {
			return nil, fmt.Errorf("list videos of %d: %w", mid, err)
		}
		videos = append(videos, list.List.Vlist...)

		if limit > 0 && len(videos) >= limit {
			return videos[:limit], nil
		}
		if len(list.List.Vlist) == 0 || len(videos) >= list.Page.Count {
			return videos, nil
		}
	}
}
