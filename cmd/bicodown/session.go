package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bicodown/internal/downloader"
	"bicodown/pkg/auth"
	"bicodown/pkg/bilibili"
	"bicodown/pkg/checkpoint"
	"bicodown/pkg/config"
	"bicodown/pkg/geo"
	"bicodown/pkg/harvester"
	"bicodown/pkg/identifier"
	"bicodown/pkg/logger"
	"bicodown/pkg/metrics"
	"bicodown/pkg/ratelimit"
	"bicodown/pkg/storage"
	"bicodown/pkg/ui"
	"bicodown/pkg/ui/tui"
)

// session is the process-wide wiring shared by every harvest of one command
type session struct {
	cfg       *config.Config
	log       logger.Logger
	client    *bilibili.Client
	writer    *storage.Writer
	registry  *prometheus.Registry
	collector *metrics.Collector
}

// harvestOptions are the per-command switches of a harvest
type harvestOptions struct {
	resume bool
	tui    bool
}

func newSession(cfg *config.Config, log logger.Logger) (*session, error) {
	if err := resolveCookie(cfg, log); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	pacer := ratelimit.NewPacer(config.Seconds(cfg.Harvest.RequestDelayMin), config.Seconds(cfg.Harvest.RequestDelayMax))
	client := bilibili.NewClient(cfg.Bilibili, log,
		bilibili.WithPacer(pacer),
		bilibili.WithRetryDelay(config.Seconds(cfg.Harvest.RequestRetryDelay), nil),
		bilibili.WithObserver(collector),
	)

	return &session{
		cfg:       cfg,
		log:       log,
		client:    client,
		writer:    storage.NewWriter(log),
		registry:  registry,
		collector: collector,
	}, nil
}

// resolveCookie fills cfg.Bilibili.Cookie from the credential store when the
// config, the environment and the flags left it empty. Running anonymously
// is allowed; the platform then returns a truncated comment list.
func resolveCookie(cfg *config.Config, log logger.Logger) error {
	if cfg.Bilibili.Cookie != "" && accountName == "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable")
		if accountName != "" {
			return err
		}
		return nil
	}

	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			return fmt.Errorf("account %q: %w (see 'bicodown auth list')", accountName, err)
		}
	} else {
		account, err = manager.RetrieveDefault()
		if err != nil {
			log.Warn("No Bilibili cookie configured, harvesting anonymously")
			ui.PrintWarning("No cookie found, comments may be incomplete")
			auth.ShowQuickGuide(ui.Output)
			return nil
		}
	}

	cfg.Bilibili.Cookie = account.Cookie
	if account.UserAgent != "" {
		cfg.Bilibili.UserAgent = account.UserAgent
	}
	log.WithField("account", account.Name).Info("Using stored credentials")
	return nil
}

// serveMetrics exposes the registry while ctx is alive
func (s *session) serveMetrics(ctx context.Context) {
	if s.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, s.cfg.Metrics.Addr, s.registry, s.log); err != nil {
			s.log.WithError(err).Error("Metrics server failed")
		}
	}()
}

// harvest runs the whole pipeline for one identifier: resolve, lay out the
// output directory, resume, page through comments, download pictures and
// annotate the region map
func (s *session) harvest(ctx context.Context, id identifier.ContentIdentifier, opts harvestOptions) (*harvester.Result, error) {
	cfg := s.cfg
	log := s.log.WithField("identifier", id.String())

	target, err := harvester.New(s.client, s.writer, cfg.Harvest, log).Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	dir, title, err := storage.ResolveOutputDir(cfg.Output.BaseDirectory, target.ID, target.Title)
	if err != nil {
		return nil, err
	}
	target.Title = title
	if cfg.Output.SaveContentInfo && target.Info != nil {
		if _, err := storage.SaveContentInfo(dir, target.Info, cfg.Output.Overwrite); err != nil {
			log.WithError(err).Warn("Failed to save content info")
		}
	}

	if !opts.tui {
		ui.PrintInfo("Target", fmt.Sprintf("%s %s (oid %d)", target.ID, target.Title, target.OID))
		ui.PrintInfo("Output", dir)
	}

	req := harvester.Request{
		Target:    *target,
		Dir:       dir,
		Sort:      cfg.Harvest.SortOrder,
		Overwrite: cfg.Output.Overwrite,
		RunID:     uuid.NewString(),
	}
	hopts := []harvester.Option{harvester.WithMetrics(s.collector)}

	var cpm *checkpoint.Manager
	if cfg.Checkpoint.Enabled {
		cpm, err = checkpoint.NewManager(target.ID)
		if err != nil {
			return nil, err
		}
		cpm.WithLogger(log)
		tracker, err := s.prepareCheckpoint(cpm, &req, opts.resume)
		if err != nil {
			return nil, err
		}
		hopts = append(hopts, harvester.WithCheckpointer(tracker))
	}

	var pool *downloader.WorkerPool
	var summary <-chan downloader.Summary
	if cfg.Download.Images {
		pool, err = s.newImagePool(filepath.Join(dir, storage.ImageDirName))
		if err != nil {
			return nil, err
		}
		pool.Start()
		summary = pool.Drain(nil)
		hopts = append(hopts, harvester.WithImageQueue(pool))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := harvester.New(s.client, s.writer, cfg.Harvest, log, hopts...)
	events := h.Start(runCtx, req)

	var display ui.Display = ui.NewProgressDisplay(ui.Output, target.ID, cfg.Logging.Level == "debug")
	if opts.tui {
		display = tui.NewTUI(target.ID+" "+target.Title, cancel)
	}
	res, displayErr := display.Run(events)
	if displayErr != nil {
		log.WithError(displayErr).Warn("Display failed")
	}
	if res == nil {
		return nil, errors.New("harvest ended without a result")
	}

	if pool != nil {
		if res.State == harvester.StateAborted {
			pool.Abort()
		} else {
			pool.Stop()
		}
		sum := <-summary
		ui.PrintInfo("Pictures", fmt.Sprintf("%d downloaded, %d skipped, %d failed", sum.Downloaded, sum.Skipped, sum.Failed))
	}

	if cpm != nil && res.State == harvester.StateCompleted && res.Err == nil {
		if err := cpm.Delete(); err != nil {
			log.WithError(err).Warn("Failed to remove checkpoint")
		}
	}

	if res.Err == nil && cfg.Harvest.Mapping && cfg.Geo.Template != "" && len(res.Regions) > 0 {
		path, unmatched, err := geo.Annotate(cfg.Geo.Template, res.Regions, target.ID, dir, log)
		if err != nil {
			log.WithError(err).Warn("Failed to write region map")
		} else {
			logger.LogUnmatchedRegions(log, unmatched)
			ui.PrintInfo("Region map", path)
		}
	}

	if notifications {
		ui.NewNotifier().NotifyResult(res)
	}
	return res, res.Err
}

// prepareCheckpoint loads the previous checkpoint on resume, or starts a new
// one. Overwrite always starts over.
func (s *session) prepareCheckpoint(cpm *checkpoint.Manager, req *harvester.Request, resume bool) (*checkpoint.Tracker, error) {
	if req.Overwrite && cpm.Exists() {
		if err := cpm.Backup(); err != nil {
			s.log.WithError(err).Warn("Failed to back up checkpoint")
		}
		_ = cpm.Delete()
	}

	if resume && !req.Overwrite && cpm.Exists() {
		cp, err := cpm.Load()
		if err != nil {
			return nil, err
		}
		req.Seen = cp.Seen()
		req.Downloaded = cp.Downloaded
		if cp.RunID != "" {
			req.RunID = cp.RunID
		}
		ui.PrintInfo("Resuming", fmt.Sprintf("%d comments already saved", cp.Downloaded))
		return cpm.Track(cp), nil
	}

	cp, err := cpm.Create(req.Target.ID, req.Target.OID, req.RunID)
	if err != nil {
		return nil, err
	}
	return cpm.Track(cp), nil
}

// newImagePool builds the picture worker pool over an image directory
func (s *session) newImagePool(dir string) (*downloader.WorkerPool, error) {
	store, err := storage.NewImageStore(dir)
	if err != nil {
		return nil, err
	}
	fetcher := downloader.NewHTTPFetcher(nil, s.cfg.Download.Timeout, s.cfg.Bilibili.UserAgent, s.log)
	limiter := ratelimit.NewTokenBucket(s.cfg.Download.ImagesPerMinute, time.Minute)

	pool := downloader.NewWorkerPool(s.cfg.Download.Workers, fetcher, store, limiter, s.log)
	if s.collector != nil {
		pool.SetRecorder(s.collector)
	}
	return pool, nil
}
