package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"bicodown/pkg/logger"
	"bicodown/pkg/models"
	"bicodown/pkg/ratelimit"
	"bicodown/pkg/storage"
)

// DownloadJob represents a single picture to fetch
type DownloadJob struct {
	URL   string
	Name  string
	Uname string
}

// DownloadResult represents the result of a download job
type DownloadResult struct {
	Job      DownloadJob
	Success  bool
	Skipped  bool
	Error    error
	Duration time.Duration
	Size     int
}

// Summary tallies the results of a pool's lifetime
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Fetcher downloads the bytes behind a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageStorage stores pictures by file name
type ImageStorage interface {
	Has(name string) bool
	Save(r io.Reader, name string) error
}

// Recorder is told about every finished download
type Recorder interface {
	ImageDownloaded()
	ImageFailed()
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     Fetcher
	store       ImageStorage
	rateLimiter ratelimit.Limiter
	recorder    Recorder
	logger      logger.Logger

	mu        sync.Mutex
	submitted map[string]bool
	stopOnce  sync.Once
}

// NewWorkerPool creates a new download worker pool
func NewWorkerPool(
	numWorkers int,
	fetcher Fetcher,
	store ImageStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan DownloadJob, numWorkers*2), // Buffer size = 2x workers
		resultQueue: make(chan DownloadResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		store:       store,
		rateLimiter: rateLimiter,
		logger:      log,
		submitted:   make(map[string]bool),
	}
}

// SetRecorder reports every finished job to r
func (wp *WorkerPool) SetRecorder(r Recorder) {
	wp.recorder = r
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting image worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop lets queued jobs finish, then closes Results. Safe to call twice.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.logger.Debug("Stopping image worker pool...")

		// Close job queue to signal no more jobs will be added
		close(wp.jobQueue)
		wp.wg.Wait()
		close(wp.resultQueue)
		wp.cancel()

		wp.logger.Debug("Image worker pool stopped")
	})
}

// Abort drops queued jobs and stops as soon as in-flight ones return
func (wp *WorkerPool) Abort() {
	wp.cancel()
	wp.Stop()
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	default:
	}

	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Image job queued", map[string]interface{}{
			"name": job.Name,
		})
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Enqueue submits every picture of batch that has not been submitted
// before and returns how many jobs were queued
func (wp *WorkerPool) Enqueue(ctx context.Context, batch []models.Comment) int {
	queued := 0
	for _, c := range batch {
		for _, u := range c.PictureURLs() {
			if u == "" || ctx.Err() != nil {
				continue
			}
			name := storage.ImageName(c.Uname, u)

			wp.mu.Lock()
			dup := wp.submitted[name]
			wp.submitted[name] = true
			wp.mu.Unlock()
			if dup {
				continue
			}

			if err := wp.Submit(DownloadJob{URL: u, Name: name, Uname: c.Uname}); err != nil {
				return queued
			}
			queued++
		}
	}
	return queued
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

// Drain consumes Results until the pool stops, calling onResult for each
// one when it is non-nil, and delivers the tally on the returned channel
func (wp *WorkerPool) Drain(onResult func(DownloadResult)) <-chan Summary {
	done := make(chan Summary, 1)
	go func() {
		var sum Summary
		for result := range wp.resultQueue {
			switch {
			case result.Skipped:
				sum.Skipped++
			case result.Success:
				sum.Downloaded++
				sum.Bytes += int64(result.Size)
			default:
				sum.Failed++
			}
			if onResult != nil {
				onResult(result)
			}
		}
		done <- sum
	}()
	return done
}

// worker is the main worker routine
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		// Check if context is cancelled
		select {
		case <-wp.ctx.Done():
			wp.logger.DebugWithFields("Worker stopping - context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob handles a single download job
func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()
	result := DownloadResult{Job: job}

	if wp.store.Has(job.Name) {
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	data, err := wp.fetcher.Fetch(wp.ctx, job.URL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		wp.failed()

		wp.logger.WarnWithFields("Failed to download picture", map[string]interface{}{
			"worker_id": workerID,
			"url":       job.URL,
			"error":     err.Error(),
		})
		return result
	}

	result.Size = len(data)
	if err := wp.store.Save(bytes.NewReader(data), job.Name); err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		wp.failed()

		wp.logger.ErrorWithFields("Failed to save picture", map[string]interface{}{
			"worker_id": workerID,
			"name":      job.Name,
			"error":     err.Error(),
		})
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	if wp.recorder != nil {
		wp.recorder.ImageDownloaded()
	}

	wp.logger.DebugWithFields("Picture saved", map[string]interface{}{
		"worker_id": workerID,
		"name":      job.Name,
		"size":      result.Size,
		"duration":  result.Duration,
	})
	return result
}

func (wp *WorkerPool) failed() {
	if wp.recorder != nil {
		wp.recorder.ImageFailed()
	}
}
