package harvester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bicodown/pkg/bilibili"
	"bicodown/pkg/config"
	"bicodown/pkg/logger"
	"bicodown/pkg/models"
	"bicodown/pkg/ratelimit"
	"bicodown/pkg/retry"
	"bicodown/pkg/stats"

	"github.com/google/uuid"
)

const eventBuffer = 64

// errEmptyPage marks a page that came back without replies before the
// reported total was reached
var errEmptyPage = errors.New("empty comment page")

// Request describes one harvesting run
type Request struct {
	Target Target
	// Dir is the output directory handed to the sink
	Dir string
	// Sort is the reply order: 0 time, 1 likes, 2 replies
	Sort      int
	Overwrite bool
	// Seen and Downloaded carry state from an earlier run of the same
	// identifier; rpids in Seen are never persisted again
	Seen       []int64
	Downloaded int
	// RunID names the run in events and logs; empty generates one
	RunID string
}

// Harvester pages through the comment section of one piece of content
type Harvester struct {
	source     Source
	sink       Sink
	policy     config.HarvestConfig
	logger     logger.Logger
	sleep      ratelimit.SleepFunc
	checkpoint Checkpointer
	images     ImageQueue
	metrics    Metrics
	now        func() time.Time

	mu     sync.Mutex
	events <-chan Event
}

// Option configures a Harvester
type Option func(*Harvester)

// WithSleep replaces the wait between retries
func WithSleep(s ratelimit.SleepFunc) Option {
	return func(h *Harvester) { h.sleep = s }
}

// WithCheckpointer records progress after each persisted batch
func WithCheckpointer(c Checkpointer) Option {
	return func(h *Harvester) { h.checkpoint = c }
}

// WithImageQueue hands every persisted batch to q
func WithImageQueue(q ImageQueue) Option {
	return func(h *Harvester) { h.images = q }
}

// WithMetrics reports pagination outcomes to m
func WithMetrics(m Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// New creates a Harvester. policy supplies the retry and termination
// settings; pacing between requests is the source's concern.
func New(source Source, sink Sink, policy config.HarvestConfig, log logger.Logger, opts ...Option) *Harvester {
	if log == nil {
		log = logger.GetLogger()
	}
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	if policy.ConsecutiveEmptyLimit < 1 {
		policy.ConsecutiveEmptyLimit = 1
	}
	if policy.MaxFailedPages < 1 {
		policy.MaxFailedPages = 3
	}

	h := &Harvester{
		source:  source,
		sink:    sink,
		policy:  policy,
		logger:  log,
		sleep:   ratelimit.Sleep,
		metrics: nopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start runs req on a new goroutine. The returned channel is closed after
// the Completed event; consumers must drain it until then.
func (h *Harvester) Start(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event, eventBuffer)

	h.mu.Lock()
	h.events = ch
	h.mu.Unlock()

	go func() {
		defer close(ch)
		_, _ = h.run(ctx, req, ch)
	}()
	return ch
}

// Events returns the channel of the most recent Start, or nil
func (h *Harvester) Events() <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events
}

// Run harvests synchronously without emitting events. It returns an error
// only when the comment count cannot be fetched or the sink fails; single
// page failures are logged and skipped.
func (h *Harvester) Run(ctx context.Context, req Request) (*Result, error) {
	return h.run(ctx, req, nil)
}

// run holds the per-run state: seen set, region map, cursor and counters
type run struct {
	h     *Harvester
	req   Request
	ch    chan<- Event
	log   logger.Logger
	state State

	seen       map[int64]struct{}
	regions    *stats.Aggregator
	result     *Result
	started    time.Time
	total      int
	downloaded int
	persisted  bool
}

func (h *Harvester) run(ctx context.Context, req Request, ch chan<- Event) (*Result, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &run{
		h:       h,
		req:     req,
		ch:      ch,
		log:     h.logger.WithFields(map[string]interface{}{"identifier": req.Target.ID, "run_id": runID}),
		seen:    make(map[int64]struct{}, len(req.Seen)),
		regions: stats.NewAggregator(),
		started: h.now(),
		result: &Result{
			RunID:      runID,
			Identifier: req.Target.ID,
			Title:      req.Target.Title,
			OID:        req.Target.OID,
		},
		downloaded: req.Downloaded,
	}
	for _, rpid := range req.Seen {
		r.seen[rpid] = struct{}{}
	}

	r.log.InfoWithFields("Starting harvest", map[string]interface{}{
		"oid":     req.Target.OID,
		"title":   req.Target.Title,
		"sort":    req.Sort,
		"resumed": len(req.Seen) > 0,
	})

	err := r.harvest(ctx)
	if err != nil {
		r.result.Err = err
		r.emit(ctx, Event{Type: EventError, Err: err})
	}
	return r.finish(), err
}

func (r *run) transition(s State) {
	if r.state == s {
		return
	}
	r.log.DebugWithFields("State transition", map[string]interface{}{
		"from": r.state.String(),
		"to":   s.String(),
	})
	r.state = s
}

func (r *run) emit(ctx context.Context, ev Event) {
	if r.ch == nil {
		return
	}
	ev.RunID = r.result.RunID
	ev.Time = r.h.now()
	ev.Downloaded = r.downloaded
	ev.Total = r.total

	select {
	case r.ch <- ev:
	case <-ctx.Done():
	}
}

func (r *run) retryConfig(ctx context.Context) *retry.Config {
	return &retry.Config{
		MaxAttempts: r.h.policy.MaxRetries,
		Backoff:     &retry.ConstantBackoff{Delay: config.Seconds(r.h.policy.RequestRetryDelay)},
		RetryIf: func(err error) bool {
			return ctx.Err() == nil
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			r.h.metrics.Retry()
		},
		Context: ctx,
		Logger:  r.log,
		Sleep:   r.h.sleep,
	}
}

func (r *run) harvest(ctx context.Context) error {
	r.transition(StateFetchingCount)
	total, err := retry.DoWithResult(func() (int, error) {
		return r.h.source.FetchCommentCount(ctx, r.req.Target.OID)
	}, r.retryConfig(ctx))
	if err != nil {
		if ctx.Err() != nil {
			r.transition(StateAborted)
			return nil
		}
		r.log.WithError(err).Error("Failed to fetch comment count")
		return fmt.Errorf("fetch comment count: %w", err)
	}
	r.total = total
	r.result.Total = total

	if total == 0 {
		r.log.Info("No comments to harvest")
		r.result.NoComments = true
		r.transition(StateCompleted)
		return nil
	}

	var (
		page             = 1
		cursor           string
		consecutiveEmpty int
		failedPages      int
	)
	limit := r.h.policy.ConsecutiveEmptyLimit

	for {
		if ctx.Err() != nil {
			r.abort(page)
			return nil
		}

		r.transition(StateFetchingPage)
		var (
			payload *bilibili.CommentPage
			drained bool
		)
		err := retry.Do(func() error {
			p, err := r.h.source.FetchComments(ctx, bilibili.CommentQuery{
				OID:    r.req.Target.OID,
				Page:   page,
				Sort:   r.req.Sort,
				Offset: cursor,
			})
			if err != nil {
				return err
			}
			if p.Empty() {
				consecutiveEmpty++
				r.h.metrics.EmptyPage()
				if consecutiveEmpty >= limit && r.downloaded >= r.total {
					drained = true
					return nil
				}
				return errEmptyPage
			}
			payload = p
			return nil
		}, r.retryConfig(ctx))
		r.result.Pages++

		if ctx.Err() != nil {
			r.abort(page)
			return nil
		}
		if drained {
			r.log.WithField("page", page).Info("Reached the end of the comment section")
			r.transition(StateCompleted)
			return nil
		}
		if err != nil {
			if errors.Is(err, errEmptyPage) && consecutiveEmpty >= limit {
				r.log.WarnWithFields("Platform stopped returning comments before the reported total", map[string]interface{}{
					"page":       page,
					"downloaded": r.downloaded,
					"total":      r.total,
				})
				r.transition(StateCompleted)
				return nil
			}

			failedPages++
			r.result.SkippedPages++
			r.h.metrics.PageSkipped()
			r.log.WithError(err).WithFields(map[string]interface{}{
				"page":         page,
				"failed_pages": failedPages,
			}).Warn("Skipping page after exhausting retries")
			r.emit(ctx, Event{Type: EventError, Page: page, Err: err})

			if failedPages >= r.h.policy.MaxFailedPages {
				r.log.WithField("failed_pages", failedPages).Warn("Too many consecutive failed pages, stopping")
				r.transition(StateCompleted)
				return nil
			}
			page++
			continue
		}

		failedPages = 0
		consecutiveEmpty = 0
		// the legacy endpoint pages by number and returns no offset
		if next := payload.NextOffset(); next != "" {
			cursor = next
		}
		r.h.metrics.PageFetched()
		r.emit(ctx, Event{Type: EventPageFetched, Page: page, Replies: len(payload.Replies)})

		r.transition(StateExpandingReplies)
		batch := r.collect(ctx, payload)
		if ctx.Err() != nil {
			r.log.WithField("dropped", len(batch)).Debug("Dropping unpersisted batch")
			r.abort(page)
			return nil
		}

		r.transition(StatePersisting)
		if err := r.persist(ctx, page, cursor, batch); err != nil {
			return err
		}
		logger.LogPageProgress(r.log, r.req.Target.ID, page, r.downloaded, r.total)
		if payload.End() {
			r.log.WithField("page", page).Info("Platform reported the last page")
			r.transition(StateCompleted)
			return nil
		}
		page++
	}
}

func (r *run) abort(page int) {
	r.log.WithField("page", page).Warn("Harvest cancelled")
	r.transition(StateAborted)
}

// collect flattens a page into new comments: pinned replies with their
// inline replies, then every regular reply with its full reply tree
func (r *run) collect(ctx context.Context, payload *bilibili.CommentPage) []models.Comment {
	var batch []models.Comment
	add := func(reply bilibili.Reply) {
		if _, ok := r.seen[reply.RPID]; ok {
			return
		}
		r.seen[reply.RPID] = struct{}{}
		c := models.FromReply(reply)
		c.ContainerID = r.req.Target.ID
		batch = append(batch, c)
	}

	for _, top := range payload.TopReplies {
		add(top)
		for _, sub := range top.Replies {
			add(sub)
		}
	}

	for _, reply := range payload.Replies {
		add(reply)

		if reply.RCount > 0 && len(reply.Replies) < reply.RCount {
			subs, err := r.expand(ctx, reply.RPID)
			if ctx.Err() != nil {
				return batch
			}
			if err != nil {
				r.log.WithError(err).WithFields(map[string]interface{}{
					"root":    reply.RPID,
					"fetched": len(subs),
				}).Warn("Failed to expand replies, keeping inline ones")
				subs = append(subs, reply.Replies...)
			}
			for _, sub := range subs {
				add(sub)
			}
			continue
		}

		for _, sub := range reply.Replies {
			add(sub)
		}
	}
	return batch
}

// expand fetches every sub-reply page under root until an empty one
func (r *run) expand(ctx context.Context, root int64) ([]bilibili.Reply, error) {
	var all []bilibili.Reply
	for pn := 1; ; pn++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		replies, err := retry.DoWithResult(func() ([]bilibili.Reply, error) {
			return r.h.source.FetchSubReplies(ctx, r.req.Target.OID, root, pn)
		}, r.retryConfig(ctx))
		if err != nil {
			return all, err
		}
		if len(replies) == 0 {
			return all, nil
		}
		all = append(all, replies...)
	}
}

func (r *run) persist(ctx context.Context, page int, cursor string, batch []models.Comment) error {
	if len(batch) == 0 {
		r.log.WithField("page", page).Debug("Page held only known comments")
		return nil
	}

	overwrite := r.req.Overwrite && !r.persisted
	written, err := r.h.sink.Upsert(r.req.Target.ID, batch, r.req.Dir, r.req.Target.Title, overwrite)
	if err != nil {
		r.log.WithError(err).WithField("page", page).Error("Failed to persist comments")
		return fmt.Errorf("persist page %d: %w", page, err)
	}
	r.persisted = true
	r.downloaded += len(batch)
	r.result.Persisted += written
	r.h.metrics.CommentsPersisted(written)

	touched := make(map[string]*stats.RegionStat)
	rpids := make([]int64, 0, len(batch))
	for i := range batch {
		region := r.regions.Add(&batch[i])
		touched[region.Name] = region
		rpids = append(rpids, batch[i].RPID)
	}

	r.emit(ctx, Event{Type: EventCommentsPersisted, Page: page, Persisted: written})
	for _, region := range touched {
		r.emit(ctx, Event{Type: EventRegionUpdated, Page: page, Region: region})
	}

	if r.h.checkpoint != nil {
		if err := r.h.checkpoint.Record(page, cursor, rpids, r.downloaded); err != nil {
			r.log.WithError(err).Warn("Failed to update checkpoint")
		}
	}
	if r.h.images != nil {
		if queued := r.h.images.Enqueue(ctx, batch); queued > 0 {
			r.log.WithField("images", queued).Debug("Queued pictures for download")
		}
	}
	return nil
}

func (r *run) finish() *Result {
	if r.state != StateAborted && r.state != StateCompleted && r.state != StateIdle {
		// an error ended the run mid-way
		r.transition(StateAborted)
	}
	if r.state == StateIdle {
		r.transition(StateCompleted)
	}

	r.result.State = r.state
	r.result.Downloaded = r.downloaded
	r.result.Regions = r.regions.Snapshot()
	r.result.Duration = r.h.now().Sub(r.started)

	logger.LogHarvestSummary(r.log, r.req.Target.ID, r.req.Target.Title, r.state.String(), r.downloaded, r.total)

	ctx := context.Background()
	r.emit(ctx, Event{Type: EventCompleted, Result: r.result})
	return r.result
}
