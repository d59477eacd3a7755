// Package harvester pages through the comment section of one video, episode
// or season and hands deduplicated batches to a Sink.
//
// A run moves through the states
//
//	Idle → FetchingCount → FetchingPage → ExpandingReplies → Persisting → … → Completed
//
// and ends in Aborted from any state once its context is cancelled. The
// batch being assembled at that moment is dropped, so the dataset only ever
// holds fully persisted pages.
//
// Pagination:
//
// The cursor returned by each successful page is the only authoritative
// position. A failed page is retried with the identical page number and
// cursor; once retries are spent the page is skipped and the page counter
// moves on while the cursor stays put. An empty page ends the run when the
// reported total has been reached, otherwise it is retried like a failure.
//
// Usage:
//
//	h := harvester.New(client, storage.NewWriter(log), cfg.Harvest, log)
//	target, err := h.Resolve(ctx, id)
//	if err != nil {
//	    return err
//	}
//	for ev := range h.Start(ctx, harvester.Request{Target: *target, Dir: dir}) {
//	    // render progress
//	}
package harvester
