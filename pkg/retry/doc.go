// Package retry runs an operation until it succeeds, a predicate declares
// the error final, the attempt budget runs out, or the context is cancelled.
//
// The harvester retries comment pages with a ConstantBackoff set to
// request_retry_delay; the image downloader uses ExponentialBackoff.
//
//	err := retry.Do(func() error {
//		page, err = client.FetchComments(ctx, q)
//		return err
//	}, &retry.Config{
//		MaxAttempts: cfg.Harvest.MaxRetries,
//		Backoff:     &retry.ConstantBackoff{Delay: 5 * time.Second},
//		Context:     ctx,
//	})
package retry
