package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"bicodown/pkg/bilibili"
	errs "bicodown/pkg/errors"
	"bicodown/pkg/logger"
	"bicodown/pkg/retry"

	"github.com/doyensec/safeurl"
)

// maxImageSize caps a single picture download
const maxImageSize = 32 << 20

// HTTPFetcher downloads pictures from the platform's image CDN
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	retry     retry.Config
	logger    logger.Logger
}

// NewSafeClient returns an HTTP client that refuses private, loopback and
// link-local destinations, checked after DNS resolution
func NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(cfg).Client
}

// NewHTTPFetcher creates a fetcher. A nil client means NewSafeClient(timeout).
func NewHTTPFetcher(client *http.Client, timeout time.Duration, userAgent string, log logger.Logger) *HTTPFetcher {
	if client == nil {
		client = NewSafeClient(timeout)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: userAgent,
		logger:    log,
		retry: retry.Config{
			MaxAttempts: 3,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:    time.Second,
				MaxDelay:     10 * time.Second,
				Multiplier:   2,
				JitterFactor: 0.1,
			},
			Logger: log,
		},
	}
}

// WithRetry replaces the retry policy, mostly for tests
func (f *HTTPFetcher) WithRetry(cfg retry.Config) *HTTPFetcher {
	f.retry = cfg
	return f
}

// Fetch downloads url, retrying transient failures
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	cfg := f.retry
	cfg.Context = ctx
	return retry.DoWithResult(func() ([]byte, error) {
		return f.fetchOnce(ctx, url)
	}, &cfg)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(errs.Wrap(errs.ErrorTypeParsing, err, "invalid image url"))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Referer", bilibili.SiteURL+"/")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "image request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e := errs.New(errs.ErrorTypeNetwork, resp.StatusCode, fmt.Sprintf("image request returned %s", resp.Status))
		if !errs.IsRetryableStatusCode(resp.StatusCode) {
			return nil, retry.Permanent(e)
		}
		return nil, e
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read image body")
	}
	if len(data) > maxImageSize {
		return nil, retry.Permanent(errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "image exceeds size limit"))
	}
	return data, nil
}
