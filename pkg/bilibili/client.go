package bilibili

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bicodown/pkg/config"
	errs "bicodown/pkg/errors"
	"bicodown/pkg/logger"
	"bicodown/pkg/ratelimit"
	"bicodown/pkg/wbi"
)

// Observer receives per-request measurements, typically the metrics collector
type Observer interface {
	ObserveRequest(endpoint string, status int, elapsed time.Duration)
	ObserveRejection(endpoint string, code int)
}

type noPacing struct{}

func (noPacing) Wait(ctx context.Context) error { return ctx.Err() }

// Client talks to the Bilibili web API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	logger     logger.Logger
	pacer      ratelimit.Waiter
	retryDelay time.Duration
	sleep      ratelimit.SleepFunc
	keys       *wbi.KeyCache
	signer     *wbi.Signer
	observer   Observer
	now        func() time.Time
	cacheOpts  []wbi.CacheOption
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another API host, for tests
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithPacer sets the wait performed before every request
func WithPacer(p ratelimit.Waiter) Option {
	return func(c *Client) { c.pacer = p }
}

// WithRetryDelay sets the fixed wait before falling back to the signed
// comment endpoint. sleep may be nil.
func WithRetryDelay(d time.Duration, sleep ratelimit.SleepFunc) Option {
	return func(c *Client) {
		c.retryDelay = d
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithObserver registers a request observer
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithClock sets the clock used for wts and key freshness
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithKeyCacheOptions passes options through to the WBI key cache
func WithKeyCacheOptions(opts ...wbi.CacheOption) Option {
	return func(c *Client) { c.cacheOpts = append(c.cacheOpts, opts...) }
}

// NewClient creates a client from the bilibili config section
func NewClient(cfg config.BilibiliConfig, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	timeout := config.Seconds(cfg.RequestTimeout)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Origin":          SiteURL,
			"Referer":         SiteURL,
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
			"Accept-Encoding": "gzip, deflate",
			"Sec-Fetch-Site":  "same-site",
			"Sec-Fetch-Mode":  "cors",
			"Sec-Fetch-Dest":  "empty",
		},
		baseURL: APIBaseURL,
		logger:  log,
		pacer:   noPacing{},
		sleep:   ratelimit.Sleep,
		now:     time.Now,
	}
	if cfg.Cookie != "" {
		c.headers["Cookie"] = cfg.Cookie
	}

	for _, opt := range opts {
		opt(c)
	}

	cacheOpts := append([]wbi.CacheOption{wbi.WithClock(c.now), wbi.WithLogger(log)}, c.cacheOpts...)
	c.keys = wbi.NewKeyCache(wbi.KeyFetcherFunc(c.FetchWbiKeys), cacheOpts...)
	c.signer = wbi.NewSigner(c.keys, c.now)

	return c
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetCookie replaces the session cookie
func (c *Client) SetCookie(cookie string) {
	if cookie == "" {
		delete(c.headers, "Cookie")
		return
	}
	c.headers["Cookie"] = cookie
}

// Keys exposes the WBI key cache
func (c *Client) Keys() *wbi.KeyCache {
	return c.keys
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request, endpoint string, extra map[string]string) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, value := range extra {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if c.observer != nil {
			c.observer.ObserveRequest(endpoint, 0, duration)
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "request failed")
	}

	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, resp.StatusCode, duration)
	}
	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, float64(duration.Microseconds())/1000)

	return resp, nil
}

// getJSON paces, performs a GET and decodes the JSON body into target
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, extra map[string]string, target interface{}) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}

	resp, err := c.doRequest(req, endpoint, extra)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	body, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: "failed to decompress response body",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: "failed to parse JSON",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	return nil
}

// decodeBody returns raw unchanged when it already looks like JSON; the
// transport does not decompress for us because Accept-Encoding is set
// explicitly.
func decodeBody(raw []byte, encoding string) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return raw, nil
	}

	switch strings.ToLower(encoding) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		// zlib-wrapped in practice, raw deflate now and then
		if r, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer r.Close()
			if out, err := io.ReadAll(r); err == nil {
				return out, nil
			}
		}
		r := flate.NewReader(bytes.NewReader(raw))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return raw, nil
	}
}

// checkResponseStatus checks the HTTP response status and returns appropriate errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		return errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "resource not found")
	case http.StatusPreconditionFailed, http.StatusTooManyRequests:
		c.logger.WarnWithFields("request blocked by rate limiting", fields)
		return errs.New(errs.ErrorTypeRateLimit, resp.StatusCode, "rate limit exceeded")
	default:
		c.logger.ErrorWithFields("unexpected HTTP status", fields)
		return errs.New(errs.ErrorTypeNetwork, resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}
}

// rejected reports a non-zero envelope code to the observer and the log
func (c *Client) rejected(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	code := errs.CodeOf(err)
	if c.observer != nil {
		c.observer.ObserveRejection(endpoint, code)
	}
	c.logger.WarnWithFields("platform rejected request", map[string]interface{}{
		"endpoint": endpoint,
		"code":     code,
		"error":    err.Error(),
	})
	return err
}
