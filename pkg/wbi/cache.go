package wbi

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"bicodown/pkg/logger"
)

// DefaultTTL is how long a fetched key pair stays fresh
const DefaultTTL = 600 * time.Second

// KeyFetcher retrieves the current key pair, usually from the nav endpoint
type KeyFetcher interface {
	FetchWbiKeys(ctx context.Context) (KeyPair, error)
}

// KeyFetcherFunc adapts a function to KeyFetcher
type KeyFetcherFunc func(ctx context.Context) (KeyPair, error)

// FetchWbiKeys calls f
func (f KeyFetcherFunc) FetchWbiKeys(ctx context.Context) (KeyPair, error) {
	return f(ctx)
}

// KeyCache holds one key pair and refreshes it once it is older than the
// TTL. It is safe for concurrent use by several harvesting runs.
type KeyCache struct {
	mu        sync.Mutex
	fetcher   KeyFetcher
	now       func() time.Time
	ttl       time.Duration
	keys      KeyPair
	fetchedAt time.Time
	log       logger.Logger
}

// CacheOption configures a KeyCache
type CacheOption func(*KeyCache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) CacheOption {
	return func(c *KeyCache) { c.now = now }
}

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *KeyCache) { c.ttl = ttl }
}

// WithLogger sets the logger used to report failed refreshes
func WithLogger(l logger.Logger) CacheOption {
	return func(c *KeyCache) { c.log = l }
}

// NewKeyCache creates an empty cache backed by fetcher
func NewKeyCache(fetcher KeyFetcher, opts ...CacheOption) *KeyCache {
	c := &KeyCache{
		fetcher: fetcher,
		now:     time.Now,
		ttl:     DefaultTTL,
		log:     logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Keys returns the cached pair while fresh, refreshing it otherwise. A
// failed refresh yields the empty pair and is not cached, so the next call
// tries again; the request signed with it is then rejected by the platform
// and retried by the caller.
func (c *KeyCache) Keys(ctx context.Context) KeyPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl {
		return c.keys
	}

	keys, err := c.fetcher.FetchWbiKeys(ctx)
	if err != nil || keys.Empty() {
		c.log.WithError(err).Warn("WBI key refresh failed, signing with empty keys")
		return KeyPair{}
	}

	c.keys = keys
	c.fetchedAt = now
	return keys
}

// Invalidate forces the next Keys call to refetch
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}

// KeyFromURL extracts a key from one of the nav endpoint's image URLs:
// the basename without extension.
func KeyFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Signer signs URLs with keys from a KeyCache
type Signer struct {
	cache *KeyCache
	now   func() time.Time
}

// NewSigner creates a Signer. now may be nil for time.Now.
func NewSigner(cache *KeyCache, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{cache: cache, now: now}
}

// SignURL returns rawURL with its query replaced by the signed query
func (s *Signer) SignURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.RawQuery = s.SignValues(ctx, u.Query())
	return u.String(), nil
}

// SignValues signs params with the current mixin key
func (s *Signer) SignValues(ctx context.Context, params url.Values) string {
	return Sign(params, MixinKey(s.cache.Keys(ctx)), s.now())
}
