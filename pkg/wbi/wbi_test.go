package wbi

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docKeys = KeyPair{
	ImgKey: "7cd084941338484aae1ad9425b84077c",
	SubKey: "4932caff0ff746eab6f01bf08b70ac45",
}

const docMixinKey = "ea1db124af3c7062474693fa704f4ff8"

func TestMixinKey(t *testing.T) {
	assert.Equal(t, docMixinKey, MixinKey(docKeys))
	assert.Len(t, MixinKey(docKeys), 32)
}

func TestMixinKeyShortInput(t *testing.T) {
	// Indices past the end are skipped rather than panicking
	key := MixinKey(KeyPair{ImgKey: "abc"})
	assert.Equal(t, "cab", key)
	assert.Equal(t, "", MixinKey(KeyPair{}))
}

func TestSignDocumentedVector(t *testing.T) {
	params := url.Values{}
	params.Set("foo", "114")
	params.Set("bar", "514")
	params.Set("zab", "1919810")

	got := Sign(params, docMixinKey, time.Unix(1702204169, 0))
	assert.Equal(t, "bar=514&foo=114&wts=1702204169&zab=1919810&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4", got)
	assert.Len(t, params, 3, "input must not gain wts")
}

func TestSignEncodesLikeFormQuery(t *testing.T) {
	params := url.Values{}
	params.Set("foo", "one two")
	params.Set("bar", "a(b)c!*'")

	got := Sign(params, docMixinKey, time.Unix(1700000000, 0))
	assert.Equal(t, "bar=abc&foo=one+two&wts=1700000000&w_rid=dac1c5ce95e079ab9ba18b150bcd33f9", got)
}

func TestSignPaginationParam(t *testing.T) {
	params := url.Values{}
	params.Set("oid", "170001")
	params.Set("type", "1")
	params.Set("pagination_str", `{"offset":""}`)

	got := Sign(params, docMixinKey, time.Unix(1700000000, 0))
	assert.Equal(t,
		"oid=170001&pagination_str=%7B%22offset%22%3A%22%22%7D&type=1&wts=1700000000&w_rid=4b3e929b148b3677d6cf496dac97d00d",
		got)
}

func TestSignIsDeterministicAndSensitive(t *testing.T) {
	ts := time.Unix(1702204169, 0)
	base := url.Values{"oid": {"2"}, "type": {"1"}}

	a := Sign(base, docMixinKey, ts)
	b := Sign(base, docMixinKey, ts)
	assert.Equal(t, a, b)

	changed := url.Values{"oid": {"3"}, "type": {"1"}}
	assert.NotEqual(t, wRID(a), wRID(Sign(changed, docMixinKey, ts)))
	assert.NotEqual(t, wRID(a), wRID(Sign(base, docMixinKey, ts.Add(time.Second))))
	assert.NotEqual(t, wRID(a), wRID(Sign(base, "x"+docMixinKey[1:], ts)))
}

func wRID(query string) string {
	i := strings.LastIndex(query, "w_rid=")
	return query[i+len("w_rid="):]
}

func TestKeyFromURL(t *testing.T) {
	tests := map[string]string{
		"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png": "7cd084941338484aae1ad9425b84077c",
		"https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png?x=1": "4932caff0ff746eab6f01bf08b70ac45",
		"plainname.jpg": "plainname",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, KeyFromURL(in), in)
	}
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	keys  KeyPair
	err   error
}

func (f *countingFetcher) FetchWbiKeys(ctx context.Context) (KeyPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.keys, f.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestKeyCacheFreshnessWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	fetcher := &countingFetcher{keys: docKeys}
	cache := NewKeyCache(fetcher, WithClock(clock.Now))
	ctx := context.Background()

	assert.Equal(t, docKeys, cache.Keys(ctx))
	clock.Advance(599 * time.Second)
	assert.Equal(t, docKeys, cache.Keys(ctx))
	assert.Equal(t, 1, fetcher.calls)

	clock.Advance(time.Second)
	cache.Keys(ctx)
	assert.Equal(t, 2, fetcher.calls, "a pair at the window edge must be refreshed")
}

func TestKeyCacheFailureIsNotCached(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	fetcher := &countingFetcher{err: errors.New("nav down")}
	cache := NewKeyCache(fetcher, WithClock(clock.Now))
	ctx := context.Background()

	assert.Equal(t, KeyPair{}, cache.Keys(ctx))
	assert.Equal(t, KeyPair{}, cache.Keys(ctx))
	assert.Equal(t, 2, fetcher.calls)

	fetcher.err = nil
	fetcher.keys = docKeys
	assert.Equal(t, docKeys, cache.Keys(ctx))
}

func TestKeyCacheInvalidate(t *testing.T) {
	fetcher := &countingFetcher{keys: docKeys}
	cache := NewKeyCache(fetcher, WithTTL(time.Hour))
	ctx := context.Background()

	cache.Keys(ctx)
	cache.Invalidate()
	cache.Keys(ctx)
	assert.Equal(t, 2, fetcher.calls)
}

func TestSignerSignURL(t *testing.T) {
	fetcher := KeyFetcherFunc(func(ctx context.Context) (KeyPair, error) { return docKeys, nil })
	signer := NewSigner(NewKeyCache(fetcher), func() time.Time { return time.Unix(1702204169, 0) })

	signed, err := signer.SignURL(context.Background(), "https://api.bilibili.com/x/test?foo=114&bar=514&zab=1919810")
	require.NoError(t, err)
	assert.Equal(t,
		"https://api.bilibili.com/x/test?bar=514&foo=114&wts=1702204169&zab=1919810&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4",
		signed)

	_, err = signer.SignURL(context.Background(), "://bad")
	assert.Error(t, err)
}

func TestSignerWithEmptyKeysStillSigns(t *testing.T) {
	fetcher := KeyFetcherFunc(func(ctx context.Context) (KeyPair, error) { return KeyPair{}, errors.New("offline") })
	signer := NewSigner(NewKeyCache(fetcher), func() time.Time { return time.Unix(1, 0) })

	q := signer.SignValues(context.Background(), url.Values{"a": {"b"}})
	assert.True(t, strings.HasPrefix(q, "a=b&wts=1&w_rid="))
}
