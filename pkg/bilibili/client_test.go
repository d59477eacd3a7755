package bilibili

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bicodown/pkg/config"
	errs "bicodown/pkg/errors"
	"bicodown/pkg/logger"
	"bicodown/pkg/wbi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testImgKey = "7cd084941338484aae1ad9425b84077c"
	testSubKey = "4932caff0ff746eab6f01bf08b70ac45"
)

var frozen = time.Unix(1700000000, 0)

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func navHandler(t *testing.T, calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		writeJSON(t, w, map[string]interface{}{
			"code":    -101,
			"message": "账号未登录",
			"data": map[string]interface{}{
				"isLogin": false,
				"wbi_img": map[string]string{
					"img_url": "https://i0.hdslb.com/bfs/wbi/" + testImgKey + ".png",
					"sub_url": "https://i0.hdslb.com/bfs/wbi/" + testSubKey + ".png",
				},
			},
		})
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) (*Client, *logger.TestLogger) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	log := logger.NewTestLogger()
	opts = append([]Option{WithBaseURL(server.URL), WithClock(func() time.Time { return frozen })}, opts...)
	client := NewClient(config.BilibiliConfig{Cookie: "SESSDATA=abc", RequestTimeout: 5}, log, opts...)
	return client, log
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(config.BilibiliConfig{}, logger.NewNopLogger())

	assert.Equal(t, APIBaseURL, client.baseURL)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, config.DefaultUserAgent, client.headers["User-Agent"])
	_, hasCookie := client.headers["Cookie"]
	assert.False(t, hasCookie)

	client.SetCookie("a=b")
	assert.Equal(t, "a=b", client.headers["Cookie"])
	client.SetCookie("")
	_, hasCookie = client.headers["Cookie"]
	assert.False(t, hasCookie)
}

func TestFetchCommentCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(countPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "170001", r.URL.Query().Get("oid"))
		assert.Equal(t, "1", r.URL.Query().Get("type"))
		assert.Equal(t, "SESSDATA=abc", r.Header.Get("Cookie"))
		assert.Equal(t, SiteURL, r.Header.Get("Origin"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		writeJSON(t, w, map[string]interface{}{"code": 0, "data": map[string]int{"count": 45}})
	})
	client, _ := newTestClient(t, mux)

	count, err := client.FetchCommentCount(context.Background(), 170001)
	require.NoError(t, err)
	assert.Equal(t, 45, count)
}

func TestEnvelopeRejections(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		message  string
		wantType errs.ErrorType
	}{
		{"missing content", -404, "啥都木有", errs.ErrorTypePlatformRejection},
		{"risk control", -412, "请求被拦截", errs.ErrorTypeRateLimit},
		{"closed comments", 12002, "评论区已关闭", errs.ErrorTypePlatformRejection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc(countPath, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, map[string]interface{}{"code": tt.code, "message": tt.message})
			})
			client, log := newTestClient(t, mux)

			_, err := client.FetchCommentCount(context.Background(), 1)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			assert.Equal(t, tt.code, errs.CodeOf(err))
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, log.HasMessage("platform rejected request"))
		})
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		wantType errs.ErrorType
	}{
		{http.StatusPreconditionFailed, errs.ErrorTypeRateLimit},
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit},
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusBadGateway, errs.ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc(countPath, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			client, _ := newTestClient(t, mux)

			_, err := client.FetchCommentCount(context.Background(), 1)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			assert.Equal(t, tt.status, errs.CodeOf(err))
		})
	}
}

func TestMalformedJSONIsParsingError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(countPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	client, log := newTestClient(t, mux)

	_, err := client.FetchCommentCount(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))

	errorLogs := log.GetMessagesByLevel("ERROR")
	require.NotEmpty(t, errorLogs)
	assert.Equal(t, "{not json", errorLogs[0].Fields["body_preview"])
}

func TestGzipBodyIsDecompressed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(countPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip, deflate", r.Header.Get("Accept-Encoding"))
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte(`{"code":0,"data":{"count":7}}`))
		require.NoError(t, gz.Close())

		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	})
	client, _ := newTestClient(t, mux)

	count, err := client.FetchCommentCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestDecodeBody(t *testing.T) {
	plain := []byte(`{"code":0}`)

	out, err := decodeBody(plain, "gzip")
	require.NoError(t, err)
	assert.Equal(t, plain, out, "already-decoded JSON passes through")

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(plain)
	require.NoError(t, zw.Close())

	out, err = decodeBody(buf.Bytes(), "deflate")
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	_, err = decodeBody([]byte{0x1f, 0x00, 0x01}, "gzip")
	assert.Error(t, err)
}

func TestFetchCommentsLegacy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(replyPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "3", q.Get("pn"))
		assert.Equal(t, "1", q.Get("sort"))
		writeJSON(t, w, map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"replies": []map[string]interface{}{
					{
						"rpid":   101,
						"oid":    170001,
						"mid":    9,
						"rcount": 2,
						"member": map[string]interface{}{
							"uname":      "alice",
							"sex":        "女",
							"level_info": map[string]int{"current_level": 5},
						},
						"content":       map[string]interface{}{"message": "hi", "pictures": []map[string]string{{"img_src": "https://i0.hdslb.com/a.jpg"}}},
						"reply_control": map[string]interface{}{"location": "IP属地：上海", "following": true},
					},
				},
				"cursor": map[string]interface{}{"pagination_reply": map[string]string{"next_offset": "CURSOR"}},
			},
		})
	})
	client, _ := newTestClient(t, mux)

	page, err := client.FetchComments(context.Background(), CommentQuery{OID: 170001, Page: 3, Sort: 1})
	require.NoError(t, err)
	require.Len(t, page.Replies, 1)

	r := page.Replies[0]
	assert.Equal(t, int64(101), r.RPID)
	assert.Equal(t, "alice", r.Member.Uname)
	assert.Equal(t, 5, r.Member.LevelInfo.CurrentLevel)
	assert.Equal(t, "IP属地：上海", r.ReplyControl.Location)
	assert.True(t, r.ReplyControl.Following)
	assert.Equal(t, "https://i0.hdslb.com/a.jpg", r.Content.Pictures[0].ImgSrc)
	assert.Equal(t, "CURSOR", page.NextOffset())
	assert.False(t, page.Empty())
}

func TestFetchCommentsFallsBackToSignedEndpoint(t *testing.T) {
	var navCalls int32
	var mainQuery url.Values
	var rawQuery string

	mux := http.NewServeMux()
	mux.HandleFunc(navPath, navHandler(t, &navCalls))
	mux.HandleFunc(replyPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"code": -412, "message": "请求被拦截"})
	})
	mux.HandleFunc(mainPath, func(w http.ResponseWriter, r *http.Request) {
		mainQuery = r.URL.Query()
		rawQuery = r.URL.RawQuery
		writeJSON(t, w, map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{"replies": []map[string]interface{}{{"rpid": 1}}},
		})
	})
	var waits []time.Duration
	client, _ := newTestClient(t, mux, WithRetryDelay(5*time.Second, func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))

	page, err := client.FetchComments(context.Background(), CommentQuery{OID: 170001, Page: 1, Offset: "abc"})
	require.NoError(t, err)
	require.Len(t, page.Replies, 1)
	assert.Equal(t, []time.Duration{5 * time.Second}, waits, "fallback waits the retry delay once")

	assert.Equal(t, `{"offset":"abc"}`, mainQuery.Get("pagination_str"))
	assert.Equal(t, "3", mainQuery.Get("mode"))
	assert.Equal(t, mainWebLocation, mainQuery.Get("web_location"))
	assert.Equal(t, "1700000000", mainQuery.Get("wts"))

	params := url.Values{}
	params.Set("oid", "170001")
	params.Set("type", "1")
	params.Set("mode", "3")
	params.Set("plat", "1")
	params.Set("web_location", mainWebLocation)
	params.Set("pagination_str", `{"offset":"abc"}`)
	mixin := wbi.MixinKey(wbi.KeyPair{ImgKey: testImgKey, SubKey: testSubKey})
	assert.Equal(t, wbi.Sign(params, mixin, frozen), rawQuery)
	assert.Equal(t, int32(1), atomic.LoadInt32(&navCalls))
}

func TestFetchCommentsBothEndpointsFail(t *testing.T) {
	var navCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(navPath, navHandler(t, &navCalls))
	mux.HandleFunc(replyPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc(mainPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"code": -400, "message": "invalid signature"})
	})
	client, _ := newTestClient(t, mux, WithRetryDelay(0, nil))

	_, err := client.FetchComments(context.Background(), CommentQuery{OID: 1, Page: 1})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypePlatformRejection, errs.TypeOf(err))
	assert.Equal(t, -400, errs.CodeOf(err))
}

func TestFetchCommentsFallbackRespectsCancellation(t *testing.T) {
	var mainCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(replyPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc(mainPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mainCalls, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	client, _ := newTestClient(t, mux, WithRetryDelay(time.Second, func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := client.FetchComments(ctx, CommentQuery{OID: 1, Page: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&mainCalls))
}

func TestSignedRequestsShareKeys(t *testing.T) {
	var navCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(navPath, navHandler(t, &navCalls))
	mux.HandleFunc(subReplyPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "55", q.Get("root"))
		assert.Equal(t, "20", q.Get("ps"))
		assert.NotEmpty(t, q.Get("w_rid"))
		writeJSON(t, w, map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{"replies": []map[string]interface{}{{"rpid": 56, "parent": 55}}},
		})
	})
	client, _ := newTestClient(t, mux)

	for pn := 1; pn <= 3; pn++ {
		replies, err := client.FetchSubReplies(context.Background(), 1, 55, pn)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Equal(t, int64(55), replies[0].Parent)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&navCalls))
}

func TestFetchWbiKeysWithoutKeys(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(navPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"code": -101, "data": map[string]interface{}{}})
	})
	client, _ := newTestClient(t, mux)

	_, err := client.FetchWbiKeys(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeSignatureUnavailable, errs.TypeOf(err))
}

func TestFetchVideoInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(viewPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BV17x411w7KC", r.URL.Query().Get("bvid"))
		assert.Equal(t, SiteURL+"/video/BV17x411w7KC", r.Header.Get("Referer"))
		writeJSON(t, w, map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"aid":   170001,
				"bvid":  "BV17x411w7KC",
				"title": "保护环境",
				"owner": map[string]interface{}{"mid": 2, "name": "碧诗"},
				"stat":  map[string]int64{"view": 10, "reply": 45},
			},
		})
	})
	client, _ := newTestClient(t, mux)

	info, err := client.FetchVideoInfo(context.Background(), "BV17x411w7KC")
	require.NoError(t, err)
	assert.Equal(t, int64(170001), info.AID)
	assert.Equal(t, "保护环境", info.Title)
	assert.Equal(t, "碧诗", info.Owner.Name)
	assert.Equal(t, int64(45), info.Stat["reply"])
}

func seasonPayload() map[string]interface{} {
	return map[string]interface{}{
		"code": 0,
		"result": map[string]interface{}{
			"season_id": 33,
			"title":     "Season Title",
			"evaluate":  "about",
			"up_info":   map[string]interface{}{"mid": 7, "uname": "studio"},
			"episodes": []map[string]interface{}{
				{"id": 100, "aid": 1000, "bvid": "BV1xx411c7mD", "long_title": "", "share_copy": "Share One"},
				{"id": 101, "aid": 1001, "long_title": "Long Two"},
			},
		},
	}
}

func TestFetchEpisodeInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(seasonPath, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("ep_id"))
		writeJSON(t, w, seasonPayload())
	})
	client, _ := newTestClient(t, mux)

	info, err := client.FetchEpisodeInfo(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.AID)
	assert.Equal(t, "Share One", info.Title)
	assert.Equal(t, "Season Title", info.SeriesTitle)

	info, err = client.FetchEpisodeInfo(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, "Long Two", info.Title)

	_, err = client.FetchEpisodeInfo(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
}

func TestFetchSeasonInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(seasonPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "33", r.URL.Query().Get("season_id"))
		writeJSON(t, w, seasonPayload())
	})
	client, _ := newTestClient(t, mux)

	info, err := client.FetchSeasonInfo(context.Background(), 33)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.AID)
	assert.Equal(t, "Season Title", info.Title)
	assert.Equal(t, int64(100), info.EpID)
	assert.Equal(t, 2, info.TotalEpisodes)
}

func TestFetchVideoList(t *testing.T) {
	var navCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(navPath, navHandler(t, &navCalls))
	mux.HandleFunc(arcPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("mid"))
		assert.Equal(t, "click", q.Get("order"))
		assert.Equal(t, "30", q.Get("ps"))
		assert.Equal(t, SpaceURL+"/2/video", r.Header.Get("Referer"))
		writeJSON(t, w, map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"list": map[string]interface{}{"vlist": []map[string]interface{}{{"aid": 1, "bvid": "BV1xx411c7mQ", "title": "one"}}},
				"page": map[string]int{"pn": 1, "ps": 30, "count": 1},
			},
		})
	})
	client, _ := newTestClient(t, mux)

	list, err := client.FetchVideoList(context.Background(), 2, 1, "click")
	require.NoError(t, err)
	require.Len(t, list.List.Vlist, 1)
	assert.Equal(t, "BV1xx411c7mQ", list.List.Vlist[0].BVID)
	assert.Equal(t, 1, list.Page.Count)
}

type recordingObserver struct {
	mu         sync.Mutex
	requests   []string
	rejections []int
}

func (o *recordingObserver) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, endpoint)
}

func (o *recordingObserver) ObserveRejection(endpoint string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejections = append(o.rejections, code)
}

type countingPacer struct{ n int32 }

func (p *countingPacer) Wait(ctx context.Context) error {
	atomic.AddInt32(&p.n, 1)
	return ctx.Err()
}

func TestPacerAndObserver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(countPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"code": -352, "message": "风控校验失败"})
	})
	obs := &recordingObserver{}
	pacer := &countingPacer{}
	client, _ := newTestClient(t, mux, WithObserver(obs), WithPacer(pacer))

	_, err := client.FetchCommentCount(context.Background(), 1)
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&pacer.n))
	assert.Equal(t, []string{"count"}, obs.requests)
	assert.Equal(t, []int{-352}, obs.rejections)
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc(countPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	client, _ := newTestClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchCommentCount(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestPaginationOffset(t *testing.T) {
	assert.Equal(t, `{"offset":""}`, PaginationOffset(""))
	assert.Equal(t, `{"offset":"x\"y"}`, PaginationOffset(`x"y`))
}
