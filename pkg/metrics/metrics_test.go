package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.PageFetched()
	c.PageFetched()
	c.PageSkipped()
	c.EmptyPage()
	c.Retry()
	c.Retry()
	c.Retry()
	c.CommentsPersisted(20)
	c.CommentsPersisted(5)
	c.ImageDownloaded()
	c.ImageFailed()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.pagesFetched))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.pagesSkipped))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.emptyPages))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.retries))
	assert.Equal(t, float64(25), testutil.ToFloat64(c.commentsPersisted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.imagesDownloaded))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.imagesFailed))
}

func TestObserveLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRequest("reply", 200, 150*time.Millisecond)
	c.ObserveRequest("reply", 412, 20*time.Millisecond)
	c.ObserveRejection("main", -352)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpStatus.WithLabelValues("reply", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpStatus.WithLabelValues("reply", "412")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rejections.WithLabelValues("main", "-352")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.requestLatency))
}

func TestMuxServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.PageFetched()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	NewMux(reg).ServeHTTP(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "bicodown_pages_fetched_total 1")
}
