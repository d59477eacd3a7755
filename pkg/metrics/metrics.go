// Package metrics collects harvesting counters and exposes them for
// Prometheus scraping.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bicodown/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bicodown"

// Collector implements bilibili.Observer, harvester.Metrics and the image
// downloader's recorder on top of Prometheus instruments.
type Collector struct {
	pagesFetched      prometheus.Counter
	pagesSkipped      prometheus.Counter
	emptyPages        prometheus.Counter
	retries           prometheus.Counter
	commentsPersisted prometheus.Counter
	rejections        *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
	imagesDownloaded  prometheus.Counter
	imagesFailed      prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Comment pages fetched with at least one reply",
		}),
		pagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_skipped_total",
			Help:      "Comment pages skipped after exhausting retries",
		}),
		emptyPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_pages_total",
			Help:      "Comment pages that came back without replies",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Request retries",
		}),
		commentsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_persisted_total",
			Help:      "Comment rows written to datasets",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_rejections_total",
			Help:      "Responses carrying a non-zero envelope code",
		}, []string{"endpoint", "code"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses by endpoint and status code, 0 for transport errors",
		}, []string{"endpoint", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Platform request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		imagesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_downloaded_total",
			Help:      "Comment pictures saved to disk",
		}),
		imagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_failed_total",
			Help:      "Comment pictures that could not be downloaded",
		}),
	}

	reg.MustRegister(
		c.pagesFetched,
		c.pagesSkipped,
		c.emptyPages,
		c.retries,
		c.commentsPersisted,
		c.rejections,
		c.httpStatus,
		c.requestLatency,
		c.imagesDownloaded,
		c.imagesFailed,
	)
	return c
}

func (c *Collector) PageFetched() { c.pagesFetched.Inc() }
func (c *Collector) PageSkipped() { c.pagesSkipped.Inc() }
func (c *Collector) EmptyPage()   { c.emptyPages.Inc() }
func (c *Collector) Retry()       { c.retries.Inc() }

// CommentsPersisted adds n written rows
func (c *Collector) CommentsPersisted(n int) {
	c.commentsPersisted.Add(float64(n))
}

// ObserveRequest records one HTTP exchange
func (c *Collector) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	c.httpStatus.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveRejection records a non-zero envelope code
func (c *Collector) ObserveRejection(endpoint string, code int) {
	c.rejections.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// ImageDownloaded records a saved picture
func (c *Collector) ImageDownloaded() { c.imagesDownloaded.Inc() }

// ImageFailed records a picture that could not be fetched or saved
func (c *Collector) ImageFailed() { c.imagesFailed.Inc() }

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewMux serves Handler on /metrics
func NewMux(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
