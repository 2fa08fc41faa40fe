package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tierhost"

// PrometheusRecorder exports metrics through a Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	linksIssued     prometheus.Counter
	linksRedeemed   *prometheus.CounterVec
	linkCache       *prometheus.CounterVec
	redeemDuration  prometheus.Histogram
	fileOps         *prometheus.CounterVec
	derivedImages   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewPrometheus creates a recorder on a fresh registry that also carries
// the Go runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		linksIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_links_issued_total",
			Help:      "Temporary links issued.",
		}),
		linksRedeemed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_links_redeemed_total",
			Help:      "Temporary link redemptions by outcome.",
		}, []string{"outcome"}),
		linkCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_link_cache_lookups_total",
			Help:      "Temporary link cache lookups by result.",
		}, []string{"result"}),
		redeemDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "temp_link_redeem_duration_seconds",
			Help:      "Time spent resolving a temporary link.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		fileOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_operations_total",
			Help:      "File mutations by operation.",
		}, []string{"op"}),
		derivedImages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derived_images_total",
			Help:      "Derived image lookups by size and whether a render was needed.",
		}, []string{"size", "rendered"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_events_published_total",
			Help:      "Link events written to the stream by status.",
		}, []string{"status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) IncLinkIssued() { p.linksIssued.Inc() }

func (p *PrometheusRecorder) IncLinkRedeemed(outcome string) {
	p.linksRedeemed.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncLinkCacheHit()  { p.linkCache.WithLabelValues("hit").Inc() }
func (p *PrometheusRecorder) IncLinkCacheMiss() { p.linkCache.WithLabelValues("miss").Inc() }

func (p *PrometheusRecorder) ObserveRedeemDuration(d time.Duration) {
	p.redeemDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFileCreated() { p.fileOps.WithLabelValues("create").Inc() }
func (p *PrometheusRecorder) IncFileUpdated() { p.fileOps.WithLabelValues("update").Inc() }
func (p *PrometheusRecorder) IncFileDeleted() { p.fileOps.WithLabelValues("delete").Inc() }

func (p *PrometheusRecorder) IncDerivedImage(size int, rendered bool) {
	p.derivedImages.WithLabelValues(strconv.Itoa(size), strconv.FormatBool(rendered)).Inc()
}

func (p *PrometheusRecorder) IncEventPublished(status string) {
	p.eventsPublished.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
