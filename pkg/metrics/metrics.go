package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	KeywordsExplored    *prometheus.CounterVec
	ExploreDuration     prometheus.Histogram
	FrontierSize        prometheus.Gauge
	MatchedProducts     prometheus.Counter
	MatchRejections     *prometheus.CounterVec
	FilterRejections    *prometheus.CounterVec
	BatchQueueLength    prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		KeywordsExplored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_keywords_explored_total",
				Help: "Total number of keyword explorations.",
			},
			[]string{"result"}, // ok, error
		),
		ExploreDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_keyword_duration_seconds",
				Help:    "Duration of single keyword explorations.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
			},
		),
		FrontierSize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "research_frontier_size",
				Help: "Current number of keywords waiting in the frontier.",
			},
		),
		MatchedProducts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "research_matched_products_total",
				Help: "Total number of new matched products.",
			},
		),
		MatchRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_match_rejections_total",
				Help: "Sourcing candidates rejected by the visual matcher.",
			},
			[]string{"path"},
		),
		FilterRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_filter_rejections_total",
				Help: "Listings rejected by the filter pipeline.",
			},
			[]string{"reason"},
		),
		BatchQueueLength: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "research_batch_queue_length",
				Help: "Current number of keywords in the batch queue.",
			},
		),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

func (m *Metrics) ObserveKeyword(failed bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.KeywordsExplored.WithLabelValues(result).Inc()
	m.ExploreDuration.Observe(d.Seconds())
}

func (m *Metrics) SetFrontierSize(n int) {
	if m == nil {
		return
	}
	m.FrontierSize.Set(float64(n))
}

func (m *Metrics) AddMatchedProducts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MatchedProducts.Add(float64(n))
}

func (m *Metrics) IncMatchRejection(path string) {
	if m == nil {
		return
	}
	m.MatchRejections.WithLabelValues(path).Inc()
}

func (m *Metrics) IncFilterRejection(reason string) {
	if m == nil {
		return
	}
	m.FilterRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetBatchQueueLength(n int64) {
	if m == nil {
		return
	}
	m.BatchQueueLength.Set(float64(n))
}
