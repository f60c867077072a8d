package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolReporter exposes the session pool counters to the collectors.
type PoolReporter interface {
	Size() int
	InUse() int
	AcquireFailures() int64
}

// Metrics holds all service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	requestDuration   *prometheus.HistogramVec
	detections        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stage_detection_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stage_detection_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		inferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stage_detection_inference_duration_seconds",
				Help:    "Time spent inside the model session",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stage_detection_detections_total",
				Help: "Detections returned by stage",
			},
			[]string{"stage"},
		),
	}

	m.registry.MustRegister(m.requests, m.requestDuration, m.inferenceDuration, m.detections)
	return m
}

// RegisterPool adds collectors that read the pool counters at scrape time.
func (m *Metrics) RegisterPool(pool PoolReporter) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "stage_detection_pool_size",
			Help: "Model sessions in the pool",
		},
		func() float64 { return float64(pool.Size()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "stage_detection_pool_sessions_in_use",
			Help: "Model sessions currently running a request",
		},
		func() float64 { return float64(pool.InUse()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "stage_detection_pool_acquire_failures_total",
			Help: "Session acquisitions abandoned before a session was free",
		},
		func() float64 { return float64(pool.AcquireFailures()) },
	))
}

func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveInference(elapsed time.Duration) {
	m.inferenceDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStageCounts(counts map[string]int) {
	for stage, n := range counts {
		m.detections.WithLabelValues(stage).Add(float64(n))
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
