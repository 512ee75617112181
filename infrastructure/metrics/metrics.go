package metrics

import (
	"net/http"
	"strconv"
	"time"

	"social_automation/domain/entities"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several bridges (or tests) in one process never collide.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Browser session metrics
	SessionsAcquired *prometheus.CounterVec
	SessionsReleased *prometheus.CounterVec
	SessionsOpen     *prometheus.GaugeVec

	// Selector metrics
	SelectorWins   *prometheus.CounterVec
	SelectorMisses *prometheus.CounterVec

	// Operation metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationRetries  *prometheus.CounterVec

	// Queue metrics
	QueueDepth prometheus.Gauge
}

// New creates a new metrics collector
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SessionsAcquired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_sessions_acquired_total",
				Help: "Browser sessions acquired",
			},
			[]string{"platform", "mode"},
		),
		SessionsReleased: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_sessions_released_total",
				Help: "Browser sessions released",
			},
			[]string{"platform"},
		),
		SessionsOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "browser_sessions_open",
				Help: "Browser sessions currently open",
			},
			[]string{"platform"},
		),

		SelectorWins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selector_strategy_wins_total",
				Help: "Selector resolutions by winning strategy index",
			},
			[]string{"platform", "target", "index"},
		),
		SelectorMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selector_exhausted_total",
				Help: "Targets for which no strategy matched",
			},
			[]string{"platform", "target"},
		),

		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operations_total",
				Help: "Operations by outcome",
			},
			[]string{"platform", "operation", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operation_duration_seconds",
				Help:    "Operation duration including retries",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180},
			},
			[]string{"platform", "operation"},
		),
		OperationRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operation_retries_total",
				Help: "Retried operation attempts",
			},
			[]string{"platform", "operation"},
		),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_queue_depth",
			Help: "Jobs waiting for a worker",
		}),
	}
}

// Registry - the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler - exposition endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionAcquired(platform entities.Platform, mode entities.BrowserMode) {
	m.SessionsAcquired.WithLabelValues(string(platform), string(mode)).Inc()
	m.SessionsOpen.WithLabelValues(string(platform)).Inc()
}

func (m *Metrics) SessionReleased(platform entities.Platform) {
	m.SessionsReleased.WithLabelValues(string(platform)).Inc()
	m.SessionsOpen.WithLabelValues(string(platform)).Dec()
}

func (m *Metrics) SelectorResolved(platform entities.Platform, target string, index int) {
	m.SelectorWins.WithLabelValues(string(platform), target, strconv.Itoa(index)).Inc()
}

func (m *Metrics) SelectorExhausted(platform entities.Platform, target string) {
	m.SelectorMisses.WithLabelValues(string(platform), target).Inc()
}

func (m *Metrics) OperationFinished(platform entities.Platform, op entities.Operation, kind entities.ErrorKind, d time.Duration) {
	outcome := "success"
	if kind != "" {
		outcome = string(kind)
	}
	m.Operations.WithLabelValues(string(platform), string(op), outcome).Inc()
	m.OperationDuration.WithLabelValues(string(platform), string(op)).Observe(d.Seconds())
}

func (m *Metrics) OperationRetried(platform entities.Platform, op entities.Operation) {
	m.OperationRetries.WithLabelValues(string(platform), string(op)).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
