package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobsPending  prometheus.Gauge
	payments     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Deferred job executions by kind and outcome.",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of deferred job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"kind"}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "jobs",
			Name:      "armed",
			Help:      "Deferred jobs currently waiting on a timer.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "payments",
			Name:      "transitions_total",
			Help:      "Payment status transitions.",
		}, []string{"status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.jobRuns, m.jobDuration, m.jobsPending, m.payments,
	)
	return m
}

// Middleware records request count, latency and in-flight gauge per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordJob(kind, status string, d time.Duration) {
	m.jobRuns.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) SetJobsArmed(n int) {
	m.jobsPending.Set(float64(n))
}

func (m *Metrics) RecordPayment(status string) {
	m.payments.WithLabelValues(status).Inc()
}
