package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Исходы приёма события
const (
	OutcomeAccepted     = "accepted"
	OutcomeInvalid      = "invalid"
	OutcomeNoIdentity   = "no_identity"
	OutcomeRateLimited  = "rate_limited"
	OutcomeStorageError = "storage_error"
)

// Metrics счётчики сервиса. Методы nil-получателя ничего не делают.
type Metrics struct {
	IngestTotal         *prometheus.CounterVec
	MetricQueriesTotal  *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics создаёт и регистрирует счётчики. nil registry - новый реестр с метриками процесса.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_ingest_total",
				Help: "Tracked events by ingestion outcome",
			},
			[]string{"outcome"},
		),
		MetricQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_metric_queries_total",
				Help: "Metric queries by metric name and response status",
			},
			[]string{"metric", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		registry: registry,
	}

	registry.MustRegister(m.IngestTotal, m.MetricQueriesTotal, m.HTTPRequestDuration)
	return m
}

func (m *Metrics) ObserveIngest(outcome string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveQuery(metric string, status int) {
	if m == nil {
		return
	}
	m.MetricQueriesTotal.WithLabelValues(metric, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler отдаёт метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
