package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "codesight"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	InFlight         prometheus.Gauge
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	SyncEventsTotal  *prometheus.CounterVec
	SyncDropsTotal   prometheus.Counter
	ActiveStreams    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers all collectors on reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency by route.", Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "analysis", Name: "submits_total",
			Help: "Analyzer submit cycles by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "analysis", Name: "duration_seconds",
			Help:    "Time from submit to result by outcome.",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"outcome"}),
		SyncEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "history", Name: "sync_events_total",
			Help: "Change events applied by history views, by type and whether a refetch was needed.",
		}, []string{"type", "refetch"}),
		SyncDropsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "history", Name: "sync_dropped_total",
			Help: "Change events dropped because a subscriber was too slow.",
		}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "history", Name: "active_streams",
			Help: "Open history websocket streams.",
		}),
		gatherer: reg,
	}
}

// ObserveAnalysis records one finished submit cycle.
func (m *Metrics) ObserveAnalysis(outcome string, d time.Duration) {
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveSyncEvent records one change event handled by a history view.
func (m *Metrics) ObserveSyncEvent(eventType string, refetch bool) {
	m.SyncEventsTotal.WithLabelValues(eventType, strconv.FormatBool(refetch)).Inc()
}

// Middleware tracks request counts and latency, labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.InFlight.Inc()
		defer m.InFlight.Dec()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
