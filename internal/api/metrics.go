package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skridlevsky/panel-vote/internal/panel"
)

// Metrics holds the Prometheus collectors for the panel API.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	Operations       *prometheus.CounterVec
}

// NewMetrics registers the API collectors on a private registry. stats feeds the
// panelist/project/ballot gauges and may be nil.
func NewMetrics(stats func() panel.Stats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "panel_api_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by route, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "panel_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panel_operations_total",
				Help: "Voting operations, by operation and result kind.",
			},
			[]string{"op", "result"},
		),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.RequestsInFlight,
		m.Operations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if stats != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "panel_panelists",
				Help: "Registered panelists.",
			}, func() float64 { return float64(stats().Panelists) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "panel_ballots_submitted",
				Help: "Panelists who have submitted their ballot.",
			}, func() float64 { return float64(stats().Voted) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "panel_projects",
				Help: "Projects in the active round.",
			}, func() float64 { return float64(stats().Projects) }),
		)
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request duration and in-flight count.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern, not the raw path, to keep label cardinality bounded
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// observe counts one actor operation by outcome
func (m *Metrics) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = panel.KindOf(err).String()
	}
	m.Operations.WithLabelValues(op, result).Inc()
}
