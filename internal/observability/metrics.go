package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics collects Prometheus metrics for the API process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesCompleted  prometheus.Counter
	salesFailed     *prometheus.CounterVec
	saleDuration    *prometheus.HistogramVec
	revenue         prometheus.Counter
	unitsSold       prometheus.Counter
}

// NewMetrics initialises a private registry with HTTP and checkout metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_completed_total",
		Help: "Sales committed.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_failed_total",
		Help: "Rejected or rolled back sales by failure kind.",
	}, []string{"kind"})
	saleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_sale_duration_seconds",
		Help:    "Checkout latency including row lock waits.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"outcome"})
	revenue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_revenue_total",
		Help: "Sum of committed sale totals.",
	})
	units := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_sale_units_total",
		Help: "Units sold across committed sales.",
	})
	registry.MustRegister(
		requests, duration, completed, failed, saleDuration, revenue, units,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesCompleted:  completed,
		salesFailed:     failed,
		saleDuration:    saleDuration,
		revenue:         revenue,
		unitsSold:       units,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SaleCompleted records a committed sale.
func (m *Metrics) SaleCompleted(total decimal.Decimal, units int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.salesCompleted.Inc()
	m.revenue.Add(total.InexactFloat64())
	m.unitsSold.Add(float64(units))
	m.saleDuration.WithLabelValues("completed").Observe(elapsed.Seconds())
}

// SaleFailed records a rejected sale.
func (m *Metrics) SaleFailed(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.salesFailed.WithLabelValues(kind).Inc()
	m.saleDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
