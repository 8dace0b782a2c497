package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Tenant actor metrics
	ActorOperationsTotal   *prometheus.CounterVec
	ActorOperationDuration *prometheus.HistogramVec
	ActorsLive             prometheus.Gauge
	ActorsEvictedTotal     prometheus.Counter

	// Auth metrics
	AuthFailuresTotal *prometheus.CounterVec

	// Billing metrics
	BillingFallbacksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		ActorOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_actor_operations_total",
				Help: "Total number of tenant actor operations",
			},
			[]string{"operation", "status"},
		),
		ActorOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_actor_operation_duration_seconds",
				Help:    "Tenant actor operation duration in seconds, including time queued behind earlier operations",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		ActorsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantd_actors_live",
				Help: "Number of running tenant actors",
			},
		),
		ActorsEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantd_actors_evicted_total",
				Help: "Total number of tenant actors stopped by the idle sweep",
			},
		),

		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_auth_failures_total",
				Help: "Total number of rejected requests by auth stage",
			},
			[]string{"stage"},
		),

		BillingFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_billing_fallbacks_total",
				Help: "Total number of billing reads that fell back to the FREE plan",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.ActorOperationsTotal,
		m.ActorOperationDuration,
		m.ActorsLive,
		m.ActorsEvictedTotal,
		m.AuthFailuresTotal,
		m.BillingFallbacksTotal,
	)

	return m
}

// ObserveOperation records a tenant actor operation
func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ActorOperationsTotal.WithLabelValues(op, status).Inc()
	m.ActorOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveAuthFailure records a rejected request
func (m *Metrics) ObserveAuthFailure(stage string) {
	m.AuthFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveBillingFallback records a FREE plan fallback
func (m *Metrics) ObserveBillingFallback(op string) {
	m.BillingFallbacksTotal.WithLabelValues(op).Inc()
}

// ObserveActors records the registry size after an idle sweep
func (m *Metrics) ObserveActors(live, evicted int) {
	m.ActorsLive.Set(float64(live))
	m.ActorsEvictedTotal.Add(float64(evicted))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched route template so path parameters such as
// tenant ids do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics. It
// is meant for router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
