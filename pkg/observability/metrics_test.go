package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewMetrics(registry), registry
}

func TestMetrics_Observers(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveOperation("query", 2*time.Millisecond, nil)
	m.ObserveOperation("query", time.Millisecond, errors.New("boom"))
	m.ObserveAuthFailure("external")
	m.ObserveBillingFallback("resolve_plan")
	m.ObserveActors(3, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActorOperationsTotal.WithLabelValues("query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActorOperationsTotal.WithLabelValues("query", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailuresTotal.WithLabelValues("external")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BillingFallbacksTotal.WithLabelValues("resolve_plan")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActorsLive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActorsEvictedTotal))
}

func TestHTTPMetricsMiddleware_RouteTemplate(t *testing.T) {
	m, registry := newTestMetrics(t)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/internal/tenants/{tenantId}/alias", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"org_1", "org_2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/tenants/"+id+"/alias", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/internal/tenants/{tenantId}/alias", "204")))

	w := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "tenantd_http_requests_total"))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)
	assert.Panics(t, func() { NewMetrics(registry) })
}
