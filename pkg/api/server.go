package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/platinummonkey/tenantd/pkg/billing"
	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/middleware"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/peer"
	"github.com/platinummonkey/tenantd/pkg/tenant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tenants resolves tenant actors
type Tenants interface {
	Get(ctx context.Context, tenantID string) (*tenant.Actor, error)
}

// Deps are the collaborators of the server
type Deps struct {
	Tenants       Tenants
	Billing       *billing.Service
	Authenticator *middleware.Authenticator
	Peer          *peer.Client
	Health        *observability.HealthChecker
	Metrics       *observability.Metrics
	Gatherer      prometheus.Gatherer
	Log           logrus.FieldLogger

	// PortalReturnURL is where the billing portal sends users back to
	PortalReturnURL string
	// MaxBodyBytes bounds request bodies
	MaxBodyBytes int64
}

// Server is the tenantd HTTP API
type Server struct {
	router  *mux.Router
	handler http.Handler
	tenants Tenants
	billing *billing.Service
	authn   *middleware.Authenticator
	peer    *peer.Client
	log     logrus.FieldLogger

	returnURL    string
	maxBodyBytes int64
}

// NewServer creates the API server and registers all routes
func NewServer(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Health == nil {
		deps.Health = observability.NewHealthChecker(0)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		router:       mux.NewRouter(),
		tenants:      deps.Tenants,
		billing:      deps.Billing,
		authn:        deps.Authenticator,
		peer:         deps.Peer,
		log:          deps.Log,
		returnURL:    deps.PortalReturnURL,
		maxBodyBytes: deps.MaxBodyBytes,
	}

	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	s.router.HandleFunc("/health", deps.Health.Liveness).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", deps.Health.Readiness).Methods(http.MethodGet)
	if deps.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(deps.Gatherer)).Methods(http.MethodGet)
	}

	s.setupRoutes()

	s.handler = otelhttp.NewHandler(httputil.Chain(
		observability.RequestLogger(s.log),
		httputil.RecoveryMiddleware(s.log),
		httputil.MaxBytesMiddleware(s.maxBodyBytes),
	)(s.router), "tenantd")
	return s
}

// setupRoutes configures the tenant, internal and billing routes
func (s *Server) setupRoutes() {
	s.router.Handle("/api/v1/tenant", s.authn.Handler(http.HandlerFunc(s.getTenant))).Methods(http.MethodGet)
	s.router.Handle("/api/v1/tenant/storage", s.authn.External(http.HandlerFunc(s.getStorage))).Methods(http.MethodGet)
	s.router.Handle("/api/v1/tenant/alias", s.authn.External(http.HandlerFunc(s.requestAlias))).Methods(http.MethodPost)

	s.router.Handle("/internal/tenants/{tenantId}/alias", s.authn.Internal(http.HandlerFunc(s.recordAlias))).Methods(http.MethodPost)

	s.router.Handle("/api/v1/billing/subscription", s.authn.External(http.HandlerFunc(s.getSubscription))).Methods(http.MethodGet)
	s.router.Handle("/api/v1/billing/customer-session", s.authn.External(http.HandlerFunc(s.createCustomerSession))).Methods(http.MethodPost)
	s.router.Handle("/api/v1/billing/portal", s.authn.External(
		middleware.RequireOrgRole(auth.RoleAdmin)(http.HandlerFunc(s.createPortalSession)),
	)).Methods(http.MethodPost)
	s.router.Handle("/api/v1/billing/usage", s.authn.External(http.HandlerFunc(s.getUsage))).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "endpoint not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Router returns the bare router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped with request logging, panic recovery,
// body limits and tracing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
