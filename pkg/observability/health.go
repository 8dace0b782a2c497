package observability

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/platinummonkey/tenantd/pkg/httputil"
)

const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc checks one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker serves liveness and readiness checks
type HealthChecker struct {
	required map[string]CheckFunc
	optional map[string]CheckFunc
	timeout  time.Duration
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// NewHealthChecker creates a health checker with no dependencies
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		required: make(map[string]CheckFunc),
		optional: make(map[string]CheckFunc),
		timeout:  timeout,
	}
}

// Require registers a dependency whose failure makes the service unhealthy
func (h *HealthChecker) Require(name string, fn CheckFunc) {
	h.required[name] = fn
}

// Optional registers a dependency whose failure only degrades the service
func (h *HealthChecker) Optional(name string, fn CheckFunc) {
	h.optional[name] = fn
}

// Liveness answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, HealthStatus{Status: StatusOK})
}

// Readiness answers 503 when a required dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	_ = httputil.WriteJSON(w, code, status)
}

// Check runs every registered dependency check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusOK,
		Dependencies: make(map[string]DependencyStatus),
	}

	for _, name := range sortedNames(h.required) {
		dep := runCheck(ctx, h.required[name])
		status.Dependencies[name] = dep
		if dep.Status != StatusOK {
			status.Status = StatusUnhealthy
		}
	}
	for _, name := range sortedNames(h.optional) {
		dep := runCheck(ctx, h.optional[name])
		status.Dependencies[name] = dep
		if dep.Status != StatusOK && status.Status == StatusOK {
			status.Status = StatusDegraded
		}
	}
	return status
}

func runCheck(ctx context.Context, fn CheckFunc) DependencyStatus {
	start := time.Now()
	dep := DependencyStatus{Status: StatusOK}
	if err := fn(ctx); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	dep.LatencyMS = time.Since(start).Milliseconds()
	return dep
}

func sortedNames(m map[string]CheckFunc) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
