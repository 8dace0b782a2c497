package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantd/pkg/billing"
	"github.com/platinummonkey/tenantd/pkg/contextkeys"
	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/tenant"
)

// writeError maps domain errors onto HTTP statuses. Provider diagnostics
// stay in the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := contextkeys.Logger(r.Context()).WithError(err)

	var sf *tenant.StorageFault
	switch {
	case errors.Is(err, tenant.ErrInvalidTenantID):
		httputil.WriteBadRequest(w, "invalid tenant id")
	case errors.As(err, &sf):
		log.Error("Tenant storage fault")
		httputil.WriteInternalError(w, "storage failure", sf)
	case errors.Is(err, tenant.ErrActorStopped):
		log.Warn("Tenant actor stopped mid-request")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "tenant temporarily unavailable")
	case errors.Is(err, billing.ErrNotConfigured):
		log.Error("Billing used without a provider")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "billing not configured")
	case errors.Is(err, billing.ErrNoBillingAccount):
		httputil.WriteNotFoundError(w, "No billing account found")
	case errors.Is(err, billing.ErrProviderUnavailable):
		httputil.WriteBadGateway(w, "billing provider unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("Request deadline exceeded")
		httputil.WriteErrorMessage(w, http.StatusGatewayTimeout, "request timeout")
	case errors.Is(err, context.Canceled):
		log.Debug("Request canceled by client")
	default:
		log.Error("Unhandled request error")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
