package api

import (
	"net/http"

	"github.com/platinummonkey/tenantd/pkg/httputil"
)

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	summary, err := s.billing.GetSubscription(r.Context(), id.TenantID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, summary)
}

func (s *Server) createCustomerSession(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	session, err := s.billing.CreateCustomerSession(r.Context(), id.TenantID(), id.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, session)
}

func (s *Server) createPortalSession(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	session, err := s.billing.CreatePortalSession(r.Context(), id.TenantID(), s.returnURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, session)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	summary, err := s.billing.GetUsageSummary(r.Context(), id.TenantID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, summary)
}
