package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/platinummonkey/tenantd/pkg/contextkeys"
	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/peer"
	"github.com/platinummonkey/tenantd/pkg/tenant"
)

// aliasSetting is the tenant setting key holding the alias
const aliasSetting = "alias"

const maxAliasLength = 128

// TenantResponse describes the caller's tenant
type TenantResponse struct {
	TenantID string         `json:"tenantId"`
	Alias    string         `json:"alias,omitempty"`
	Record   *tenant.Record `json:"record"`
}

// AliasResponse confirms an alias request
type AliasResponse struct {
	TenantID string `json:"tenantId"`
	Alias    string `json:"alias"`
}

// identity returns the authenticated identity. Routes are always wrapped by
// the authenticator, so a miss is a wiring bug.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := contextkeys.Identity(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Unauthorized: missing credentials")
	}
	return id, ok
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	store, err := s.tenants.Get(r.Context(), id.TenantID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := store.Record(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	alias, _, err := store.GetSetting(r.Context(), aliasSetting)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, TenantResponse{
		TenantID: id.TenantID(),
		Alias:    alias,
		Record:   record,
	})
}

func (s *Server) getStorage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	log := contextkeys.Logger(r.Context())

	store, err := s.tenants.Get(r.Context(), id.TenantID())
	if err != nil {
		writeError(w, r, err)
		return
	}

	written, err := store.SetCreatorIfAbsent(r.Context(), id.SubjectID, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if written {
		log.Info("Recorded tenant creator")
	}

	stats, err := store.GetStorageStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, stats)
}

// requestAlias asks the caller's organization tenant to record an alias. The
// call goes through the internal route with a token minted by the caller's
// personal tenant.
func (s *Server) requestAlias(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if id.IsPersonal() {
		httputil.WriteBadRequest(w, "an organization is required to set an alias")
		return
	}

	var req peer.AliasRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	alias, ok := normalizeAlias(w, req.Alias)
	if !ok {
		return
	}

	from, err := s.tenants.Get(r.Context(), id.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.peer.AssociateAlias(r.Context(), from, id.OrganizationID, id.SubjectID, id.OrganizationID, alias); err != nil {
		contextkeys.Logger(r.Context()).WithError(err).Error("Failed to associate alias")
		httputil.WriteBadGateway(w, "failed to associate alias")
		return
	}

	_ = httputil.WriteSuccess(w, AliasResponse{TenantID: id.OrganizationID, Alias: alias})
}

// recordAlias is the internal side of requestAlias
func (s *Server) recordAlias(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantId")
	if !ok {
		return
	}
	if id.TenantID() != tenantID {
		httputil.WriteForbidden(w, "Forbidden: token is not valid for this tenant")
		return
	}

	var req peer.AliasRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	alias, ok := normalizeAlias(w, req.Alias)
	if !ok {
		return
	}

	store, err := s.tenants.Get(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.SetSetting(r.Context(), aliasSetting, alias); err != nil {
		writeError(w, r, err)
		return
	}

	contextkeys.Logger(r.Context()).WithField("alias", alias).Info("Recorded tenant alias")
	w.WriteHeader(http.StatusNoContent)
}

func normalizeAlias(w http.ResponseWriter, alias string) (string, bool) {
	alias = strings.TrimSpace(alias)
	if !httputil.RequireNonEmpty(w, alias, "alias") {
		return "", false
	}
	if len(alias) > maxAliasLength {
		httputil.WriteBadRequest(w, "alias is too long")
		return "", false
	}
	return alias, true
}
