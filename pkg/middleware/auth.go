package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/platinummonkey/tenantd/pkg/contextkeys"
	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/sirupsen/logrus"
)

const (
	msgMissingAuthorization = "Unauthorized: missing Authorization header"
	msgMissingInternalToken = "Unauthorized: missing internal token"
	msgMissingCredentials   = "Unauthorized: missing credentials"
	msgInvalidToken         = "Unauthorized: invalid token"
)

// FailureObserver is told about every rejected request
type FailureObserver interface {
	ObserveAuthFailure(stage string)
}

// Authenticator runs the external and internal auth stages
type Authenticator struct {
	external auth.Verifier
	internal *auth.InternalTokens
	observer FailureObserver
	log      logrus.FieldLogger
}

// AuthenticatorOption customizes the authenticator
type AuthenticatorOption func(*Authenticator)

// WithFailureObserver reports rejected requests
func WithFailureObserver(o FailureObserver) AuthenticatorOption {
	return func(a *Authenticator) { a.observer = o }
}

// NewAuthenticator creates the auth pipeline. Either stage may be nil, in
// which case every request routed to it is rejected.
func NewAuthenticator(external auth.Verifier, internal *auth.InternalTokens, log logrus.FieldLogger, opts ...AuthenticatorOption) *Authenticator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &Authenticator{
		external: external,
		internal: internal,
		log:      log.WithField("component", "auth"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler authenticates with the internal stage when an internal token is
// present and with the external stage otherwise. Requests carrying neither
// credential are rejected before either stage runs.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	external := a.External(next)
	internal := a.Internal(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get(auth.InternalTokenHeader) != "":
			internal.ServeHTTP(w, r)
		case r.Header.Get("Authorization") != "":
			external.ServeHTTP(w, r)
		default:
			a.reject(w, r, "selector", msgMissingCredentials, nil)
		}
	})
}

// External authenticates a bearer token issued by the identity provider
func (a *Authenticator) External(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			a.reject(w, r, string(auth.SourceExternal), msgMissingAuthorization, nil)
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			a.reject(w, r, string(auth.SourceExternal), msgMissingAuthorization, errors.New("not a bearer credential"))
			return
		}
		if a.external == nil {
			a.reject(w, r, string(auth.SourceExternal), msgInvalidToken, errors.New("external verification not configured"))
			return
		}

		identity, err := a.external.Verify(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			a.reject(w, r, string(auth.SourceExternal), msgInvalidToken, err)
			return
		}
		a.serve(next, w, r, identity)
	})
}

// Internal authenticates a token minted by another tenant actor
func (a *Authenticator) Internal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(auth.InternalTokenHeader)
		if token == "" {
			a.reject(w, r, string(auth.SourceInternal), msgMissingInternalToken, nil)
			return
		}
		if a.internal == nil {
			a.reject(w, r, string(auth.SourceInternal), msgInvalidToken, auth.ErrNoSecret)
			return
		}

		identity, err := a.internal.Verify(token)
		if err != nil {
			a.reject(w, r, string(auth.SourceInternal), msgInvalidToken, err)
			return
		}
		a.serve(next, w, r, identity)
	})
}

func (a *Authenticator) serve(next http.Handler, w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	ctx := contextkeys.WithIdentity(r.Context(), identity)
	log := contextkeys.Logger(ctx).WithFields(logrus.Fields{
		"tenant_id":  identity.TenantID(),
		"subject_id": identity.SubjectID,
	})
	ctx = contextkeys.WithLogger(ctx, log)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, stage, message string, reason error) {
	entry := a.log.WithFields(logrus.Fields{
		"stage":      stage,
		"path":       r.URL.Path,
		"request_id": contextkeys.GetRequestID(r.Context()),
	})
	if reason != nil {
		entry = entry.WithError(reason)
	}
	entry.Info("Rejected unauthenticated request")

	if a.observer != nil {
		a.observer.ObserveAuthFailure(stage)
	}
	httputil.WriteUnauthorized(w, message)
}

// RequireOrgRole rejects organization identities that hold none of roles.
// Personal identities pass: they own their tenant outright.
func RequireOrgRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := contextkeys.Identity(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, msgMissingCredentials)
				return
			}
			if !identity.IsPersonal() && !identity.HasRole(roles...) {
				httputil.WriteForbidden(w, "Forbidden: insufficient organization role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
