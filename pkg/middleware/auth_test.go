package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/platinummonkey/tenantd/pkg/auth/authtest"
	"github.com/platinummonkey/tenantd/pkg/contextkeys"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageCounter map[string]int

func (c stageCounter) ObserveAuthFailure(stage string) { c[stage]++ }

type authFixture struct {
	issuer   *authtest.Issuer
	tokens   *auth.InternalTokens
	failures stageCounter
	authn    *Authenticator
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	issuer := authtest.NewIssuer(t)
	verifier, err := auth.NewExternalVerifier(context.Background(), auth.ExternalConfig{
		IssuerURL: issuer.URL(),
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	f := &authFixture{
		issuer:   issuer,
		tokens:   auth.NewInternalTokens(auth.StaticSecret("s3cret")),
		failures: stageCounter{},
	}
	f.authn = NewAuthenticator(verifier, f.tokens, log, WithFailureObserver(f.failures))
	return f
}

// echoIdentity writes the authenticated identity back as JSON
var echoIdentity = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	identity, _ := contextkeys.Identity(r.Context())
	_ = json.NewEncoder(w).Encode(identity)
})

func serve(h http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant/storage", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeIdentity(t *testing.T, w *httptest.ResponseRecorder) auth.Identity {
	t.Helper()
	var identity auth.Identity
	require.NoError(t, json.NewDecoder(w.Body).Decode(&identity))
	return identity
}

func TestAuthenticator_External(t *testing.T) {
	f := newAuthFixture(t)
	token := f.issuer.Token(t, jwt.MapClaims{"sub": "user_1", "org_id": "org_1", "org_role": "admin"})

	w := serve(f.authn.Handler(echoIdentity), map[string]string{"Authorization": "Bearer " + token})

	require.Equal(t, http.StatusOK, w.Code)
	identity := decodeIdentity(t, w)
	assert.Equal(t, "user_1", identity.SubjectID)
	assert.Equal(t, "org_1", identity.TenantID())
	assert.Equal(t, auth.RoleAdmin, identity.Role)
	assert.Equal(t, auth.SourceExternal, identity.Source)
}

func TestAuthenticator_ExpiredBearerOnAnyRoute(t *testing.T) {
	f := newAuthFixture(t)
	expired := f.issuer.Token(t, jwt.MapClaims{"sub": "user_1", "exp": time.Now().Add(-time.Minute).Unix()})

	for _, h := range []http.Handler{f.authn.Handler(echoIdentity), f.authn.External(echoIdentity)} {
		w := serve(h, map[string]string{"Authorization": "Bearer " + expired})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"Unauthorized: invalid token"}`, w.Body.String())
	}
	assert.Equal(t, 2, f.failures["external"])
}

func TestAuthenticator_UntrustedKey(t *testing.T) {
	f := newAuthFixture(t)
	token := f.issuer.UntrustedToken(t, jwt.MapClaims{"sub": "user_1"})

	w := serve(f.authn.Handler(echoIdentity), map[string]string{"Authorization": "Bearer " + token})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized: invalid token"}`, w.Body.String())
}

func TestAuthenticator_MalformedAuthorization(t *testing.T) {
	f := newAuthFixture(t)

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer    "} {
		w := serve(f.authn.External(echoIdentity), map[string]string{"Authorization": header})
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.JSONEq(t, `{"error":"Unauthorized: missing Authorization header"}`, w.Body.String())
	}
}

func TestAuthenticator_MissingCredentials(t *testing.T) {
	f := newAuthFixture(t)

	w := serve(f.authn.Handler(echoIdentity), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized: missing credentials"}`, w.Body.String())
	assert.Equal(t, 1, f.failures["selector"])

	w = serve(f.authn.Internal(echoIdentity), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized: missing internal token"}`, w.Body.String())
}

func TestAuthenticator_Internal(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.tokens.Mint("org_1", "user_1")
	require.NoError(t, err)

	w := serve(f.authn.Handler(echoIdentity), map[string]string{auth.InternalTokenHeader: token})

	require.Equal(t, http.StatusOK, w.Code)
	identity := decodeIdentity(t, w)
	assert.Equal(t, "org_1", identity.OrganizationID)
	assert.Equal(t, auth.SourceInternal, identity.Source)
	assert.Empty(t, identity.Role)
}

func TestAuthenticator_InternalTakesPrecedence(t *testing.T) {
	f := newAuthFixture(t)
	bearer := f.issuer.Token(t, jwt.MapClaims{"sub": "user_1"})

	// A bad internal token is not rescued by a good bearer token.
	w := serve(f.authn.Handler(echoIdentity), map[string]string{
		auth.InternalTokenHeader: "garbage",
		"Authorization":          "Bearer " + bearer,
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, f.failures["internal"])
	assert.Zero(t, f.failures["external"])
}

func TestAuthenticator_ExpiredInternalToken(t *testing.T) {
	f := newAuthFixture(t)
	issued := time.Now().Add(-2 * time.Hour)
	claims := auth.InternalClaims{
		OrganizationID: "org_1",
		SubjectID:      "user_1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tenantd-internal",
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(auth.InternalTokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	w := serve(f.authn.Internal(echoIdentity), map[string]string{auth.InternalTokenHeader: token})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized: invalid token"}`, w.Body.String())
}

func TestAuthenticator_NoInternalSecret(t *testing.T) {
	log, _ := test.NewNullLogger()
	minted, err := auth.NewInternalTokens(auth.StaticSecret("other")).Mint("org_1", "user_1")
	require.NoError(t, err)

	authn := NewAuthenticator(nil, auth.NewInternalTokens(nil), log)
	w := serve(authn.Internal(echoIdentity), map[string]string{auth.InternalTokenHeader: minted})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireOrgRole(t *testing.T) {
	guard := RequireOrgRole(auth.RoleAdmin)(echoIdentity)

	tests := []struct {
		name     string
		identity *auth.Identity
		want     int
	}{
		{"admin", &auth.Identity{SubjectID: "user_1", OrganizationID: "org_1", Role: auth.RoleAdmin}, http.StatusOK},
		{"member", &auth.Identity{SubjectID: "user_1", OrganizationID: "org_1", Role: auth.RoleMember}, http.StatusForbidden},
		{"no role", &auth.Identity{SubjectID: "user_1", OrganizationID: "org_1"}, http.StatusForbidden},
		{"personal", &auth.Identity{SubjectID: "user_1"}, http.StatusOK},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/portal", nil)
			if tt.identity != nil {
				req = req.WithContext(contextkeys.WithIdentity(req.Context(), *tt.identity))
			}
			w := httptest.NewRecorder()
			guard.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
