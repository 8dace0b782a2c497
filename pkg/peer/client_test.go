package peer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/platinummonkey/tenantd/pkg/tenant"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenMinter struct {
	tokens *auth.InternalTokens
}

func (m tokenMinter) MintInternalToken(org, subject string) (string, error) {
	return m.tokens.Mint(org, subject)
}

type failingMinter struct{}

func (failingMinter) MintInternalToken(string, string) (string, error) {
	return "", auth.ErrNoSecret
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	log, _ := test.NewNullLogger()
	return NewClient(server.URL+"/", time.Second, log)
}

func TestAssociateAlias(t *testing.T) {
	tokens := auth.NewInternalTokens(auth.StaticSecret("s3cret"))
	registry, err := tenant.NewRegistry(tenant.RegistryConfig{}, tokens, nil)
	require.NoError(t, err)
	defer registry.Close()

	from, err := registry.Get(context.Background(), "user_1")
	require.NoError(t, err)

	var got AliasRequest
	var identity auth.Identity
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/tenants/org_1/alias", r.URL.Path)
		var err error
		identity, err = tokens.Verify(r.Header.Get(auth.InternalTokenHeader))
		assert.NoError(t, err)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	err = client.AssociateAlias(context.Background(), from, "org_1", "user_1", "org_1", "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Alias)
	assert.Equal(t, "org_1", identity.OrganizationID)
	assert.Equal(t, "user_1", identity.SubjectID)
}

func TestAssociateAlias_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Forbidden: token tenant mismatch"}`))
	})
	minter := tokenMinter{tokens: auth.NewInternalTokens(auth.StaticSecret("s3cret"))}

	err := client.AssociateAlias(context.Background(), minter, "org_2", "user_1", "org_1", "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestAssociateAlias_NoSecret(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	err := client.AssociateAlias(context.Background(), failingMinter{}, "org_1", "user_1", "org_1", "acme")
	assert.True(t, errors.Is(err, auth.ErrNoSecret))
	assert.False(t, called)
}

func TestAssociateAlias_InvalidTarget(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	err := client.AssociateAlias(context.Background(), failingMinter{}, "org_1", "user_1", "../admin", "acme")
	assert.ErrorIs(t, err, tenant.ErrInvalidTenantID)
}
