package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/organizations/org_1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"org_1","name":"Acme Inc","slug":"acme"}`))
	})
	mux.HandleFunc("/users/user_1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "user_1",
			"first_name": "Ada",
			"last_name": "Lovelace",
			"primary_email_address_id": "idn_2",
			"email_addresses": [
				{"id": "idn_1", "email_address": "old@example.com"},
				{"id": "idn_2", "email_address": "ada@example.com"}
			]
		}`))
	})
	mux.HandleFunc("/users/user_bad", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"first_name": "No Id"}`))
	})
	mux.HandleFunc("/users/user_500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_RequiresSecret(t *testing.T) {
	_, err := NewClient(Config{APIURL: "http://localhost"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_GetOrganization(t *testing.T) {
	srv := newTestServer(t)
	c, err := NewClient(Config{APIURL: srv.URL, SecretKey: "sk_test"})
	require.NoError(t, err)

	org, err := c.GetOrganization(context.Background(), "org_1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", org.Name)

	_, err = c.GetOrganization(context.Background(), "org_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_GetOrganization_Unauthorized(t *testing.T) {
	srv := newTestServer(t)
	c, err := NewClient(Config{APIURL: srv.URL, SecretKey: "wrong"})
	require.NoError(t, err)

	_, err = c.GetOrganization(context.Background(), "org_1")
	assert.Error(t, err)
}

func TestClient_GetUser(t *testing.T) {
	srv := newTestServer(t)
	c, err := NewClient(Config{APIURL: srv.URL, SecretKey: "sk_test"})
	require.NoError(t, err)

	user, err := c.GetUser(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.PrimaryEmail())
	assert.Equal(t, "Ada Lovelace", user.DisplayName())

	_, err = c.GetUser(context.Background(), "user_bad")
	assert.ErrorContains(t, err, "invalid directory response")

	_, err = c.GetUser(context.Background(), "user_500")
	assert.ErrorContains(t, err, "status 500")
}

func TestUser_DisplayNameFallbacks(t *testing.T) {
	u := &User{ID: "u", Username: "ada"}
	assert.Equal(t, "ada", u.DisplayName())

	u = &User{ID: "u", EmailAddresses: []EmailAddress{{ID: "e", EmailAddress: "a@example.com"}}}
	assert.Equal(t, "a@example.com", u.DisplayName())
	assert.Equal(t, "a@example.com", u.PrimaryEmail())
}
