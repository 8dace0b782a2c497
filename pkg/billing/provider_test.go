package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStripeStub(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewStripeProvider(StripeConfig{
		SecretKey: "sk_test_123",
		Timeout:   2 * time.Second,
		BaseURL:   server.URL,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	return p
}

func TestNewStripeProvider_NoKey(t *testing.T) {
	_, err := NewStripeProvider(StripeConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripeProvider_CreateCustomer(t *testing.T) {
	var idempotencyKey, name string
	p := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		idempotencyKey = r.Header.Get("Idempotency-Key")
		name = r.PostForm.Get("name")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cus_123","object":"customer"}`))
	})

	c, err := p.CreateCustomer(context.Background(), CustomerParams{
		Name:           "Acme",
		Metadata:       map[string]string{"tenantId": "org_1"},
		IdempotencyKey: "tenant-customer-org_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_123", c.ID)
	assert.Equal(t, "tenant-customer-org_1", idempotencyKey)
	assert.Equal(t, "Acme", name)
}

func TestStripeProvider_CreateCustomer_EmptyResponse(t *testing.T) {
	p := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"customer"}`))
	})

	_, err := p.CreateCustomer(context.Background(), CustomerParams{})
	assert.Error(t, err)
}

func TestStripeProvider_ListActiveSubscriptions(t *testing.T) {
	p := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "cus_123", r.URL.Query().Get("customer"))
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"url": "/v1/subscriptions",
			"has_more": false,
			"data": [{
				"id": "sub_1",
				"object": "subscription",
				"status": "active",
				"current_period_end": 1767225600,
				"cancel_at_period_end": true,
				"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_std"}}]}
			}]
		}`))
	})

	subs, err := p.ListActiveSubscriptions(context.Background(), "cus_123", 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_1", subs[0].ID)
	assert.Equal(t, "price_std", subs[0].PriceID)
	assert.True(t, subs[0].CancelAtPeriodEnd)
	assert.Equal(t, int64(1767225600), subs[0].CurrentPeriodEnd.Unix())
}

func TestStripeProvider_ServerError(t *testing.T) {
	p := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such customer"}}`))
	})

	_, err := p.CreatePortalSession(context.Background(), "cus_missing", "https://app.example.com")
	assert.Error(t, err)
}
