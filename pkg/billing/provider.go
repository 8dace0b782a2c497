package billing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Provider is the external billing system
type Provider interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	CreateCustomerSession(ctx context.Context, customerID string) (*CustomerSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)
	// ListActiveSubscriptions returns at most limit active subscriptions,
	// most recent first.
	ListActiveSubscriptions(ctx context.Context, customerID string, limit int64) ([]Subscription, error)
}

// StripeConfig configures the Stripe provider
type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint
	BaseURL string
	Logger  logrus.FieldLogger
}

// StripeProvider implements Provider with the Stripe API
type StripeProvider struct {
	api      *client.API
	validate *validator.Validate
}

// NewStripeProvider creates a Stripe-backed provider
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(1),
	}
	if cfg.Logger != nil {
		backendConfig.LeveledLogger = cfg.Logger
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripe.String(cfg.BaseURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	return &StripeProvider{
		api:      client.New(cfg.SecretKey, backends),
		validate: validator.New(),
	}, nil
}

// CreateCustomer creates a customer. The idempotency key makes retries of
// the same provisioning attempt return the same customer.
func (p *StripeProvider) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	cp := &stripe.CustomerParams{}
	cp.Context = ctx
	if params.Name != "" {
		cp.Name = stripe.String(params.Name)
	}
	if params.Email != "" {
		cp.Email = stripe.String(params.Email)
	}
	for k, v := range params.Metadata {
		cp.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		cp.SetIdempotencyKey(params.IdempotencyKey)
	}

	c, err := p.api.Customers.New(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	customer := &Customer{ID: c.ID}
	if err := p.validate.Struct(customer); err != nil {
		return nil, fmt.Errorf("invalid customer response: %w", err)
	}
	return customer, nil
}

// CreateCustomerSession creates a session for the embedded pricing table
func (p *StripeProvider) CreateCustomerSession(ctx context.Context, customerID string) (*CustomerSession, error) {
	params := &stripe.CustomerSessionParams{
		Customer: stripe.String(customerID),
		Components: &stripe.CustomerSessionComponentsParams{
			PricingTable: &stripe.CustomerSessionComponentsPricingTableParams{
				Enabled: stripe.Bool(true),
			},
		},
	}
	params.Context = ctx

	s, err := p.api.CustomerSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer session: %w", err)
	}

	session := &CustomerSession{ClientSecret: s.ClientSecret, CustomerID: customerID}
	if err := p.validate.Struct(session); err != nil {
		return nil, fmt.Errorf("invalid customer session response: %w", err)
	}
	return session, nil
}

// CreatePortalSession creates a billing portal session
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}

	session := &PortalSession{URL: s.URL}
	if err := p.validate.Struct(session); err != nil {
		return nil, fmt.Errorf("invalid portal session response: %w", err)
	}
	return session, nil
}

// ListActiveSubscriptions lists the customer's active subscriptions
func (p *StripeProvider) ListActiveSubscriptions(ctx context.Context, customerID string, limit int64) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)

	var subs []Subscription
	iter := p.api.Subscriptions.List(params)
	for int64(len(subs)) < limit && iter.Next() {
		s := iter.Subscription()
		sub := Subscription{
			ID:                s.ID,
			Status:            string(s.Status),
			CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		}
		if s.CurrentPeriodEnd > 0 {
			sub.CurrentPeriodEnd = time.Unix(s.CurrentPeriodEnd, 0).UTC()
		}
		if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
			sub.PriceID = s.Items.Data[0].Price.ID
		}
		if err := p.validate.Struct(sub); err != nil {
			return nil, fmt.Errorf("invalid subscription response: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}
