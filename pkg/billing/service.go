package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantd/pkg/directory"
	"github.com/platinummonkey/tenantd/pkg/tenant"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Tenants resolves a tenant's storage actor
type Tenants interface {
	Get(ctx context.Context, tenantID string) (*tenant.Actor, error)
}

// Directory looks up human-readable tenant details
type Directory interface {
	GetOrganization(ctx context.Context, id string) (*directory.Organization, error)
	GetUser(ctx context.Context, id string) (*directory.User, error)
}

// UsageCounter measures a tenant's consumption from its store
type UsageCounter interface {
	CountUsage(ctx context.Context, store *tenant.Actor) (Usage, error)
}

// FallbackObserver is told whenever a read path degrades to FREE
type FallbackObserver interface {
	ObserveBillingFallback(op string)
}

// StorageUsageCounter reports storage from the store's size. Item counting
// is domain specific, so it reports zero items.
type StorageUsageCounter struct{}

// CountUsage implements UsageCounter
func (StorageUsageCounter) CountUsage(ctx context.Context, store *tenant.Actor) (Usage, error) {
	stats, err := store.GetStorageStats(ctx)
	if err != nil {
		return Usage{}, err
	}
	return Usage{StorageMB: stats.Megabytes}, nil
}

// Config configures the billing service
type Config struct {
	// PriceTiers maps provider price ids to tiers. Active subscriptions on
	// unmapped prices resolve to STANDARD.
	PriceTiers map[string]PlanTier
	// Limits overrides DefaultPlanLimits
	Limits map[PlanTier]Limits
	// Timeout bounds each provider call
	Timeout time.Duration
}

// Service reconciles tenant state with the billing provider
type Service struct {
	tenants   Tenants
	provider  Provider
	directory Directory
	usage     UsageCounter
	cache     PlanCache
	observer  FallbackObserver
	log       logrus.FieldLogger

	priceTiers map[string]PlanTier
	limits     map[PlanTier]Limits
	timeout    time.Duration

	provisioning singleflight.Group
}

// Option customizes the service
type Option func(*Service)

// WithDirectory enables name/email lookups for new customers
func WithDirectory(d Directory) Option {
	return func(s *Service) { s.directory = d }
}

// WithUsageCounter replaces the default usage counter
func WithUsageCounter(u UsageCounter) Option {
	return func(s *Service) { s.usage = u }
}

// WithPlanCache caches resolved tiers
func WithPlanCache(c PlanCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithFallbackObserver reports FREE fallbacks
func WithFallbackObserver(o FallbackObserver) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a billing service. provider may be nil when billing is
// not configured; read paths then resolve to FREE and write paths return
// ErrNotConfigured.
func NewService(tenants Tenants, provider Provider, cfg Config, log logrus.FieldLogger, opts ...Option) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Limits == nil {
		cfg.Limits = DefaultPlanLimits()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	s := &Service{
		tenants:    tenants,
		provider:   provider,
		usage:      StorageUsageCounter{},
		log:        log.WithField("component", "billing"),
		priceTiers: cfg.PriceTiers,
		limits:     cfg.Limits,
		timeout:    cfg.Timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether a billing provider is available
func (s *Service) Configured() bool {
	return s.provider != nil
}

// Limits returns the limits of a tier
func (s *Service) Limits(tier PlanTier) Limits {
	if l, ok := s.limits[tier]; ok {
		return l
	}
	return s.limits[PlanFree]
}

// ResolveBillingCustomer returns the tenant's billing customer id, creating
// and persisting one on first use. Concurrent first calls for a tenant are
// collapsed into a single provisioning attempt.
func (s *Service) ResolveBillingCustomer(ctx context.Context, tenantID, subjectID string) (string, error) {
	store, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}

	customerID, err := store.BillingCustomerID(ctx)
	if err != nil {
		return "", err
	}
	if customerID != "" {
		return customerID, nil
	}
	if s.provider == nil {
		return "", ErrNotConfigured
	}

	v, err, _ := s.provisioning.Do(tenantID, func() (interface{}, error) {
		return s.provisionCustomer(ctx, store, tenantID, subjectID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) provisionCustomer(ctx context.Context, store *tenant.Actor, tenantID, subjectID string) (string, error) {
	// Re-check inside the flight: an earlier flight may have just persisted.
	customerID, err := store.BillingCustomerID(ctx)
	if err != nil {
		return "", err
	}
	if customerID != "" {
		return customerID, nil
	}

	name, email := s.lookupContact(ctx, tenantID, subjectID)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	customer, err := s.provider.CreateCustomer(callCtx, CustomerParams{
		Name:  name,
		Email: email,
		Metadata: map[string]string{
			"tenantId":  tenantID,
			"subjectId": subjectID,
		},
		IdempotencyKey: "tenant-customer-" + tenantID,
	})
	if err != nil {
		s.log.WithError(err).WithField("tenant_id", tenantID).Error("Failed to create billing customer")
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	persisted, err := s.persistCustomerID(ctx, store, tenantID, customer.ID)
	if err != nil {
		return "", err
	}
	if persisted != customer.ID {
		s.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"created":   customer.ID,
			"persisted": persisted,
		}).Warn("Billing customer already recorded; keeping existing id")
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"customer_id": persisted,
	}).Info("Provisioned billing customer")
	return persisted, nil
}

// persistCustomerID records customerID on the tenant. The actor held across
// the provider call may have been evicted meanwhile; a stopped actor is
// resolved again once.
func (s *Service) persistCustomerID(ctx context.Context, store *tenant.Actor, tenantID, customerID string) (string, error) {
	persisted, err := store.SetBillingCustomerIDIfAbsent(ctx, customerID)
	if !errors.Is(err, tenant.ErrActorStopped) {
		return persisted, err
	}

	s.log.WithField("tenant_id", tenantID).Debug("Tenant actor stopped during provisioning; resolving again")
	store, err = s.tenants.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return store.SetBillingCustomerIDIfAbsent(ctx, customerID)
}

// lookupContact returns a display name and email for a new customer. It
// never fails: the raw tenant id stands in for a missing name.
func (s *Service) lookupContact(ctx context.Context, tenantID, subjectID string) (name, email string) {
	name = tenantID
	if s.directory == nil {
		return name, ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := s.log.WithField("tenant_id", tenantID)
	if tenantID != subjectID {
		org, err := s.directory.GetOrganization(ctx, tenantID)
		if err != nil {
			log.WithError(err).Debug("Organization lookup failed")
		} else if org.Name != "" {
			name = org.Name
		}
	}

	user, err := s.directory.GetUser(ctx, subjectID)
	if err != nil {
		log.WithError(err).Debug("User lookup failed")
		return name, ""
	}
	if tenantID == subjectID {
		if display := user.DisplayName(); display != "" {
			name = display
		}
	}
	return name, user.PrimaryEmail()
}

// ResolvePlanType returns the customer's current tier. It never fails: no
// customer, no active subscription or any provider error all yield FREE.
func (s *Service) ResolvePlanType(ctx context.Context, customerID string) PlanTier {
	if customerID == "" || s.provider == nil {
		return PlanFree
	}
	if s.cache != nil {
		if tier, ok := s.cache.Get(ctx, customerID); ok {
			return tier
		}
	}

	sub, err := s.activeSubscription(ctx, customerID)
	if err != nil {
		s.fallback("resolve_plan", customerID, err)
		return PlanFree
	}

	tier := s.tierFor(sub)
	if s.cache != nil {
		s.cache.Set(ctx, customerID, tier)
	}
	return tier
}

// GetSubscription summarizes the tenant's billing state
func (s *Service) GetSubscription(ctx context.Context, tenantID string) (*SubscriptionSummary, error) {
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	store, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	customerID, err := store.BillingCustomerID(ctx)
	if err != nil {
		return nil, err
	}

	summary := &SubscriptionSummary{PlanType: PlanFree, HasCustomer: customerID != ""}
	if customerID == "" {
		return summary, nil
	}

	sub, err := s.activeSubscription(ctx, customerID)
	if err != nil {
		s.fallback("get_subscription", customerID, err)
		return summary, nil
	}

	summary.Subscription = sub
	summary.PlanType = s.tierFor(sub)
	if s.cache != nil {
		s.cache.Set(ctx, customerID, summary.PlanType)
	}
	return summary, nil
}

// GetUsageSummary composes the tenant's plan, limits and usage
func (s *Service) GetUsageSummary(ctx context.Context, tenantID string) (*UsageSummary, error) {
	store, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	customerID, err := store.BillingCustomerID(ctx)
	if err != nil {
		return nil, err
	}

	plan := s.ResolvePlanType(ctx, customerID)
	limits := s.Limits(plan)

	usage, err := s.usage.CountUsage(ctx, store)
	if err != nil {
		return nil, err
	}

	return &UsageSummary{
		PlanType:   plan,
		Limits:     limits,
		Usage:      usage,
		CanAddMore: usage.Items < limits.MaxItems,
	}, nil
}

// CreateCustomerSession provisions the customer if needed and opens a
// pricing table session for it.
func (s *Service) CreateCustomerSession(ctx context.Context, tenantID, subjectID string) (*CustomerSession, error) {
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	customerID, err := s.ResolveBillingCustomer(ctx, tenantID, subjectID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.provider.CreateCustomerSession(callCtx, customerID)
	if err != nil {
		s.log.WithError(err).WithField("tenant_id", tenantID).Error("Failed to create customer session")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return session, nil
}

// CreatePortalSession opens a billing portal session for a tenant that
// already has a billing customer.
func (s *Service) CreatePortalSession(ctx context.Context, tenantID, returnURL string) (*PortalSession, error) {
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	store, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	customerID, err := store.BillingCustomerID(ctx)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, ErrNoBillingAccount
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.provider.CreatePortalSession(callCtx, customerID, returnURL)
	if err != nil {
		s.log.WithError(err).WithField("tenant_id", tenantID).Error("Failed to create portal session")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return session, nil
}

// activeSubscription returns the most recent active subscription, or nil
func (s *Service) activeSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	subs, err := s.provider.ListActiveSubscriptions(ctx, customerID, 1)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &subs[0], nil
}

func (s *Service) tierFor(sub *Subscription) PlanTier {
	if sub == nil {
		return PlanFree
	}
	if tier, ok := s.priceTiers[sub.PriceID]; ok {
		return tier
	}
	return PlanStandard
}

func (s *Service) fallback(op, customerID string, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"customer_id": customerID,
		"op":          op,
	}).Warn("Billing provider unavailable; falling back to FREE")
	if s.observer != nil {
		s.observer.ObserveBillingFallback(op)
	}
}
