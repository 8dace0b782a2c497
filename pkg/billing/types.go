package billing

import (
	"fmt"
	"strings"
	"time"
)

// PlanTier is a billing level. Tiers are ordered: FREE < STANDARD < ENTERPRISE.
type PlanTier string

const (
	PlanFree       PlanTier = "FREE"
	PlanStandard   PlanTier = "STANDARD"
	PlanEnterprise PlanTier = "ENTERPRISE"
)

var planRank = map[PlanTier]int{
	PlanFree:       0,
	PlanStandard:   1,
	PlanEnterprise: 2,
}

// Rank returns the tier's position in the ordering, -1 if unknown
func (p PlanTier) Rank() int {
	if r, ok := planRank[p]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether p is the same as or above other
func (p PlanTier) AtLeast(other PlanTier) bool {
	return p.Rank() >= other.Rank()
}

// ParsePlanTier parses a tier name case-insensitively
func ParsePlanTier(s string) (PlanTier, error) {
	tier := PlanTier(strings.ToUpper(strings.TrimSpace(s)))
	if tier.Rank() < 0 {
		return "", fmt.Errorf("unknown plan tier: %q", s)
	}
	return tier, nil
}

// Feature names a capability gated by plan
type Feature string

const (
	FeatureCoreAPI         Feature = "core_api"
	FeatureCustomDomain    Feature = "custom_domain"
	FeaturePrioritySupport Feature = "priority_support"
	FeatureSSO             Feature = "sso"
	FeatureAuditLog        Feature = "audit_log"
)

// Limits is the static limits tuple of a plan tier
type Limits struct {
	MaxItems     int       `json:"maxItems"`
	MaxStorageMB int       `json:"maxStorageMB"`
	Features     []Feature `json:"features"`
}

// DefaultPlanLimits returns the limits table for each tier
func DefaultPlanLimits() map[PlanTier]Limits {
	return map[PlanTier]Limits{
		PlanFree: {
			MaxItems:     10,
			MaxStorageMB: 100,
			Features:     []Feature{FeatureCoreAPI},
		},
		PlanStandard: {
			MaxItems:     1000,
			MaxStorageMB: 10 * 1024,
			Features:     []Feature{FeatureCoreAPI, FeatureCustomDomain, FeaturePrioritySupport},
		},
		PlanEnterprise: {
			MaxItems:     100000,
			MaxStorageMB: 100 * 1024,
			Features: []Feature{
				FeatureCoreAPI, FeatureCustomDomain, FeaturePrioritySupport,
				FeatureSSO, FeatureAuditLog,
			},
		},
	}
}

// Usage is a tenant's current consumption
type Usage struct {
	Items     int     `json:"items"`
	StorageMB float64 `json:"storageMB"`
}

// UsageSummary combines a tenant's plan, limits and usage
type UsageSummary struct {
	PlanType   PlanTier `json:"planType"`
	Limits     Limits   `json:"limits"`
	Usage      Usage    `json:"usage"`
	CanAddMore bool     `json:"canAddMore"`
}

// SubscriptionSummary describes a tenant's billing state
type SubscriptionSummary struct {
	PlanType     PlanTier      `json:"planType"`
	HasCustomer  bool          `json:"hasCustomer"`
	Subscription *Subscription `json:"subscription"`
}

// Subscription is the subset of a provider subscription the service uses
type Subscription struct {
	ID                string    `json:"id" validate:"required"`
	Status            string    `json:"status" validate:"required"`
	PriceID           string    `json:"priceId"`
	CurrentPeriodEnd  time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool      `json:"cancelAtPeriodEnd"`
}

// CustomerParams describes a customer to create
type CustomerParams struct {
	Name           string
	Email          string
	Metadata       map[string]string
	IdempotencyKey string
}

// Customer is a created billing customer
type Customer struct {
	ID string `json:"id" validate:"required"`
}

// CustomerSession authorizes the embedded pricing table for a customer
type CustomerSession struct {
	ClientSecret string `json:"clientSecret" validate:"required"`
	CustomerID   string `json:"customerId" validate:"required"`
}

// PortalSession is a hosted billing portal session
type PortalSession struct {
	URL string `json:"url" validate:"required,url"`
}
