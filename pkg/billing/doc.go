// Package billing reconciles tenants with the external billing provider.
//
// # Overview
//
// Each tenant maps to at most one billing customer. The customer id lives in
// the tenant's own store and is provisioned lazily:
//
//	customerID, err := service.ResolveBillingCustomer(ctx, "org_1", "user_1")
//
// The first call creates the customer (tagged with tenantId and subjectId
// metadata) and persists its id; later calls return the stored id without
// contacting the provider.
//
// # Plan Tiers
//
//	FREE < STANDARD < ENTERPRISE
//
// A tenant's tier is derived from the price of its most recent active
// subscription. Read paths never fail because of the provider: any error
// resolves to FREE. Write paths (customer sessions, portal sessions) surface
// provider failures as ErrProviderUnavailable.
//
// # Usage Example
//
//	summary, err := service.GetUsageSummary(ctx, "org_1")
//	if !summary.CanAddMore {
//		// at the plan's item limit
//	}
package billing
