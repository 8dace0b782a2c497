package billing

import "errors"

var (
	// ErrNotConfigured is returned when no provider secret is configured
	ErrNotConfigured = errors.New("billing not configured")

	// ErrProviderUnavailable wraps failures of the billing provider on
	// write paths
	ErrProviderUnavailable = errors.New("billing provider unavailable")

	// ErrNoBillingAccount is returned when a tenant has no billing customer
	ErrNoBillingAccount = errors.New("no billing account found")
)
