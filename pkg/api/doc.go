// Package api exposes tenantd over HTTP.
//
// Routes:
//
//	GET  /health                              liveness
//	GET  /ready                               readiness
//	GET  /metrics                             Prometheus
//	GET  /api/v1/tenant                       tenant record (either auth stage)
//	GET  /api/v1/tenant/storage               storage stats, records the creator
//	POST /api/v1/tenant/alias                 ask the caller's org tenant to record an alias
//	POST /internal/tenants/{tenantId}/alias   record an alias (internal token only)
//	GET  /api/v1/billing/subscription
//	POST /api/v1/billing/customer-session
//	POST /api/v1/billing/portal               org admins only
//	GET  /api/v1/billing/usage
//
// Every error is answered with the httputil envelope.
package api
