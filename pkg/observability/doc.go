// Package observability wires logging, metrics, tracing and lifecycle
// helpers for tenantd.
//
// Logging uses logrus. RequestLogger assigns each request an id (reusing an
// incoming X-Request-ID) and stores a request-scoped logger in the context:
//
//	log := contextkeys.Logger(r.Context())
//	log.WithField("alias", alias).Info("Alias recorded")
//
// Metrics are Prometheus collectors registered on a caller-owned registry.
// *Metrics implements the observer interfaces of the tenant, middleware and
// billing packages so those packages never import Prometheus.
//
// Tracing is optional: InitOTel installs OTLP/gRPC trace and metric
// exporters when enabled, and the HTTP server is wrapped with otelhttp.
package observability
