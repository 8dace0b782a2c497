// Package contextkeys provides centralized context key definitions
//
// All request-scoped values attached by middleware are defined here so that
// producers and consumers agree on key and type.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, ok := contextkeys.Identity(ctx)
package contextkeys

import (
	"context"

	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/sirupsen/logrus"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains auth.Identity
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: every tenant-facing and internal route
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: observability.RequestLogger
	RequestIDKey Key = "request_id"

	// LoggerKey contains logrus.FieldLogger scoped to the request
	// Set by: observability.RequestLogger
	LoggerKey Key = "logger"
)

// WithIdentity adds the identity context to the context
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// Identity retrieves the identity context
func Identity(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(auth.Identity)
	return identity, ok
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds a request-scoped logger to the context
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// Logger retrieves the request-scoped logger, falling back to the standard
// logrus logger.
func Logger(ctx context.Context) logrus.FieldLogger {
	if logger, ok := ctx.Value(LoggerKey).(logrus.FieldLogger); ok {
		return logger
	}
	return logrus.StandardLogger()
}
