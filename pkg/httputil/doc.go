// Package httputil provides HTTP helpers shared by tenantd handlers.
//
// Every error response uses the same envelope:
//
//	{"error": "billing provider unavailable", "details": "..."}
//
// details is omitted when empty and is never set for authentication failures.
//
// Request parsing:
//
//	var req AliasRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
