// Package middleware provides the authentication pipeline for tenantd routes.
//
// Two independent stages turn a request into an auth.Identity:
//
//   - external: "Authorization: Bearer <token>" verified against the identity
//     provider's published keys
//   - internal: "X-Internal-Token: <token>" verified with the shared secret
//     used by tenant actors to call each other
//
// Authenticator.Handler selects exactly one stage per request. Routes that
// accept only one kind of caller use External or Internal directly:
//
//	authn := middleware.NewAuthenticator(verifier, tokens, log)
//	api.Use(authn.External)
//	internal.Use(authn.Internal)
//	api.Handle("/billing/portal", middleware.RequireOrgRole(auth.RoleAdmin)(h))
//
// Authentication failures answer 401 with a fixed message; the reason is only
// logged. Authorization failures answer 403.
package middleware
