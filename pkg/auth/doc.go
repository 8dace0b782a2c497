// Package auth implements the two-tier trust boundary in front of tenant actors.
//
// # Overview
//
// End-user requests carry externally issued bearer tokens. They are verified
// against the identity provider's JSON Web Key Set, fetched from
// <issuer>/.well-known/jwks.json and cached by the verifier:
//
//	verifier, err := auth.NewExternalVerifier(ctx, auth.ExternalConfig{
//		IssuerURL: "https://clerk.example.com",
//		Timeout:   5 * time.Second,
//	})
//	identity, err := verifier.Verify(ctx, rawToken)
//
// Actor-to-actor calls carry internal tokens instead. These are HS256 tokens
// minted with a shared secret and valid for one hour:
//
//	tokens := auth.NewInternalTokens(auth.StaticSecret(secret))
//	token, err := tokens.Mint("org_1", "user_1")
//	identity, err := tokens.Verify(token)
//
// There is no development fallback secret. When no secret is configured,
// minting returns ErrNoSecret and every internal token is rejected.
//
// Both verifiers produce an Identity, the request-scoped identity context
// consumed by handlers.
package auth
