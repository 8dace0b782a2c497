// Package authtest provides an in-process identity provider for tests: an
// RSA signing key and an httptest server publishing its key set.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs external tokens and serves the matching JWKS
type Issuer struct {
	Server *httptest.Server
	key    *rsa.PrivateKey
	kid    string
}

// NewIssuer starts a key set server that is closed with the test
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	iss := &Issuer{key: key, kid: "test-key"}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": iss.kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	})
	iss.Server = httptest.NewServer(mux)
	t.Cleanup(iss.Server.Close)
	return iss
}

// URL is the issuer URL tokens are minted for
func (i *Issuer) URL() string {
	return i.Server.URL
}

// Token signs claims with the published key. iss and exp are filled in
// when absent.
func (i *Issuer) Token(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return SignWith(t, i.key, i.kid, i.withDefaults(claims))
}

// UntrustedToken signs claims with a fresh key that is not published
func (i *Issuer) UntrustedToken(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return SignWith(t, other, i.kid, i.withDefaults(claims))
}

func (i *Issuer) withDefaults(claims jwt.MapClaims) jwt.MapClaims {
	out := jwt.MapClaims{}
	for k, v := range claims {
		out[k] = v
	}
	if _, ok := out["iss"]; !ok {
		out["iss"] = i.URL()
	}
	if _, ok := out["exp"]; !ok {
		out["exp"] = time.Now().Add(time.Hour).Unix()
	}
	return out
}

// SignWith produces an RS256 token with the given key and key id
func SignWith(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
