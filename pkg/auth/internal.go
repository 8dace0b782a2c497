package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// InternalTokenHeader carries internal tokens on actor-to-actor calls
	InternalTokenHeader = "X-Internal-Token"
	// InternalTokenTTL is the lifetime of an internal token
	InternalTokenTTL = time.Hour
	// internalIssuer is the iss claim of every internal token
	internalIssuer = "tenantd-internal"
)

// InternalClaims is the claim set of an internal token
type InternalClaims struct {
	OrganizationID string `json:"organizationId,omitempty"`
	SubjectID      string `json:"subjectId"`
	jwt.RegisteredClaims
}

// InternalTokens mints and verifies internal tokens. Expiry is the only
// revocation mechanism.
type InternalTokens struct {
	secret SecretSource
	now    func() time.Time
}

// NewInternalTokens creates an internal token issuer/verifier
func NewInternalTokens(secret SecretSource) *InternalTokens {
	if secret == nil {
		secret = StaticSecret("")
	}
	return &InternalTokens{
		secret: secret,
		now:    time.Now,
	}
}

// Configured reports whether a secret is available
func (t *InternalTokens) Configured() bool {
	return len(t.secret.Secret()) > 0
}

// Mint issues a token bound to the organization/subject pair
func (t *InternalTokens) Mint(organizationID, subjectID string) (string, error) {
	key := t.secret.Secret()
	if len(key) == 0 {
		return "", ErrNoSecret
	}
	if subjectID == "" {
		return "", fmt.Errorf("subject id is required")
	}

	now := t.now()
	claims := &InternalClaims{
		OrganizationID: organizationID,
		SubjectID:      subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    internalIssuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(InternalTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign internal token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of an internal token and returns
// the identity it carries.
func (t *InternalTokens) Verify(tokenString string) (Identity, error) {
	key := t.secret.Secret()
	if len(key) == 0 {
		return Identity{}, ErrNoSecret
	}

	claims := &InternalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	},
		jwt.WithIssuer(internalIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.SubjectID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		SubjectID:      claims.SubjectID,
		OrganizationID: claims.OrganizationID,
		Source:         SourceInternal,
	}, nil
}
