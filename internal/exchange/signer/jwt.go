// Package signer packages issued credentials as HS256 JWTs. The signature is a
// sandbox mock: it proves integrity to this process only and carries no
// issuer key material a wallet could verify.
package signer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
)

// CredentialClaims is the packaged view of an issued credential. Only the
// names of the disclosed fields are included, never their values.
type CredentialClaims struct {
	CredentialID   string                  `json:"credential_id"`
	TransactionID  string                  `json:"transaction_id"`
	Scope          models.Scope            `json:"scope"`
	AssuranceLevel models.AssuranceLevel   `json:"ial"`
	Status         models.CredentialStatus `json:"status"`
	Disclosed      []string                `json:"disclosed,omitempty"`
	jwt.RegisteredClaims
}

// JWT signs credentials with a shared HMAC key.
type JWT struct {
	key      []byte
	audience string
}

// NewJWT returns a signer using key. An empty key is rejected.
func NewJWT(key, audience string) (*JWT, error) {
	if key == "" {
		return nil, errors.New("signing key is required")
	}
	return &JWT{key: []byte(key), audience: audience}, nil
}

// Sign packages c. The credential must be ISSUED with a bound holder.
func (s *JWT) Sign(_ context.Context, c models.CredentialOffer) (string, error) {
	if c.Status != models.StatusIssued || c.IssuedAt == nil {
		return "", dErrors.New(dErrors.CodeCredentialNotIssued, "only issued credentials can be packaged")
	}
	if c.HolderDID == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "issued credential has no holder")
	}

	disclosed := make([]string, 0, len(c.SelectedDisclosures))
	for k := range c.SelectedDisclosures {
		disclosed = append(disclosed, k)
	}
	slices.Sort(disclosed)

	claims := CredentialClaims{
		CredentialID:   c.CredentialID,
		TransactionID:  c.TransactionID,
		Scope:          c.PrimaryScope,
		AssuranceLevel: c.AssuranceLevel,
		Status:         c.Status,
		Disclosed:      disclosed,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   c.IssuerID,
			Subject:  c.HolderDID,
			IssuedAt: jwt.NewNumericDate(c.LastActionAt),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	if c.RetentionExpiresAt != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*c.RetentionExpiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Parse verifies a token produced by Sign and returns its claims. Expiry is
// not enforced; retention, not the token, decides a credential's lifetime.
func (s *JWT) Parse(token string) (*CredentialClaims, error) {
	claims := &CredentialClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid credential token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential token")
	}
	return claims, nil
}
