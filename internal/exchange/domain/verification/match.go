package verification

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"medssi/internal/exchange/domain/alias"
	"medssi/internal/exchange/domain/fieldpath"
	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
)

// Match checks a presentation against its session and the stored credential
// and returns the accepted fields keyed by session field name.
//
// Checks run in a fixed order and the first failure rejects the whole
// presentation:
//
//  1. session exists and is active
//  2. credential exists and is ISSUED and unsealed
//  3. credential assurance satisfies the session
//  4. presented holder owns the credential
//  5. every presented field is allowed by the session
//  6. every presented field was selected by the holder
//  7. every presented value equals the credential's ground truth, when known
//
// An empty holder selection consents to every field the session allows. That
// shortcut keeps older wallets working and is not a security boundary.
func Match(session *models.VerificationSession, cred *models.CredentialOffer, holderDID string, disclosed map[string]string, now time.Time) (map[string]string, error) {
	if session == nil || !session.IsActive(now) {
		return nil, dErrors.New(dErrors.CodeSessionExpired, "verification session is missing or expired")
	}
	if cred == nil {
		return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not found")
	}
	if cred.Status != models.StatusIssued || cred.IsSealed() {
		return nil, dErrors.New(dErrors.CodeCredentialNotIssued, fmt.Sprintf("credential is %s", describeStatus(cred)))
	}
	if !cred.SatisfiesAssurance(session.RequiredAssuranceLevel) {
		return nil, dErrors.New(dErrors.CodeAssuranceInsufficient,
			fmt.Sprintf("credential assurance %s does not satisfy %s", cred.AssuranceLevel, session.RequiredAssuranceLevel))
	}
	if cred.HolderDID != strings.TrimSpace(holderDID) {
		return nil, dErrors.New(dErrors.CodeHolderMismatch, "holder does not own this credential")
	}

	keys := sortedKeys(disclosed)
	for _, k := range keys {
		if !alias.Contains(session.AllowedFields, k) {
			return nil, dErrors.New(dErrors.CodeFieldsNotAuthorized, fmt.Sprintf("field %q was not requested by the verifier", k))
		}
	}
	if len(cred.SelectedDisclosures) > 0 {
		selected := sortedKeys(cred.SelectedDisclosures)
		for _, k := range keys {
			if !alias.Contains(selected, k) {
				return nil, dErrors.New(dErrors.CodeFieldsNotConsented, fmt.Sprintf("holder did not consent to disclose %q", k))
			}
		}
	}

	// Every presented key is compared, so an alias and its canonical path
	// presented together must both agree with the credential and each other.
	accepted := make(map[string]string)
	for _, k := range keys {
		presented := disclosed[k]
		field := sessionField(session.AllowedFields, k)
		if truth, known := GroundTruth(cred, field); known && truth != presented {
			return nil, dErrors.New(dErrors.CodeValueMismatch, fmt.Sprintf("value for %q does not match the credential", k))
		}
		if prev, seen := accepted[field]; seen && prev != presented {
			return nil, dErrors.New(dErrors.CodeValueMismatch, fmt.Sprintf("conflicting values presented for %q", field))
		}
		accepted[field] = presented
	}
	return accepted, nil
}

// sessionField returns the session's own name for a presented key.
func sessionField(allowed []string, key string) string {
	for _, f := range allowed {
		if f == key {
			return f
		}
	}
	for _, f := range allowed {
		if alias.Equivalent(f, key) {
			return f
		}
	}
	return key
}

// GroundTruth returns the credential's true value for field: the external
// alias values first, then the canonical path resolved against the payload.
func GroundTruth(cred *models.CredentialOffer, field string) (string, bool) {
	if v, ok := alias.Lookup(cred.ExternalFields, field); ok {
		return v, true
	}
	if cred.Payload == nil {
		return "", false
	}
	return fieldpath.Resolve(cred.Payload, alias.Canonical(field))
}

// NewPresentation records the accepted fields of one verification attempt.
func NewPresentation(presentationID string, session *models.VerificationSession, cred *models.CredentialOffer, accepted map[string]string, now time.Time) models.Presentation {
	fields := make(map[string]string, len(accepted))
	for k, v := range accepted {
		fields[k] = v
	}
	return models.Presentation{
		PresentationID:  presentationID,
		SessionID:       session.SessionID,
		CredentialID:    cred.CredentialID,
		HolderDID:       cred.HolderDID,
		VerifierID:      session.VerifierID,
		Scope:           session.Scope,
		DisclosedFields: fields,
		IssuedAt:        now,
		Nonce:           cred.Nonce,
	}
}

// NewResult wraps a successful presentation.
func NewResult(p models.Presentation) *models.VerificationResult {
	return &models.VerificationResult{
		SessionID:    p.SessionID,
		VerifierID:   p.VerifierID,
		Verified:     true,
		Presentation: p,
	}
}

func describeStatus(c *models.CredentialOffer) string {
	if c.IsSealed() {
		return "sealed"
	}
	return string(c.Status)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
