// Package credential is the credential state machine.
//
//	OFFERED -> ISSUED -> ISSUED (UPDATE)
//	OFFERED | ISSUED -> DECLINED | REVOKED
//
// DECLINED and REVOKED are absorbing. Every transition validates completely
// before it mutates the credential, so a rejected action leaves it untouched.
//
// Domain Purity: no I/O, no context.Context, no time.Now(). Callers pass the
// current time.
package credential

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"medssi/internal/exchange/domain/policy"
	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
)

// Identity carries the identifiers and tokens generated for a new offer.
type Identity struct {
	CredentialID  string
	TransactionID string
	Nonce         string
	QRToken       string
}

// NewOffer builds an OFFERED credential from an issuer request.
// A zero ValidFor means the full maxTTL.
func NewOffer(ident Identity, req models.OfferRequest, now time.Time, maxTTL time.Duration) (*models.CredentialOffer, error) {
	if ident.CredentialID == "" || ident.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential and transaction ids are required")
	}
	issuer := strings.TrimSpace(req.IssuerID)
	if issuer == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer_id is required")
	}
	if !req.AssuranceLevel.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported assurance level %q", req.AssuranceLevel))
	}
	validFor := req.ValidFor
	if validFor == 0 {
		validFor = maxTTL
	}
	if validFor <= 0 || validFor > maxTTL {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("valid_for must be within (0, %s]", maxTTL))
	}

	policies, err := policy.ResolveEffective(req.DisclosurePolicies)
	if err != nil {
		return nil, err
	}
	primary := req.PrimaryScope
	if primary == "" {
		primary = policies[0].Scope
	}
	if _, ok := policy.ForScope(policies, primary); !ok {
		return nil, dErrors.New(dErrors.CodePolicyInvalid, fmt.Sprintf("primary scope %s has no disclosure policy", primary))
	}

	offer := &models.CredentialOffer{
		CredentialID:        ident.CredentialID,
		TransactionID:       ident.TransactionID,
		Nonce:               ident.Nonce,
		QRToken:             ident.QRToken,
		IssuerID:            issuer,
		PrimaryScope:        primary,
		AssuranceLevel:      req.AssuranceLevel,
		Mode:                req.Mode,
		Status:              models.StatusOffered,
		CreatedAt:           now,
		ExpiresAt:           now.Add(validFor),
		LastActionAt:        now,
		DisclosurePolicies:  policies,
		HolderDID:           strings.TrimSpace(req.HolderDID),
		HolderHint:          strings.TrimSpace(req.HolderHint),
		SelectedDisclosures: map[string]string{},
		ExternalFields:      normalizeExternal(req.ExternalFields),
	}

	switch req.Mode {
	case models.ModeWithData:
		if req.Payload == nil {
			return nil, dErrors.New(dErrors.CodeMissingPayload, "WITH_DATA offers require a payload")
		}
		payload := req.Payload.Clone()
		payload.Normalize()
		if err := payload.Validate(); err != nil {
			return nil, err
		}
		offer.Payload = payload
	case models.ModeWithoutData:
		if req.Payload != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "WITHOUT_DATA offers carry a payload_template, not a payload")
		}
		offer.PayloadTemplate = req.PayloadTemplate.Clone()
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported issuance mode %q", req.Mode))
	}
	return offer, nil
}

// Apply runs one transition against c at now.
func Apply(c *models.CredentialOffer, req models.ActionRequest, now time.Time, retention RetentionPolicy) error {
	switch req.Action {
	case models.ActionAccept:
		return accept(c, req, now, retention)
	case models.ActionUpdate:
		return update(c, req, now)
	case models.ActionDecline:
		if err := requireStatus(c, req.Action, models.StatusOffered, models.StatusIssued); err != nil {
			return err
		}
		c.Status = models.StatusDeclined
		c.LastActionAt = now
		return nil
	case models.ActionRevoke:
		if err := requireStatus(c, req.Action, models.StatusOffered, models.StatusIssued); err != nil {
			return err
		}
		c.Status = models.StatusRevoked
		revokedAt := now
		c.RetentionExpiresAt = &revokedAt
		c.LastActionAt = now
		return nil
	}
	return dErrors.New(dErrors.CodeUnsupportedAction, fmt.Sprintf("unsupported action %q", req.Action))
}

func accept(c *models.CredentialOffer, req models.ActionRequest, now time.Time, retention RetentionPolicy) error {
	if err := requireStatus(c, req.Action, models.StatusOffered); err != nil {
		return err
	}
	if now.After(c.ExpiresAt) {
		return dErrors.New(dErrors.CodeUnsupportedAction, "offer has expired")
	}
	holder, err := bindHolder(c.HolderDID, req.HolderDID)
	if err != nil {
		return err
	}
	if c.Mode == models.ModeWithoutData && req.Payload == nil {
		return dErrors.New(dErrors.CodeMissingPayload, "WITHOUT_DATA credentials need a payload to be accepted")
	}
	payload, err := preparePayload(req.Payload)
	if err != nil {
		return err
	}
	disclosures, err := selectDisclosures(c.DisclosurePolicies, req.Disclosures)
	if err != nil {
		return err
	}

	c.Status = models.StatusIssued
	c.HolderDID = holder
	issuedAt := now
	c.IssuedAt = &issuedAt
	retainUntil := now.Add(retention.Window(c.PrimaryScope))
	c.RetentionExpiresAt = &retainUntil
	c.LastActionAt = now
	if payload != nil {
		c.Payload = payload
	}
	c.SelectedDisclosures = disclosures
	if req.ExternalFields != nil {
		c.ExternalFields = normalizeExternal(req.ExternalFields)
	}
	return nil
}

func update(c *models.CredentialOffer, req models.ActionRequest, now time.Time) error {
	if err := requireStatus(c, req.Action, models.StatusIssued); err != nil {
		return err
	}
	if c.IsSealed() {
		return dErrors.New(dErrors.CodeUnsupportedAction, "sealed credentials cannot be updated")
	}
	if req.HolderDID != "" && strings.TrimSpace(req.HolderDID) != c.HolderDID {
		return dErrors.New(dErrors.CodeHolderMismatch, "holder does not own this credential")
	}
	if req.Payload == nil && req.Disclosures == nil && req.ExternalFields == nil {
		return dErrors.New(dErrors.CodeValidation, "update requires a payload, disclosures or external fields")
	}
	payload, err := preparePayload(req.Payload)
	if err != nil {
		return err
	}
	disclosures, err := selectDisclosures(c.DisclosurePolicies, req.Disclosures)
	if err != nil {
		return err
	}

	if payload != nil {
		c.Payload = payload
	}
	if req.Disclosures != nil {
		c.SelectedDisclosures = disclosures
	}
	if req.ExternalFields != nil {
		c.ExternalFields = normalizeExternal(req.ExternalFields)
	}
	c.LastActionAt = now
	return nil
}

func requireStatus(c *models.CredentialOffer, action models.CredentialAction, allowed ...models.CredentialStatus) error {
	for _, s := range allowed {
		if c.Status == s {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeUnsupportedAction, fmt.Sprintf("%s is not allowed for a %s credential", action, c.Status))
}

func bindHolder(bound, supplied string) (string, error) {
	bound = strings.TrimSpace(bound)
	supplied = strings.TrimSpace(supplied)
	switch {
	case bound != "" && supplied != "" && bound != supplied:
		return "", dErrors.New(dErrors.CodeHolderMismatch, "holder does not match the offer")
	case bound != "":
		return bound, nil
	case supplied != "":
		return supplied, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "holder_did is required to accept a credential")
}

func preparePayload(p *models.Payload) (*models.Payload, error) {
	if p == nil {
		return nil, nil
	}
	out := p.Clone()
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// selectDisclosures checks the holder's selection against the policies and
// keys it by policy path, so aliases and case variants are stored under the
// path they stand for. Two keys for one path must carry the same value.
func selectDisclosures(policies []models.DisclosurePolicy, in map[string]string) (map[string]string, error) {
	if err := policy.CheckDisclosures(policies, in); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		path, _ := policy.PathFor(policies, k)
		if prev, seen := out[path]; seen && prev != in[k] {
			return nil, dErrors.New(dErrors.CodeDisclosureInvalid, fmt.Sprintf("conflicting values selected for %q", path))
		}
		out[path] = in[k]
	}
	return out, nil
}

func normalizeExternal(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
