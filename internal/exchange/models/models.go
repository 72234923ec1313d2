package models

import (
	"maps"
	"time"
)

// DisclosurePolicy lists the field paths a scope permits a holder to reveal.
// Policies are fixed when the offer is created; a revision needs a new offer.
type DisclosurePolicy struct {
	Scope       Scope    `json:"scope"`
	Fields      []string `json:"fields"`
	Description string   `json:"description,omitempty"`
}

// CredentialOffer is the credential aggregate, from unaccepted offer through its
// terminal states.
//
// Invariants:
//   - exactly one policy per scope and every policy has at least one field
//   - ExpiresAt is never before CreatedAt
//   - a WITHOUT_DATA offer only reaches ISSUED with a payload
//   - SelectedDisclosures keys are a subset of the union of all policy fields
type CredentialOffer struct {
	CredentialID       string             `json:"credential_id"`
	TransactionID      string             `json:"transaction_id"`
	IssuerID           string             `json:"issuer_id"`
	PrimaryScope       Scope              `json:"primary_scope"`
	AssuranceLevel     AssuranceLevel     `json:"ial"`
	Mode               IssuanceMode       `json:"mode"`
	QRToken            string             `json:"qr_token"`
	Nonce              string             `json:"nonce"`
	Status             CredentialStatus   `json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
	ExpiresAt          time.Time          `json:"expires_at"`
	LastActionAt       time.Time          `json:"last_action_at"`
	IssuedAt           *time.Time         `json:"issued_at,omitempty"`
	RetentionExpiresAt *time.Time         `json:"retention_expires_at,omitempty"`
	SealedAt           *time.Time         `json:"sealed_at,omitempty"`
	DisclosurePolicies []DisclosurePolicy `json:"disclosure_policies"`
	HolderDID          string             `json:"holder_did,omitempty"`
	HolderHint         string             `json:"holder_hint,omitempty"`
	Payload            *Payload           `json:"payload,omitempty"`
	PayloadTemplate    *Payload           `json:"payload_template,omitempty"`
	// SelectedDisclosures maps a field path to the value the holder chose to share.
	SelectedDisclosures map[string]string `json:"selected_disclosures"`
	// ExternalFields maps compatibility aliases (e.g. cond_code) to raw values.
	ExternalFields map[string]string `json:"external_fields"`
}

// IsActive reports whether the offer is live at asOf.
func (c *CredentialOffer) IsActive(asOf time.Time) bool {
	return !c.Status.IsTerminal() && !asOf.After(c.ExpiresAt)
}

// SatisfiesAssurance compares the credential's assurance level with required.
func (c *CredentialOffer) SatisfiesAssurance(required AssuranceLevel) bool {
	return c.AssuranceLevel.Satisfies(required)
}

// IsSealed reports whether the personal payload has been removed by retention.
func (c *CredentialOffer) IsSealed() bool {
	return c.SealedAt != nil
}

// Clone returns a deep copy so callers never share maps or payloads with the store.
func (c *CredentialOffer) Clone() *CredentialOffer {
	if c == nil {
		return nil
	}
	out := *c
	out.IssuedAt = cloneTime(c.IssuedAt)
	out.RetentionExpiresAt = cloneTime(c.RetentionExpiresAt)
	out.SealedAt = cloneTime(c.SealedAt)
	out.DisclosurePolicies = ClonePolicies(c.DisclosurePolicies)
	out.Payload = c.Payload.Clone()
	out.PayloadTemplate = c.PayloadTemplate.Clone()
	out.SelectedDisclosures = cloneStrings(c.SelectedDisclosures)
	out.ExternalFields = cloneStrings(c.ExternalFields)
	return &out
}

// ClonePolicies deep copies a policy list.
func ClonePolicies(policies []DisclosurePolicy) []DisclosurePolicy {
	if policies == nil {
		return nil
	}
	out := make([]DisclosurePolicy, len(policies))
	for i, p := range policies {
		p.Fields = append([]string(nil), p.Fields...)
		out[i] = p
	}
	return out
}

// VerificationSession is a verifier's request window.
type VerificationSession struct {
	SessionID              string         `json:"session_id"`
	TransactionID          string         `json:"transaction_id,omitempty"`
	VerifierID             string         `json:"verifier_id"`
	VerifierName           string         `json:"verifier_name"`
	Purpose                string         `json:"purpose"`
	RequiredAssuranceLevel AssuranceLevel `json:"required_ial"`
	Scope                  Scope          `json:"scope"`
	AllowedFields          []string       `json:"allowed_fields"`
	QRToken                string         `json:"qr_token"`
	CreatedAt              time.Time      `json:"created_at"`
	ExpiresAt              time.Time      `json:"expires_at"`
	LastPolledAt           time.Time      `json:"last_polled_at"`
	TemplateRef            string         `json:"template_ref,omitempty"`
}

// IsActive reports whether the session still accepts presentations at asOf.
func (s *VerificationSession) IsActive(asOf time.Time) bool {
	return !asOf.After(s.ExpiresAt)
}

// Allows reports whether field is among the session's allowed fields.
func (s *VerificationSession) Allows(field string) bool {
	for _, f := range s.AllowedFields {
		if f == field {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the session.
func (s *VerificationSession) Clone() *VerificationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.AllowedFields = append([]string(nil), s.AllowedFields...)
	return &out
}

// Presentation is the immutable record of one verification attempt.
type Presentation struct {
	PresentationID  string            `json:"presentation_id"`
	SessionID       string            `json:"session_id"`
	CredentialID    string            `json:"credential_id"`
	HolderDID       string            `json:"holder_did"`
	VerifierID      string            `json:"verifier_id"`
	Scope           Scope             `json:"scope"`
	DisclosedFields map[string]string `json:"disclosed_fields"`
	IssuedAt        time.Time         `json:"issued_at"`
	// Nonce binds the presentation to the offer it was produced from.
	Nonce string `json:"nonce"`
}

// VerificationResult is keyed by (SessionID, Presentation.PresentationID).
type VerificationResult struct {
	SessionID    string       `json:"session_id"`
	VerifierID   string       `json:"verifier_id"`
	Verified     bool         `json:"verified"`
	Presentation Presentation `json:"presentation"`
}

// Clone returns a deep copy of the result and its presentation.
func (r *VerificationResult) Clone() *VerificationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Presentation.DisclosedFields = cloneStrings(r.Presentation.DisclosedFields)
	return &out
}

// RiskInsight is the advisory output of the analytics collaborator.
type RiskInsight struct {
	Scope                Scope              `json:"scope"`
	RiskScore            float64            `json:"risk_score"`
	TrendWindowDays      int                `json:"trend_window_days"`
	SupportingIndicators map[string]float64 `json:"supporting_indicators"`
}

// ForgetSummary reports what a holder erasure removed.
type ForgetSummary struct {
	HolderDID                  string `json:"holder_did"`
	CredentialsRemoved         int    `json:"credentials_removed"`
	PresentationsRemoved       int    `json:"presentations_removed"`
	VerificationResultsRemoved int    `json:"verification_results_removed"`
}

// SweepResult reports what a retention sweep changed.
type SweepResult struct {
	OffersExpired       int `json:"offers_expired"`
	CredentialsDeleted  int `json:"credentials_deleted"`
	CredentialsSealed   int `json:"credentials_sealed"`
	SessionsPurged      int `json:"sessions_purged"`
	PresentationsPurged int `json:"presentations_purged"`
	ResultsPurged       int `json:"results_purged"`
}

// Changed reports whether the sweep touched anything.
func (r SweepResult) Changed() bool {
	return r != SweepResult{}
}

// Add accumulates other into r.
func (r *SweepResult) Add(other SweepResult) {
	r.OffersExpired += other.OffersExpired
	r.CredentialsDeleted += other.CredentialsDeleted
	r.CredentialsSealed += other.CredentialsSealed
	r.SessionsPurged += other.SessionsPurged
	r.PresentationsPurged += other.PresentationsPurged
	r.ResultsPurged += other.ResultsPurged
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
