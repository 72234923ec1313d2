package models

import "time"

// OfferRequest carries the issuer inputs for a new credential offer.
type OfferRequest struct {
	IssuerID           string             `json:"issuer_id"`
	PrimaryScope       Scope              `json:"primary_scope,omitempty"`
	AssuranceLevel     AssuranceLevel     `json:"ial"`
	Mode               IssuanceMode       `json:"mode"`
	HolderDID          string             `json:"holder_did,omitempty"`
	HolderHint         string             `json:"holder_hint,omitempty"`
	Payload            *Payload           `json:"payload,omitempty"`
	PayloadTemplate    *Payload           `json:"payload_template,omitempty"`
	DisclosurePolicies []DisclosurePolicy `json:"disclosure_policies,omitempty"`
	ExternalFields     map[string]string  `json:"external_fields,omitempty"`
	// ValidFor bounds how long the offer stays acceptable.
	ValidFor time.Duration `json:"-"`
}

// ActionRequest is a state machine transition request.
type ActionRequest struct {
	Action      CredentialAction  `json:"action"`
	HolderDID   string            `json:"holder_did,omitempty"`
	Payload     *Payload          `json:"payload,omitempty"`
	Disclosures map[string]string `json:"disclosures,omitempty"`
	// ExternalFields, when set on ACCEPT or UPDATE, replaces the alias values.
	ExternalFields map[string]string `json:"external_fields,omitempty"`
}

// SessionRequest opens a verification session.
type SessionRequest struct {
	VerifierID             string         `json:"verifier_id"`
	VerifierName           string         `json:"verifier_name"`
	Purpose                string         `json:"purpose"`
	RequiredAssuranceLevel AssuranceLevel `json:"ial"`
	Scope                  Scope          `json:"scope"`
	Fields                 []string       `json:"fields"`
	TransactionID          string         `json:"transaction_id,omitempty"`
	TemplateRef            string         `json:"template_ref,omitempty"`
	// TTL overrides the configured session lifetime when positive.
	TTL time.Duration `json:"-"`
}

// PresentationRequest is a holder's answer to a verification session.
type PresentationRequest struct {
	SessionID       string            `json:"session_id"`
	CredentialID    string            `json:"credential_id"`
	HolderDID       string            `json:"holder_did"`
	DisclosedFields map[string]string `json:"disclosed_fields"`
}

// OfferResult is returned to the issuer after an offer is stored.
type OfferResult struct {
	Credential *CredentialOffer `json:"credential"`
	QRPayload  string           `json:"qr_payload"`
}

// TransitionResult is the credential after a transition plus the packaged token,
// present after ACCEPT and UPDATE.
type TransitionResult struct {
	Credential *CredentialOffer `json:"credential"`
	Token      string           `json:"token,omitempty"`
}

// SessionResult is returned to the verifier after a session is opened.
type SessionResult struct {
	Session   *VerificationSession `json:"session"`
	QRPayload string               `json:"qr_payload"`
}

// VerificationOutcome is a recorded verification and its advisory insight.
type VerificationOutcome struct {
	Result  *VerificationResult `json:"result"`
	Insight *RiskInsight        `json:"insight,omitempty"`
}

// SessionStatus is returned when a verifier polls a session.
type SessionStatus struct {
	Session      *VerificationSession `json:"session"`
	LatestResult *VerificationResult  `json:"latest_result,omitempty"`
}

// NonceView is the wallet bootstrap view of an offer.
type NonceView struct {
	CredentialID       string             `json:"credential_id"`
	TransactionID      string             `json:"transaction_id"`
	Nonce              string             `json:"nonce"`
	Status             CredentialStatus   `json:"status"`
	AssuranceLevel     AssuranceLevel     `json:"ial"`
	AssuranceDesc      string             `json:"ial_description"`
	Mode               IssuanceMode       `json:"mode"`
	ExpiresAt          time.Time          `json:"expires_at"`
	DisclosurePolicies []DisclosurePolicy `json:"disclosure_policies"`
	PayloadAvailable   bool               `json:"payload_available"`
	PayloadTemplate    *Payload           `json:"payload_template,omitempty"`
	HolderHint         string             `json:"holder_hint,omitempty"`
	HolderDID          string             `json:"holder_did,omitempty"`
}

// NewNonceView projects an offer into the wallet bootstrap view.
func NewNonceView(c *CredentialOffer) *NonceView {
	return &NonceView{
		CredentialID:       c.CredentialID,
		TransactionID:      c.TransactionID,
		Nonce:              c.Nonce,
		Status:             c.Status,
		AssuranceLevel:     c.AssuranceLevel,
		AssuranceDesc:      c.AssuranceLevel.Description(),
		Mode:               c.Mode,
		ExpiresAt:          c.ExpiresAt,
		DisclosurePolicies: ClonePolicies(c.DisclosurePolicies),
		PayloadAvailable:   c.Payload != nil,
		PayloadTemplate:    c.PayloadTemplate.Clone(),
		HolderHint:         c.HolderHint,
		HolderDID:          c.HolderDID,
	}
}
