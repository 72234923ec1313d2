package models

import (
	"fmt"
	"strings"

	dErrors "medssi/pkg/domain-errors"
)

// Scope identifies a disclosure context. Each credential carries at most one
// disclosure policy per scope.
type Scope string

const (
	ScopeMedicalRecord     Scope = "MEDICAL_RECORD"
	ScopeMedicationPickup  Scope = "MEDICATION_PICKUP"
	ScopeResearchAnalytics Scope = "RESEARCH_ANALYTICS"
)

// SupportedScopes lists the scopes the engine knows, in default-policy order.
var SupportedScopes = []Scope{ScopeMedicalRecord, ScopeMedicationPickup, ScopeResearchAnalytics}

// IsValid reports whether s is a supported scope.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeMedicalRecord, ScopeMedicationPickup, ScopeResearchAnalytics:
		return true
	}
	return false
}

func (s Scope) String() string { return string(s) }

// ParseScope validates a scope string. Matching is case-insensitive.
func ParseScope(value string) (Scope, error) {
	s := Scope(strings.ToUpper(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported scope %q", value))
	}
	return s, nil
}

// AssuranceLevel is the identity assurance level (IAL) behind a credential.
// Levels are totally ordered by Rank, never compared lexically.
type AssuranceLevel string

const (
	// AssuranceMyDataLight is a MyData mobile login (phone number plus health card number).
	AssuranceMyDataLight AssuranceLevel = "MYDATA_LIGHT"
	// AssuranceNHICardPIN is an NHI smart card with PIN on a bound device.
	AssuranceNHICardPIN AssuranceLevel = "NHI_CARD_PIN"
	// AssuranceMOICACert is a MOICA citizen digital certificate with a card reader.
	AssuranceMOICACert AssuranceLevel = "MOICA_CERT"
)

var assuranceRank = map[AssuranceLevel]int{
	AssuranceMyDataLight: 1,
	AssuranceNHICardPIN:  2,
	AssuranceMOICACert:   3,
}

var assuranceDescriptions = map[AssuranceLevel]string{
	AssuranceMyDataLight: "MyData mobile verification (phone number and health card number), remote IAL2 proofing.",
	AssuranceNHICardPIN:  "NHI card with PIN bound to the NHI Express app, IAL2 strength.",
	AssuranceMOICACert:   "Citizen digital certificate or healthcare professional card issued in person, IAL3.",
}

// IsValid reports whether a is a known assurance level.
func (a AssuranceLevel) IsValid() bool {
	_, ok := assuranceRank[a]
	return ok
}

// Rank returns the position of a in the total order; unknown levels rank 0.
func (a AssuranceLevel) Rank() int {
	return assuranceRank[a]
}

// Satisfies reports whether a is at least as strong as required.
func (a AssuranceLevel) Satisfies(required AssuranceLevel) bool {
	return a.IsValid() && a.Rank() >= required.Rank()
}

// Description returns the human readable explanation shown to wallets and verifiers.
func (a AssuranceLevel) Description() string {
	return assuranceDescriptions[a]
}

func (a AssuranceLevel) String() string { return string(a) }

// ParseAssuranceLevel validates an assurance level string.
func ParseAssuranceLevel(value string) (AssuranceLevel, error) {
	a := AssuranceLevel(strings.ToUpper(strings.TrimSpace(value)))
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported assurance level %q", value))
	}
	return a, nil
}

// IssuanceMode tells whether the issuer supplied the payload at offer time.
type IssuanceMode string

const (
	ModeWithData    IssuanceMode = "WITH_DATA"
	ModeWithoutData IssuanceMode = "WITHOUT_DATA"
)

// CredentialStatus is the state of the credential state machine.
type CredentialStatus string

const (
	StatusOffered  CredentialStatus = "OFFERED"
	StatusIssued   CredentialStatus = "ISSUED"
	StatusDeclined CredentialStatus = "DECLINED"
	StatusRevoked  CredentialStatus = "REVOKED"
)

// IsTerminal reports whether no further transition may leave this status.
func (s CredentialStatus) IsTerminal() bool {
	return s == StatusDeclined || s == StatusRevoked
}

// CredentialAction is a holder or issuer driven transition request.
type CredentialAction string

const (
	ActionAccept  CredentialAction = "ACCEPT"
	ActionDecline CredentialAction = "DECLINE"
	ActionRevoke  CredentialAction = "REVOKE"
	ActionUpdate  CredentialAction = "UPDATE"
)

// ParseCredentialAction normalizes an action string. Unknown actions are returned
// unchanged so the state machine can reject them with UnsupportedAction.
func ParseCredentialAction(value string) CredentialAction {
	return CredentialAction(strings.ToUpper(strings.TrimSpace(value)))
}
