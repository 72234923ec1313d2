package models

import dErrors "medssi/pkg/domain-errors"

// Sentinels for errors.Is checks. Domain errors match by code, so any error
// carrying the same code satisfies errors.Is regardless of message.
var (
	ErrPolicy                = dErrors.New(dErrors.CodePolicyInvalid, "invalid disclosure policy")
	ErrMissingPayload        = dErrors.New(dErrors.CodeMissingPayload, "payload required before issuance")
	ErrDisclosureInvalid     = dErrors.New(dErrors.CodeDisclosureInvalid, "disclosure outside policy")
	ErrSessionExpired        = dErrors.New(dErrors.CodeSessionExpired, "verification session expired")
	ErrCredentialNotFound    = dErrors.New(dErrors.CodeCredentialNotFound, "credential not found")
	ErrCredentialNotIssued   = dErrors.New(dErrors.CodeCredentialNotIssued, "credential not issued")
	ErrAssuranceInsufficient = dErrors.New(dErrors.CodeAssuranceInsufficient, "assurance level insufficient")
	ErrHolderMismatch        = dErrors.New(dErrors.CodeHolderMismatch, "holder mismatch")
	ErrFieldsNotAuthorized   = dErrors.New(dErrors.CodeFieldsNotAuthorized, "fields not authorized")
	ErrFieldsNotConsented    = dErrors.New(dErrors.CodeFieldsNotConsented, "fields not consented")
	ErrValueMismatch         = dErrors.New(dErrors.CodeValueMismatch, "disclosed value mismatch")
	ErrFieldsRequired        = dErrors.New(dErrors.CodeFieldsRequired, "at least one field is required")
	ErrUnsupportedAction     = dErrors.New(dErrors.CodeUnsupportedAction, "unsupported action")
)
