package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Selective-disclosure engine codes
	CodePolicyInvalid         Code = "policy_invalid"         // Empty, duplicate or empty-field disclosure policy
	CodeMissingPayload        Code = "missing_payload"        // WITHOUT_DATA offer accepted without a payload
	CodeDisclosureInvalid     Code = "disclosure_invalid"     // Disclosed field outside the policy field set
	CodeSessionExpired        Code = "session_expired"        // Verification session missing or past expiry
	CodeCredentialNotFound    Code = "credential_not_found"   // Unknown credential id or transaction id
	CodeCredentialNotIssued   Code = "credential_not_issued"  // Credential exists but is not presentable
	CodeAssuranceInsufficient Code = "assurance_insufficient" // Credential assurance below the session requirement
	CodeHolderMismatch        Code = "holder_mismatch"        // Presented holder differs from the bound holder
	CodeFieldsNotAuthorized   Code = "fields_not_authorized"  // Field outside the session's allowed fields
	CodeFieldsNotConsented    Code = "fields_not_consented"   // Field the holder did not select for disclosure
	CodeValueMismatch         Code = "value_mismatch"         // Presented value differs from ground truth
	CodeFieldsRequired        Code = "fields_required"        // Session requested no fields
	CodeUnsupportedAction     Code = "unsupported_action"     // Action not allowed from the current state
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in the chain,
// or CodeInternal when err carries no domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
