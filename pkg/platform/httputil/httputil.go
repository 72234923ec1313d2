package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "medssi/pkg/domain-errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, so an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError is the single place where domain errors become HTTP responses.
// Errors without a domain code are reported as internal_error with no
// description so internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:       string(domainErr.Code),
			Description: domainErr.Message,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: string(dErrors.CodeInternal)})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvariantViolation,
		dErrors.CodePolicyInvalid, dErrors.CodeMissingPayload, dErrors.CodeDisclosureInvalid,
		dErrors.CodeFieldsRequired:
		return http.StatusBadRequest
	case dErrors.CodeNotFound, dErrors.CodeCredentialNotFound:
		return http.StatusNotFound
	case dErrors.CodeSessionExpired:
		return http.StatusGone
	case dErrors.CodeConflict, dErrors.CodeCredentialNotIssued, dErrors.CodeUnsupportedAction:
		return http.StatusConflict
	case dErrors.CodeForbidden, dErrors.CodeAssuranceInsufficient, dErrors.CodeHolderMismatch,
		dErrors.CodeFieldsNotAuthorized, dErrors.CodeFieldsNotConsented:
		return http.StatusForbidden
	case dErrors.CodeValueMismatch:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
