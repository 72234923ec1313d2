// Package verification holds the verifier side of the exchange: session
// construction and the all-or-nothing presentation matcher.
//
// Domain Purity: no I/O and no clock. The engine loads the session and the
// credential, calls Match inside its store transaction and persists the result.
package verification

import (
	"fmt"
	"strings"
	"time"

	"medssi/internal/exchange/domain/fieldpath"
	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
	pstrings "medssi/pkg/platform/strings"
)

// SessionIdentity carries the identifiers generated for a new session.
type SessionIdentity struct {
	SessionID string
	QRToken   string
}

// NewSession builds a verification session. Fields are trimmed and deduplicated
// in first-seen order; a non-positive TTL in the request means defaultTTL.
func NewSession(ident SessionIdentity, req models.SessionRequest, now time.Time, defaultTTL time.Duration) (*models.VerificationSession, error) {
	if ident.SessionID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session id is required")
	}
	verifier := strings.TrimSpace(req.VerifierID)
	if verifier == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "verifier_id is required")
	}
	if !req.Scope.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported scope %q", req.Scope))
	}
	if !req.RequiredAssuranceLevel.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported assurance level %q", req.RequiredAssuranceLevel))
	}
	fields := pstrings.DedupeAndTrim(req.Fields)
	if len(fields) == 0 {
		return nil, dErrors.New(dErrors.CodeFieldsRequired, "a verification session must request at least one field")
	}
	for _, f := range fields {
		if !fieldpath.Valid(f) {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("malformed field %q", f))
		}
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &models.VerificationSession{
		SessionID:              ident.SessionID,
		TransactionID:          strings.TrimSpace(req.TransactionID),
		VerifierID:             verifier,
		VerifierName:           strings.TrimSpace(req.VerifierName),
		Purpose:                strings.TrimSpace(req.Purpose),
		RequiredAssuranceLevel: req.RequiredAssuranceLevel,
		Scope:                  req.Scope,
		AllowedFields:          fields,
		QRToken:                ident.QRToken,
		CreatedAt:              now,
		ExpiresAt:              now.Add(ttl),
		LastPolledAt:           now,
		TemplateRef:            strings.TrimSpace(req.TemplateRef),
	}, nil
}
