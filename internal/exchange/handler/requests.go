package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/validation"
)

// offerRequest is the issuer body for both qrcode routes. The route picks the
// issuance mode; any mode in the body is ignored.
type offerRequest struct {
	models.OfferRequest
	ValidForMinutes int `json:"valid_for_minutes,omitempty"`
}

func (r *offerRequest) Normalize() {
	r.IssuerID = strings.TrimSpace(r.IssuerID)
	r.HolderDID = strings.TrimSpace(r.HolderDID)
	r.AssuranceLevel = models.AssuranceLevel(strings.ToUpper(strings.TrimSpace(string(r.AssuranceLevel))))
	r.PrimaryScope = models.Scope(strings.ToUpper(strings.TrimSpace(string(r.PrimaryScope))))
}

func (r *offerRequest) Validate() error {
	if r.IssuerID == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer_id is required")
	}
	if r.ValidForMinutes < 0 {
		return dErrors.New(dErrors.CodeValidation, "valid_for_minutes must not be negative")
	}
	if err := validation.CheckStringLength("issuer_id", r.IssuerID, validation.MaxIdentifierLen); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("disclosure_policies", len(r.DisclosurePolicies), validation.MaxPolicies); err != nil {
		return err
	}
	if err := validation.CheckMapBounds("external_fields", r.ExternalFields, validation.MaxDisclosedFields, validation.MaxFieldPathLength, validation.MaxFieldValueLen); err != nil {
		return err
	}
	if _, err := models.ParseAssuranceLevel(string(r.AssuranceLevel)); err != nil {
		return err
	}
	if r.PrimaryScope != "" {
		if _, err := models.ParseScope(string(r.PrimaryScope)); err != nil {
			return err
		}
	}
	return nil
}

func (r *offerRequest) toModel(mode models.IssuanceMode) models.OfferRequest {
	req := r.OfferRequest
	req.Mode = mode
	req.ValidFor = time.Duration(r.ValidForMinutes) * time.Minute
	return req
}

// presentationRequest bounds a holder presentation before it reaches the engine.
type presentationRequest struct {
	models.PresentationRequest
}

func (r *presentationRequest) Validate() error {
	return validation.CheckMapBounds("disclosed_fields", r.DisclosedFields,
		validation.MaxDisclosedFields, validation.MaxFieldPathLength, validation.MaxFieldValueLen)
}

// sessionQuery is the verifier QR request as sent on the query string.
type sessionQuery struct {
	VerifierID      string   `json:"verifier_id" validate:"notblank,max=256"`
	VerifierName    string   `json:"verifier_name" validate:"max=256"`
	Purpose         string   `json:"purpose" validate:"max=1024"`
	Scope           string   `json:"scope" validate:"required"`
	AssuranceLevel  string   `json:"ial" validate:"required"`
	Fields          []string `json:"fields" validate:"max=64,dive,max=256"`
	TransactionID   string   `json:"transaction_id" validate:"max=256"`
	TemplateRef     string   `json:"template_ref" validate:"max=256"`
	ValidForSeconds int      `json:"valid_for_seconds" validate:"min=0"`
}

// sessionRequestFromQuery reads the verifier QR request. fields may be a
// comma-separated list, repeated, or both.
func sessionRequestFromQuery(q url.Values) (models.SessionRequest, error) {
	query := sessionQuery{
		VerifierID:     strings.TrimSpace(q.Get("verifier_id")),
		VerifierName:   strings.TrimSpace(q.Get("verifier_name")),
		Purpose:        strings.TrimSpace(q.Get("purpose")),
		Scope:          q.Get("scope"),
		AssuranceLevel: q.Get("ial"),
		TransactionID:  strings.TrimSpace(q.Get("transaction_id")),
		TemplateRef:    strings.TrimSpace(q.Get("template_ref")),
		Fields:         splitFields(q["fields"]),
	}
	if raw := q.Get("valid_for_seconds"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return models.SessionRequest{}, dErrors.New(dErrors.CodeValidation, "valid_for_seconds must be an integer")
		}
		query.ValidForSeconds = secs
	}
	if err := validation.Validate(query); err != nil {
		return models.SessionRequest{}, err
	}

	scope, err := models.ParseScope(query.Scope)
	if err != nil {
		return models.SessionRequest{}, err
	}
	ial, err := models.ParseAssuranceLevel(query.AssuranceLevel)
	if err != nil {
		return models.SessionRequest{}, err
	}
	return models.SessionRequest{
		VerifierID:             query.VerifierID,
		VerifierName:           query.VerifierName,
		Purpose:                query.Purpose,
		RequiredAssuranceLevel: ial,
		Scope:                  scope,
		Fields:                 query.Fields,
		TransactionID:          query.TransactionID,
		TemplateRef:            query.TemplateRef,
		TTL:                    time.Duration(query.ValidForSeconds) * time.Second,
	}, nil
}

type deleteResponse struct {
	CredentialID string `json:"credential_id"`
	Deleted      bool   `json:"deleted"`
}

type holderCredentialsResponse struct {
	HolderDID   string                    `json:"holder_did"`
	Credentials []*models.CredentialOffer `json:"credentials"`
}

type purgeResponse struct {
	SessionID string             `json:"session_id"`
	Purged    models.SweepResult `json:"purged"`
}

type sessionsResponse struct {
	Sessions []*models.VerificationSession `json:"sessions"`
}

type resetResponse struct {
	Timestamp time.Time `json:"timestamp"`
}
