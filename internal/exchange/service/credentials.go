package service

import (
	"context"
	"strings"
	"time"

	"medssi/internal/exchange/domain/credential"
	"medssi/internal/exchange/models"
	"medssi/internal/exchange/store"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/audit"
	"medssi/pkg/platform/tracer"
)

// Offer creates and stores an OFFERED credential and returns it with the
// wallet QR payload.
func (s *Service) Offer(ctx context.Context, req models.OfferRequest) (res *models.OfferResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanOffer,
		tracer.String(tracer.AttrScope, string(req.PrimaryScope)),
	)
	defer func() {
		span.End(err)
		s.observeLatency("offer", start)
	}()

	now := s.now(ctx)
	if err := s.sweepOnEntry(ctx, span, now); err != nil {
		return nil, err
	}

	offer, err := credential.NewOffer(newCredentialIdentity(), req, now, s.maxOfferTTL)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveCredential(ctx, offer); err != nil {
		return nil, translate(err, dErrors.CodeInternal, "credential")
	}
	span.SetAttributes(
		tracer.String(tracer.AttrCredentialID, offer.CredentialID),
		tracer.String(tracer.AttrScope, string(offer.PrimaryScope)),
	)

	if s.metrics != nil {
		s.metrics.IncrementOffersCreated(offer.PrimaryScope, offer.Mode)
	}
	s.logger.InfoContext(ctx, "credential offered",
		"credential_id", offer.CredentialID,
		"scope", offer.PrimaryScope,
		"mode", offer.Mode,
		"expires_at", offer.ExpiresAt,
	)
	s.emit(ctx, credentialEvent(audit.ActionCredentialOffered, offer, offer.IssuerID, now))

	return &models.OfferResult{
		Credential: offer,
		QRPayload:  credentialQR(offer.QRToken),
	}, nil
}

// Transition applies a holder or issuer action to a credential. The
// read-validate-write sequence runs in one transaction, so concurrent actions
// on the same credential are linearized. ACCEPT and UPDATE return a packaged
// token when a signer is configured.
func (s *Service) Transition(ctx context.Context, credentialID string, req models.ActionRequest) (res *models.TransitionResult, err error) {
	start := time.Now()
	req.Action = models.ParseCredentialAction(string(req.Action))
	ctx, span := s.tracer.Start(ctx, tracer.SpanTransition,
		tracer.String(tracer.AttrCredentialID, credentialID),
		tracer.String(tracer.AttrAction, string(req.Action)),
	)
	defer func() {
		if err != nil {
			span.SetAttributes(tracer.String(tracer.AttrErrorCode, outcome(err)))
		}
		span.End(err)
		s.observeLatency("transition", start)
		if s.metrics != nil {
			s.metrics.IncrementTransition(actionLabel(req.Action), outcome(err))
		}
	}()

	now := s.now(ctx)
	if err := s.sweepOnEntry(ctx, span, now); err != nil {
		return nil, err
	}

	var updated *models.CredentialOffer
	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		c, err := tx.FindCredential(ctx, credentialID)
		if err != nil {
			return translate(err, dErrors.CodeCredentialNotFound, "credential")
		}
		if err := credential.Apply(c, req, now, s.retention); err != nil {
			return err
		}
		if err := tx.UpdateCredential(ctx, c); err != nil {
			return translate(err, dErrors.CodeCredentialNotFound, "credential")
		}
		updated = c
		return nil
	})
	if err != nil {
		s.logger.InfoContext(ctx, "credential transition rejected",
			"credential_id", credentialID,
			"action", req.Action,
			"reason", outcome(err),
		)
		return nil, err
	}
	span.SetAttributes(
		tracer.String(tracer.AttrStatus, string(updated.Status)),
		tracer.String(tracer.AttrHolderHash, tracer.HashDID(updated.HolderDID)),
	)

	res = &models.TransitionResult{Credential: updated}
	if s.signer != nil && (req.Action == models.ActionAccept || req.Action == models.ActionUpdate) {
		token, signErr := s.signer.Sign(ctx, *updated.Clone())
		if signErr != nil {
			// The transition is committed; the wallet can request a fresh token with UPDATE.
			s.logger.ErrorContext(ctx, "failed to package credential",
				"credential_id", credentialID,
				"error", signErr,
			)
		} else {
			res.Token = token
		}
	}

	s.logger.InfoContext(ctx, "credential transitioned",
		"credential_id", credentialID,
		"action", req.Action,
		"status", updated.Status,
	)
	s.emit(ctx, credentialEvent(transitionAudit[req.Action], updated, actorFor(req.Action), now))
	return res, nil
}

// RevokeCredential is the issuer-side REVOKE.
func (s *Service) RevokeCredential(ctx context.Context, credentialID string) (*models.CredentialOffer, error) {
	res, err := s.Transition(ctx, credentialID, models.ActionRequest{Action: models.ActionRevoke})
	if err != nil {
		return nil, err
	}
	return res.Credential, nil
}

// DeleteCredential hard-deletes a credential regardless of its state.
// Presentations already recorded against it are kept.
func (s *Service) DeleteCredential(ctx context.Context, credentialID string) error {
	now := s.now(ctx)
	var deleted *models.CredentialOffer
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		c, err := tx.FindCredential(ctx, credentialID)
		if err != nil {
			return translate(err, dErrors.CodeCredentialNotFound, "credential")
		}
		if err := tx.DeleteCredential(ctx, credentialID); err != nil {
			return translate(err, dErrors.CodeCredentialNotFound, "credential")
		}
		deleted = c
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "credential deleted", "credential_id", credentialID)
	s.emit(ctx, credentialEvent(audit.ActionCredentialDeleted, deleted, deleted.IssuerID, now))
	return nil
}

// GetCredential returns one credential.
func (s *Service) GetCredential(ctx context.Context, credentialID string) (*models.CredentialOffer, error) {
	if err := s.sweepOnEntry(ctx, nil, s.now(ctx)); err != nil {
		return nil, err
	}
	c, err := s.store.FindCredential(ctx, credentialID)
	if err != nil {
		return nil, translate(err, dErrors.CodeCredentialNotFound, "credential")
	}
	return c, nil
}

// CredentialByTransaction returns the wallet bootstrap view for a transaction id.
func (s *Service) CredentialByTransaction(ctx context.Context, transactionID string) (*models.NonceView, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction_id is required")
	}
	if err := s.sweepOnEntry(ctx, nil, s.now(ctx)); err != nil {
		return nil, err
	}
	c, err := s.store.FindCredentialByTransaction(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return nil, translate(err, dErrors.CodeCredentialNotFound, "credential offer")
	}
	return models.NewNonceView(c), nil
}

// CredentialByNonce returns the wallet bootstrap view for a nonce.
func (s *Service) CredentialByNonce(ctx context.Context, nonce string) (*models.NonceView, error) {
	if strings.TrimSpace(nonce) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "nonce is required")
	}
	if err := s.sweepOnEntry(ctx, nil, s.now(ctx)); err != nil {
		return nil, err
	}
	c, err := s.store.FindCredentialByNonce(ctx, strings.TrimSpace(nonce))
	if err != nil {
		return nil, translate(err, dErrors.CodeCredentialNotFound, "credential offer")
	}
	return models.NewNonceView(c), nil
}

// ListHolderCredentials returns every credential bound to holderDID.
func (s *Service) ListHolderCredentials(ctx context.Context, holderDID string) ([]*models.CredentialOffer, error) {
	holderDID = strings.TrimSpace(holderDID)
	if holderDID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "holder_did is required")
	}
	if err := s.sweepOnEntry(ctx, nil, s.now(ctx)); err != nil {
		return nil, err
	}
	creds, err := s.store.ListCredentialsForHolder(ctx, holderDID)
	if err != nil {
		return nil, translate(err, dErrors.CodeNotFound, "holder")
	}
	return creds, nil
}

// ForgetHolder erases every credential bound to holderDID together with the
// presentations and results that reference them.
func (s *Service) ForgetHolder(ctx context.Context, holderDID string) (summary models.ForgetSummary, err error) {
	holderDID = strings.TrimSpace(holderDID)
	ctx, span := s.tracer.Start(ctx, tracer.SpanForgetHolder,
		tracer.String(tracer.AttrHolderHash, tracer.HashDID(holderDID)),
	)
	defer func() { span.End(err) }()

	if holderDID == "" {
		return models.ForgetSummary{}, dErrors.New(dErrors.CodeValidation, "holder_did is required")
	}
	now := s.now(ctx)
	summary, err = s.store.ForgetHolder(ctx, holderDID)
	if err != nil {
		return models.ForgetSummary{}, translate(err, dErrors.CodeNotFound, "holder")
	}

	if s.metrics != nil {
		s.metrics.IncrementHoldersForgotten()
	}
	s.logger.InfoContext(ctx, "holder forgotten",
		"holder_hash", tracer.HashDID(holderDID),
		"credentials_removed", summary.CredentialsRemoved,
		"presentations_removed", summary.PresentationsRemoved,
	)
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    string(audit.ActionHolderForgotten),
		Actor:     "wallet",
		Subject:   tracer.HashDID(holderDID),
		Decision:  audit.DecisionGranted,
	})
	return summary, nil
}

// actionLabel bounds metric label values to the known actions.
func actionLabel(action models.CredentialAction) models.CredentialAction {
	if _, ok := transitionAudit[action]; ok {
		return action
	}
	return "UNKNOWN"
}

func actorFor(action models.CredentialAction) string {
	if action == models.ActionRevoke {
		return "issuer"
	}
	return "wallet"
}
