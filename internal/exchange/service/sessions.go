package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"medssi/internal/exchange/domain/verification"
	"medssi/internal/exchange/models"
	"medssi/internal/exchange/store"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/audit"
	"medssi/pkg/platform/sentinel"
	"medssi/pkg/platform/tracer"
)

// OpenSession creates a verification session and its QR payload.
func (s *Service) OpenSession(ctx context.Context, req models.SessionRequest) (res *models.SessionResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanOpenSession,
		tracer.String(tracer.AttrScope, string(req.Scope)),
	)
	defer func() {
		span.End(err)
		s.observeLatency("open_session", start)
	}()

	now := s.now(ctx)
	if err := s.sweepOnEntry(ctx, span, now); err != nil {
		return nil, err
	}

	session, err := verification.NewSession(newSessionIdentity(), req, now, s.sessionTTL)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, translate(err, dErrors.CodeInternal, "verification session")
	}
	span.SetAttributes(
		tracer.String(tracer.AttrSessionID, session.SessionID),
		tracer.Int(tracer.AttrFieldCount, len(session.AllowedFields)),
	)

	if s.metrics != nil {
		s.metrics.IncrementSessionsOpened(session.Scope)
	}
	s.logger.InfoContext(ctx, "verification session opened",
		"session_id", session.SessionID,
		"verifier_id", session.VerifierID,
		"scope", session.Scope,
		"fields", len(session.AllowedFields),
	)
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    string(audit.ActionSessionOpened),
		Actor:     session.VerifierID,
		SessionID: session.SessionID,
		Scope:     string(session.Scope),
	})

	return &models.SessionResult{
		Session:   session,
		QRPayload: verificationQR(session.QRToken),
	}, nil
}

// SubmitPresentation checks a holder presentation against its session and
// credential. On success the presentation and its result are stored together
// and returned with the advisory insight; on failure nothing is stored.
func (s *Service) SubmitPresentation(ctx context.Context, req models.PresentationRequest) (res *models.VerificationOutcome, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanPresentation,
		tracer.String(tracer.AttrSessionID, req.SessionID),
		tracer.String(tracer.AttrCredentialID, req.CredentialID),
		tracer.Int(tracer.AttrFieldCount, len(req.DisclosedFields)),
	)
	defer func() {
		if err != nil {
			span.SetAttributes(tracer.String(tracer.AttrErrorCode, outcome(err)))
		}
		span.End(err)
		s.observeLatency("submit_presentation", start)
		if s.metrics != nil {
			s.metrics.IncrementVerification(outcome(err))
		}
	}()

	now := s.now(ctx)
	if err := s.sweepOnEntry(ctx, span, now); err != nil {
		return nil, err
	}

	var result *models.VerificationResult
	var scope models.Scope
	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		session, err := tx.FindSession(ctx, strings.TrimSpace(req.SessionID))
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return translate(err, dErrors.CodeSessionExpired, "verification session")
		}
		cred, err := tx.FindCredential(ctx, strings.TrimSpace(req.CredentialID))
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return translate(err, dErrors.CodeCredentialNotFound, "credential")
		}
		if session != nil {
			scope = session.Scope
		}

		accepted, err := verification.Match(session, cred, req.HolderDID, req.DisclosedFields, now)
		if err != nil {
			return err
		}
		r := verification.NewResult(verification.NewPresentation(newPresentationID(), session, cred, accepted, now))
		if err := tx.SaveVerification(ctx, r); err != nil {
			return translate(err, dErrors.CodeSessionExpired, "verification session")
		}
		result = r
		return nil
	})
	if err != nil {
		s.logger.InfoContext(ctx, "presentation rejected",
			"session_id", req.SessionID,
			"credential_id", req.CredentialID,
			"reason", outcome(err),
		)
		s.emit(ctx, audit.Event{
			Timestamp:    now,
			Action:       string(audit.ActionPresentationRejected),
			Actor:        "wallet",
			Subject:      tracer.HashDID(req.HolderDID),
			CredentialID: req.CredentialID,
			SessionID:    req.SessionID,
			Scope:        string(scope),
			Decision:     audit.DecisionDenied,
			Reason:       outcome(err),
		})
		return nil, err
	}

	res = &models.VerificationOutcome{Result: result}
	if s.analytics != nil {
		res.Insight = s.analytics.Evaluate(result.Presentation, now)
	}
	if s.metrics != nil {
		s.metrics.ObservePresentationFields(len(result.Presentation.DisclosedFields))
	}
	s.logger.InfoContext(ctx, "presentation verified",
		"session_id", result.SessionID,
		"presentation_id", result.Presentation.PresentationID,
		"fields", len(result.Presentation.DisclosedFields),
	)
	s.emit(ctx, audit.Event{
		Timestamp:    now,
		Action:       string(audit.ActionPresentationVerified),
		Actor:        "wallet",
		Subject:      tracer.HashDID(result.Presentation.HolderDID),
		CredentialID: result.Presentation.CredentialID,
		SessionID:    result.SessionID,
		Scope:        string(result.Presentation.Scope),
		Decision:     audit.DecisionGranted,
	})
	return res, nil
}

// PollSession stamps the session as polled and returns it with its latest
// result, if any.
func (s *Service) PollSession(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	now := s.now(ctx)
	if err := s.sweepOnEntry(ctx, nil, now); err != nil {
		return nil, err
	}

	var status models.SessionStatus
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		session, err := tx.FindSession(ctx, sessionID)
		if err != nil {
			return translate(err, dErrors.CodeNotFound, "verification session")
		}
		if !session.IsActive(now) {
			return dErrors.New(dErrors.CodeSessionExpired, "verification session expired")
		}
		session, err = tx.TouchSession(ctx, sessionID, now)
		if err != nil {
			return translate(err, dErrors.CodeNotFound, "verification session")
		}
		latest, err := tx.LatestResult(ctx, sessionID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return translate(err, dErrors.CodeNotFound, "verification result")
		}
		status = models.SessionStatus{Session: session, LatestResult: latest}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// PurgeSession deletes a session with its presentations and results.
func (s *Service) PurgeSession(ctx context.Context, sessionID string) (models.SweepResult, error) {
	now := s.now(ctx)
	res, err := s.store.PurgeSession(ctx, sessionID)
	if err != nil {
		return models.SweepResult{}, translate(err, dErrors.CodeNotFound, "verification session")
	}
	s.logger.InfoContext(ctx, "verification session purged",
		"session_id", sessionID,
		"presentations_purged", res.PresentationsPurged,
	)
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    string(audit.ActionSessionPurged),
		Actor:     "verifier",
		SessionID: sessionID,
	})
	return res, nil
}

// GetResult returns one recorded verification result.
func (s *Service) GetResult(ctx context.Context, sessionID, presentationID string) (*models.VerificationResult, error) {
	if err := s.sweepOnEntry(ctx, nil, s.now(ctx)); err != nil {
		return nil, err
	}
	r, err := s.store.FindResult(ctx, sessionID, presentationID)
	if err != nil {
		return nil, translate(err, dErrors.CodeNotFound, "verification result")
	}
	return r, nil
}

// ListActiveSessions returns the verifier's unexpired sessions. An empty
// verifierID lists every verifier's sessions.
func (s *Service) ListActiveSessions(ctx context.Context, verifierID string) ([]*models.VerificationSession, error) {
	now := s.now(ctx)
	if err := s.sweepOnEntry(ctx, nil, now); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListActiveSessions(ctx, strings.TrimSpace(verifierID), now)
	if err != nil {
		return nil, translate(err, dErrors.CodeNotFound, "verification session")
	}
	return sessions, nil
}
