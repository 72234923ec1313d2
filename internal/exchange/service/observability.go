package service

import (
	"context"
	"fmt"
	"time"

	"medssi/internal/exchange/models"
	"medssi/pkg/platform/audit"
	"medssi/pkg/platform/tracer"
	"medssi/pkg/requestcontext"
)

// emit publishes an audit event. Failures are logged and counted only.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"action", event.Action,
		)
		if s.metrics != nil {
			s.metrics.IncrementAuditEmitFailures()
		}
	}
}

func (s *Service) observeLatency(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveLatency(operation, time.Since(start))
	}
}

// afterSweep reports a sweep that changed something.
func (s *Service) afterSweep(ctx context.Context, span tracer.Span, res models.SweepResult, now time.Time) {
	if !res.Changed() {
		return
	}
	if span != nil {
		span.AddEvent(tracer.EventSwept,
			tracer.Int("offers_expired", res.OffersExpired),
			tracer.Int("credentials_deleted", res.CredentialsDeleted),
			tracer.Int("credentials_sealed", res.CredentialsSealed),
			tracer.Int("sessions_purged", res.SessionsPurged),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveSweep(res)
	}
	s.logger.InfoContext(ctx, "retention sweep applied",
		"offers_expired", res.OffersExpired,
		"credentials_deleted", res.CredentialsDeleted,
		"credentials_sealed", res.CredentialsSealed,
		"sessions_purged", res.SessionsPurged,
		"presentations_purged", res.PresentationsPurged,
		"results_purged", res.ResultsPurged,
	)
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    string(audit.ActionRetentionSwept),
		Actor:     "system",
		Reason: fmt.Sprintf("expired=%d deleted=%d sealed=%d sessions=%d",
			res.OffersExpired, res.CredentialsDeleted, res.CredentialsSealed, res.SessionsPurged),
	})
}

// credentialEvent builds the audit event for a credential lifecycle step.
func credentialEvent(action audit.Action, c *models.CredentialOffer, actor string, now time.Time) audit.Event {
	return audit.Event{
		Timestamp:    now,
		Action:       string(action),
		Actor:        actor,
		Subject:      tracer.HashDID(c.HolderDID),
		CredentialID: c.CredentialID,
		Scope:        string(c.PrimaryScope),
		Decision:     audit.DecisionGranted,
	}
}

var transitionAudit = map[models.CredentialAction]audit.Action{
	models.ActionAccept:  audit.ActionCredentialIssued,
	models.ActionUpdate:  audit.ActionCredentialUpdated,
	models.ActionDecline: audit.ActionCredentialDeclined,
	models.ActionRevoke:  audit.ActionCredentialRevoked,
}
