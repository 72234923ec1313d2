package service

import (
	"context"
	"time"

	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/audit"
	"medssi/pkg/platform/tracer"
)

// Sweep reconciles every credential and session with the current time:
// expired offers are deleted, credentials past retention are sealed (or
// deleted for medication pickup) and expired sessions are purged.
func (s *Service) Sweep(ctx context.Context) (res models.SweepResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanSweep)
	defer func() {
		span.End(err)
		s.observeLatency("sweep", start)
	}()

	now := s.now(ctx)
	res, err = s.store.Sweep(ctx, now)
	if err != nil {
		return models.SweepResult{}, translate(err, dErrors.CodeInternal, "store")
	}
	s.afterSweep(ctx, span, res, now)
	return res, nil
}

// sweepOnEntry runs the retention sweep at the start of an entry point when
// enabled, so lookups never observe data past its retention window.
func (s *Service) sweepOnEntry(ctx context.Context, span tracer.Span, now time.Time) error {
	if !s.sweepOnAccess {
		return nil
	}
	res, err := s.store.Sweep(ctx, now)
	if err != nil {
		return translate(err, dErrors.CodeInternal, "store")
	}
	s.afterSweep(ctx, span, res, now)
	return nil
}

// Reset clears every table. Sandbox demos only.
func (s *Service) Reset(ctx context.Context) (time.Time, error) {
	now := s.now(ctx)
	if err := s.store.Reset(ctx); err != nil {
		return time.Time{}, translate(err, dErrors.CodeInternal, "store")
	}
	s.logger.WarnContext(ctx, "sandbox reset")
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    string(audit.ActionSandboxReset),
		Actor:     "issuer",
	})
	return now, nil
}
