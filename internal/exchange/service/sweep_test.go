package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"medssi/internal/exchange/metrics"
	"medssi/internal/exchange/models"
	"medssi/pkg/platform/audit"
	"medssi/pkg/platform/sentinel"
	"medssi/pkg/platform/tracer"
	"medssi/pkg/testutil"
)

func (s *ServiceSuite) TestSweepDeletesPickupCredentialPastRetention() {
	cred := s.issue(testutil.NewOfferBuilder().WithScope(models.ScopeMedicationPickup), nil)
	s.Require().NotNil(cred.RetentionExpiresAt)
	s.Equal(s.now.Add(72*time.Hour), *cred.RetentionExpiresAt)

	s.advance(72*time.Hour + time.Second)
	res, err := s.service.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.CredentialsDeleted)
	s.Zero(res.CredentialsSealed)

	_, err = s.store.FindCredential(s.ctx, cred.CredentialID)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *ServiceSuite) TestSweepSealsMedicalRecordPastRetention() {
	cred := s.issue(testutil.NewOfferBuilder(), map[string]string{"cond_code": "K29.7"})
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))
	s.advance(30*24*time.Hour + time.Second)

	res, err := s.service.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.CredentialsSealed)
	s.Equal(1, res.SessionsPurged)

	sealed, err := s.service.GetCredential(s.ctx, cred.CredentialID)
	s.Require().NoError(err)
	s.True(sealed.IsSealed())
	s.Nil(sealed.Payload)
	s.Empty(sealed.SelectedDisclosures)
	s.Equal(models.StatusIssued, sealed.Status)

	fresh := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))
	_, err = s.present(fresh, sealed, map[string]string{"cond_code": "K29.7"})
	s.True(errors.Is(err, models.ErrCredentialNotIssued))

	_, err = s.service.PollSession(s.ctx, session.SessionID)
	s.Error(err)

	again, err := s.service.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(again.CredentialsSealed, "sealing happens once")
}

func (s *ServiceSuite) TestSweepExpiresOffers() {
	offered := s.offer(testutil.NewOfferBuilder().ValidFor(time.Minute))
	declineMe := s.offer(testutil.NewOfferBuilder().ValidFor(time.Minute))
	_, err := s.service.Transition(s.ctx, declineMe.CredentialID, models.ActionRequest{Action: models.ActionDecline})
	s.Require().NoError(err)

	s.advance(2 * time.Minute)
	res, err := s.service.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, res.OffersExpired)

	for _, id := range []string{offered.CredentialID, declineMe.CredentialID} {
		_, err := s.store.FindCredential(s.ctx, id)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	}
}

func (s *ServiceSuite) TestSweepObservability() {
	m := metrics.New(prometheus.NewRegistry())
	svc := s.newService(WithMetrics(m), WithSweepOnAccess(false))
	_, err := svc.Offer(s.ctx, testutil.NewOfferBuilder().ValidFor(time.Minute).Build())
	s.Require().NoError(err)
	s.advance(2 * time.Minute)

	_, err = svc.Sweep(s.ctx)
	s.Require().NoError(err)

	spans := s.tracer.Named(tracer.SpanSweep)
	s.Require().Len(spans, 1)
	s.Equal([]string{tracer.EventSwept}, spans[0].Events)
	s.Equal(float64(1), promtestutil.ToFloat64(m.SweepChanges.WithLabelValues("offers_expired")))
	s.Contains(s.auditActions(), string(audit.ActionRetentionSwept))

	s.Run("no-op sweeps stay quiet", func() {
		before := len(s.auditActions())
		res, err := svc.Sweep(s.ctx)
		s.Require().NoError(err)
		s.False(res.Changed())
		s.Len(s.auditActions(), before)
	})
}

func (s *ServiceSuite) TestReset() {
	cred := s.issue(testutil.NewOfferBuilder(), nil)
	s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))

	at, err := s.service.Reset(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.now, at)

	_, err = s.service.GetCredential(s.ctx, cred.CredentialID)
	s.True(errors.Is(err, models.ErrCredentialNotFound))
	sessions, err := s.service.ListActiveSessions(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(sessions)
	s.Contains(s.auditActions(), string(audit.ActionSandboxReset))
}
