package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"medssi/internal/exchange/metrics"
	"medssi/internal/exchange/models"
	"medssi/internal/exchange/service/mocks"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/audit"
	"medssi/pkg/platform/tracer"
	"medssi/pkg/requestcontext"
	"medssi/pkg/testutil"
)

func (s *ServiceSuite) TestOffer() {
	s.Run("stores an OFFERED credential with default policies", func() {
		res, err := s.service.Offer(s.ctx, testutil.NewOfferBuilder().Build())
		s.Require().NoError(err)

		c := res.Credential
		s.True(strings.HasPrefix(c.CredentialID, "cred-"))
		s.NotEmpty(c.TransactionID)
		s.NotEmpty(c.Nonce)
		s.Equal(models.StatusOffered, c.Status)
		s.Equal(baseTime, c.CreatedAt)
		s.Equal(baseTime.Add(defaultMaxOfferTTL), c.ExpiresAt)
		s.Len(c.DisclosurePolicies, 3)
		s.Equal("medssi://credential?token="+c.QRToken, res.QRPayload)

		stored, err := s.service.GetCredential(s.ctx, c.CredentialID)
		s.Require().NoError(err)
		s.Equal(c.TransactionID, stored.TransactionID)
	})

	s.Run("records span and audit event", func() {
		s.Contains(s.auditActions(), string(audit.ActionCredentialOffered))
		spans := s.tracer.Named(tracer.SpanOffer)
		s.Require().NotEmpty(spans)
		s.NoError(spans[0].Err)
		s.NotEmpty(spans[0].Attributes[tracer.AttrCredentialID])
	})

	s.Run("empty policy field list is rejected", func() {
		_, err := s.service.Offer(s.ctx, testutil.NewOfferBuilder().
			WithPolicies(models.DisclosurePolicy{Scope: models.ScopeMedicalRecord, Fields: []string{}}).
			Build())
		s.True(errors.Is(err, models.ErrPolicy))
	})

	s.Run("primary scope must have a policy", func() {
		_, err := s.service.Offer(s.ctx, testutil.NewOfferBuilder().
			WithScope(models.ScopeMedicationPickup).
			WithPolicies(models.DisclosurePolicy{Scope: models.ScopeMedicalRecord, Fields: []string{"condition.id"}}).
			Build())
		s.True(dErrors.HasCode(err, dErrors.CodePolicyInvalid))
	})

	s.Run("validity beyond the maximum is rejected", func() {
		_, err := s.service.Offer(s.ctx, testutil.NewOfferBuilder().ValidFor(time.Hour).Build())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("WITH_DATA without payload is rejected", func() {
		req := testutil.NewOfferBuilder().Build()
		req.Payload = nil
		_, err := s.service.Offer(s.ctx, req)
		s.True(errors.Is(err, models.ErrMissingPayload))
	})
}

func (s *ServiceSuite) TestAccept() {
	s.Run("binds holder and starts retention", func() {
		offer := s.offer(testutil.NewOfferBuilder())
		s.advance(time.Minute)

		res, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
			Action:      "accept",
			HolderDID:   testutil.TestIDs.HolderDID1,
			Disclosures: map[string]string{"condition.code.coding[0].code": "K29.7"},
		})
		s.Require().NoError(err)

		c := res.Credential
		s.Equal(models.StatusIssued, c.Status)
		s.Equal(testutil.TestIDs.HolderDID1, c.HolderDID)
		s.Require().NotNil(c.IssuedAt)
		s.Equal(s.now, *c.IssuedAt)
		s.Require().NotNil(c.RetentionExpiresAt)
		s.Equal(s.now.Add(30*24*time.Hour), *c.RetentionExpiresAt)
		s.Empty(res.Token)
		s.Contains(s.auditActions(), string(audit.ActionCredentialIssued))
	})

	s.Run("WITHOUT_DATA accept without payload leaves the offer untouched", func() {
		offer := s.offer(testutil.NewOfferBuilder().WithoutData())

		_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID1,
		})
		s.True(errors.Is(err, models.ErrMissingPayload))

		stored, err := s.service.GetCredential(s.ctx, offer.CredentialID)
		s.Require().NoError(err)
		s.Equal(models.StatusOffered, stored.Status)
		s.Empty(stored.HolderDID)
	})

	s.Run("WITHOUT_DATA accept with payload issues", func() {
		offer := s.offer(testutil.NewOfferBuilder().WithoutData())
		res, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID1,
			Payload:   testutil.SamplePayload(),
		})
		s.Require().NoError(err)
		s.Equal(models.StatusIssued, res.Credential.Status)
		s.NotNil(res.Credential.Payload)
	})

	s.Run("disclosure outside every policy is rejected", func() {
		offer := s.offer(testutil.NewOfferBuilder())
		_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
			Action:      models.ActionAccept,
			HolderDID:   testutil.TestIDs.HolderDID1,
			Disclosures: map[string]string{"x": "1"},
		})
		s.True(errors.Is(err, models.ErrDisclosureInvalid))

		stored, err := s.service.GetCredential(s.ctx, offer.CredentialID)
		s.Require().NoError(err)
		s.Equal(models.StatusOffered, stored.Status)
	})

	s.Run("pre-bound holder must match", func() {
		offer := s.offer(testutil.NewOfferBuilder().WithHolder(testutil.TestIDs.HolderDID1))
		_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID2,
		})
		s.True(errors.Is(err, models.ErrHolderMismatch))
	})

	s.Run("holder is required", func() {
		offer := s.offer(testutil.NewOfferBuilder())
		_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{Action: models.ActionAccept})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown credential", func() {
		_, err := s.service.Transition(s.ctx, "cred-missing", models.ActionRequest{Action: models.ActionAccept})
		s.True(errors.Is(err, models.ErrCredentialNotFound))
	})
}

func (s *ServiceSuite) TestAcceptExpiredOffer() {
	s.Run("sweep on access removes the offer first", func() {
		offer := s.offer(testutil.NewOfferBuilder().ValidFor(time.Minute))
		s.advance(2 * time.Minute)

		_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID1,
		})
		s.True(errors.Is(err, models.ErrCredentialNotFound))
		s.Contains(s.auditActions(), string(audit.ActionRetentionSwept))
	})

	s.Run("without sweep on access the state machine refuses", func() {
		svc := s.newService(WithSweepOnAccess(false))
		res, err := svc.Offer(s.ctx, testutil.NewOfferBuilder().ValidFor(time.Minute).Build())
		s.Require().NoError(err)
		s.advance(2 * time.Minute)

		_, err = svc.Transition(s.ctx, res.Credential.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID1,
		})
		s.True(errors.Is(err, models.ErrUnsupportedAction))
	})
}

func (s *ServiceSuite) TestTerminalStates() {
	s.Run("declined credentials reject every action", func() {
		offer := s.offer(testutil.NewOfferBuilder())
		res, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{Action: models.ActionDecline})
		s.Require().NoError(err)
		s.Equal(models.StatusDeclined, res.Credential.Status)

		for _, action := range []models.CredentialAction{models.ActionAccept, models.ActionUpdate, models.ActionDecline, models.ActionRevoke} {
			_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
				Action:    action,
				HolderDID: testutil.TestIDs.HolderDID1,
				Payload:   testutil.SamplePayload(),
			})
			s.True(errors.Is(err, models.ErrUnsupportedAction), "action %s", action)
		}
	})

	s.Run("revoke ends retention immediately", func() {
		issued := s.issue(testutil.NewOfferBuilder(), nil)
		revoked, err := s.service.RevokeCredential(s.ctx, issued.CredentialID)
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, revoked.Status)
		s.Require().NotNil(revoked.RetentionExpiresAt)
		s.Equal(s.now, *revoked.RetentionExpiresAt)

		events, err := s.auditStore.ListAll(s.ctx)
		s.Require().NoError(err)
		last := events[len(events)-1]
		s.Equal(string(audit.ActionCredentialRevoked), last.Action)
		s.Equal("issuer", last.Actor)
	})

	s.Run("unknown action", func() {
		offer := s.offer(testutil.NewOfferBuilder())
		_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{Action: "SUSPEND"})
		s.True(errors.Is(err, models.ErrUnsupportedAction))
	})
}

func (s *ServiceSuite) TestUpdate() {
	issued := s.issue(testutil.NewOfferBuilder(), nil)

	s.Run("requires content", func() {
		_, err := s.service.Transition(s.ctx, issued.CredentialID, models.ActionRequest{Action: models.ActionUpdate})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects another holder", func() {
		_, err := s.service.Transition(s.ctx, issued.CredentialID, models.ActionRequest{
			Action:      models.ActionUpdate,
			HolderDID:   testutil.TestIDs.HolderDID2,
			Disclosures: map[string]string{"cond_code": "K29.7"},
		})
		s.True(errors.Is(err, models.ErrHolderMismatch))
	})

	s.Run("replaces disclosures and external fields", func() {
		s.advance(time.Hour)
		res, err := s.service.Transition(s.ctx, issued.CredentialID, models.ActionRequest{
			Action:         models.ActionUpdate,
			HolderDID:      testutil.TestIDs.HolderDID1,
			Disclosures:    map[string]string{"cond_code": "K29.7"},
			ExternalFields: map[string]string{"cond_code": "K29.7"},
		})
		s.Require().NoError(err)
		s.Equal(map[string]string{"condition.code.coding[0].code": "K29.7"}, res.Credential.SelectedDisclosures)
		s.Equal(map[string]string{"cond_code": "K29.7"}, res.Credential.ExternalFields)
		s.Equal(s.now, res.Credential.LastActionAt)
		s.Equal(*issued.IssuedAt, *res.Credential.IssuedAt)
	})
}

func (s *ServiceSuite) TestConcurrentAccept() {
	offer := s.offer(testutil.NewOfferBuilder())

	result := testutil.RunConcurrent(16, func(int) error {
		_, err := s.service.Transition(s.ctx, offer.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID1,
		})
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(15), result.ByCode[dErrors.CodeUnsupportedAction])
	s.Equal(int32(16), result.Total())
}

func (s *ServiceSuite) TestSigning() {
	s.Run("accept returns the packaged token", func() {
		signer := mocks.NewMockSigner(s.ctrl)
		svc := s.newService(WithSigner(signer))
		offerRes, err := svc.Offer(s.ctx, testutil.NewOfferBuilder().Build())
		s.Require().NoError(err)

		signer.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, c models.CredentialOffer) (string, error) {
				s.Equal(models.StatusIssued, c.Status)
				s.Equal(testutil.TestIDs.HolderDID1, c.HolderDID)
				return "header.claims.sig", nil
			})

		res, err := svc.Transition(s.ctx, offerRes.Credential.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID1,
		})
		s.Require().NoError(err)
		s.Equal("header.claims.sig", res.Token)
	})

	s.Run("signing failure keeps the committed transition", func() {
		signer := mocks.NewMockSigner(s.ctrl)
		svc := s.newService(WithSigner(signer))
		offerRes, err := svc.Offer(s.ctx, testutil.NewOfferBuilder().Build())
		s.Require().NoError(err)

		signer.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("", errors.New("key unavailable"))

		res, err := svc.Transition(s.ctx, offerRes.Credential.CredentialID, models.ActionRequest{
			Action:    models.ActionAccept,
			HolderDID: testutil.TestIDs.HolderDID1,
		})
		s.Require().NoError(err)
		s.Empty(res.Token)
		s.Equal(models.StatusIssued, res.Credential.Status)
	})

	s.Run("decline is never signed", func() {
		signer := mocks.NewMockSigner(s.ctrl)
		svc := s.newService(WithSigner(signer))
		offerRes, err := svc.Offer(s.ctx, testutil.NewOfferBuilder().Build())
		s.Require().NoError(err)

		signer.EXPECT().Sign(gomock.Any(), gomock.Any()).Times(0)

		_, err = svc.Transition(s.ctx, offerRes.Credential.CredentialID, models.ActionRequest{Action: models.ActionDecline})
		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestWalletLookups() {
	offer := s.offer(testutil.NewOfferBuilder().WithoutData())

	s.Run("by transaction id", func() {
		view, err := s.service.CredentialByTransaction(s.ctx, " "+offer.TransactionID+" ")
		s.Require().NoError(err)
		s.Equal(offer.CredentialID, view.CredentialID)
		s.False(view.PayloadAvailable)
		s.Equal(models.AssuranceNHICardPIN.Description(), view.AssuranceDesc)
	})

	s.Run("by nonce", func() {
		view, err := s.service.CredentialByNonce(s.ctx, offer.Nonce)
		s.Require().NoError(err)
		s.Equal(offer.TransactionID, view.TransactionID)
	})

	s.Run("blank inputs", func() {
		_, err := s.service.CredentialByTransaction(s.ctx, " ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.CredentialByNonce(s.ctx, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown nonce", func() {
		_, err := s.service.CredentialByNonce(s.ctx, "nonce-missing")
		s.True(errors.Is(err, models.ErrCredentialNotFound))
	})
}

func (s *ServiceSuite) TestDeleteCredential() {
	issued := s.issue(testutil.NewOfferBuilder(), nil)

	s.Require().NoError(s.service.DeleteCredential(s.ctx, issued.CredentialID))

	_, err := s.service.GetCredential(s.ctx, issued.CredentialID)
	s.True(errors.Is(err, models.ErrCredentialNotFound))

	err = s.service.DeleteCredential(s.ctx, issued.CredentialID)
	s.True(errors.Is(err, models.ErrCredentialNotFound))
	s.Contains(s.auditActions(), string(audit.ActionCredentialDeleted))
}

func (s *ServiceSuite) TestForgetHolder() {
	first := s.issue(testutil.NewOfferBuilder(), nil)
	s.issue(testutil.NewOfferBuilder().WithScope(models.ScopeMedicationPickup), nil)
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceMyDataLight, "cond_code"))
	_, err := s.present(session, first, map[string]string{"cond_code": "K29.7"})
	s.Require().NoError(err)

	summary, err := s.service.ForgetHolder(s.ctx, " "+testutil.TestIDs.HolderDID1+" ")
	s.Require().NoError(err)
	s.Equal(2, summary.CredentialsRemoved)
	s.Equal(1, summary.PresentationsRemoved)
	s.Equal(1, summary.VerificationResultsRemoved)

	creds, err := s.service.ListHolderCredentials(s.ctx, testutil.TestIDs.HolderDID1)
	s.Require().NoError(err)
	s.Empty(creds)

	events, err := s.auditStore.ListBySubject(s.ctx, tracer.HashDID(testutil.TestIDs.HolderDID1))
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(string(audit.ActionHolderForgotten), events[len(events)-1].Action)

	_, err = s.service.ForgetHolder(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestAuditFailureNeverFailsOperation() {
	auditor := mocks.NewMockAuditPublisher(s.ctrl)
	m := metrics.New(prometheus.NewRegistry())
	svc := s.newService(WithAuditor(auditor), WithMetrics(m))

	ctx := requestcontext.WithRequestID(s.ctx, "req-42")
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			s.Equal("req-42", e.RequestID)
			s.Equal(string(audit.ActionCredentialOffered), e.Action)
			return errors.New("sink unavailable")
		})

	_, err := svc.Offer(ctx, testutil.NewOfferBuilder().Build())
	s.Require().NoError(err)
	s.Equal(float64(1), promtestutil.ToFloat64(m.AuditEmitFailures))
	s.Equal(float64(1), promtestutil.ToFloat64(m.OffersCreated.WithLabelValues("MEDICAL_RECORD", "WITH_DATA")))
}

func (s *ServiceSuite) TestTransitionMetrics() {
	m := metrics.New(prometheus.NewRegistry())
	svc := s.newService(WithMetrics(m))
	res, err := svc.Offer(s.ctx, testutil.NewOfferBuilder().Build())
	s.Require().NoError(err)
	id := res.Credential.CredentialID

	_, err = svc.Transition(s.ctx, id, models.ActionRequest{Action: "bogus"})
	s.Require().Error(err)
	_, err = svc.Transition(s.ctx, id, models.ActionRequest{Action: models.ActionDecline})
	s.Require().NoError(err)

	s.Equal(float64(1), promtestutil.ToFloat64(m.Transitions.WithLabelValues("UNKNOWN", "unsupported_action")))
	s.Equal(float64(1), promtestutil.ToFloat64(m.Transitions.WithLabelValues("DECLINE", "ok")))

	spans := s.tracer.Named(tracer.SpanTransition)
	s.Require().Len(spans, 2)
	s.Error(spans[0].Err)
	s.Equal("unsupported_action", spans[0].Attributes[tracer.AttrErrorCode])
	s.Equal("DECLINED", spans[1].Attributes[tracer.AttrStatus])
}
