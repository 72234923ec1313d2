package service

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/mock/gomock"

	"medssi/internal/exchange/models"
	"medssi/internal/exchange/service/mocks"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/audit"
	"medssi/pkg/platform/tracer"
	"medssi/pkg/testutil"
)

func (s *ServiceSuite) TestOpenSession() {
	s.Run("dedupes fields and builds the QR payload", func() {
		res, err := s.service.OpenSession(s.ctx, testutil.NewSessionRequest(models.AssuranceNHICardPIN, " cond_code", "cond_code", "org_id"))
		s.Require().NoError(err)
		s.True(strings.HasPrefix(res.Session.SessionID, "sess-"))
		s.Equal([]string{"cond_code", "org_id"}, res.Session.AllowedFields)
		s.Equal(baseTime.Add(defaultSessionTTL), res.Session.ExpiresAt)
		s.Equal("medssi://verification?token="+res.Session.QRToken, res.QRPayload)
		s.Contains(s.auditActions(), string(audit.ActionSessionOpened))
	})

	s.Run("requires fields", func() {
		_, err := s.service.OpenSession(s.ctx, testutil.NewSessionRequest(models.AssuranceNHICardPIN))
		s.True(errors.Is(err, models.ErrFieldsRequired))
	})

	s.Run("request ttl overrides the default", func() {
		req := testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code")
		req.TTL = time.Minute
		session := s.openSession(req)
		s.Equal(s.now.Add(time.Minute), session.ExpiresAt)
	})
}

func (s *ServiceSuite) TestSubmitPresentationAliasMatch() {
	cred := s.issue(testutil.NewOfferBuilder().WithExternalFields(map[string]string{"cond_code": "K297"}), nil)
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))

	outcome, err := s.present(session, cred, map[string]string{"cond_code": "K297"})
	s.Require().NoError(err)

	p := outcome.Result.Presentation
	s.True(outcome.Result.Verified)
	s.Equal(map[string]string{"cond_code": "K297"}, p.DisclosedFields)
	s.Equal(cred.CredentialID, p.CredentialID)
	s.Equal(cred.Nonce, p.Nonce)
	s.Equal(testutil.TestIDs.VerifierID, p.VerifierID)
	s.Equal(models.ScopeMedicalRecord, p.Scope)
	s.True(strings.HasPrefix(p.PresentationID, "pres-"))
	s.Nil(outcome.Insight)
	s.Contains(s.auditActions(), string(audit.ActionPresentationVerified))
}

func (s *ServiceSuite) TestSubmitPresentationValueMismatch() {
	cred := s.issue(testutil.NewOfferBuilder().WithExternalFields(map[string]string{"cond_code": "K298"}), nil)
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))

	_, err := s.present(session, cred, map[string]string{"cond_code": "K297"})
	s.True(errors.Is(err, models.ErrValueMismatch))

	presentations, err := s.store.ListPresentations(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Empty(presentations)

	status, err := s.service.PollSession(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Nil(status.LatestResult)

	events, err := s.auditStore.ListAll(s.ctx)
	s.Require().NoError(err)
	var rejected *audit.Event
	for i := range events {
		if events[i].Action == string(audit.ActionPresentationRejected) {
			rejected = &events[i]
		}
	}
	s.Require().NotNil(rejected)
	s.Equal(audit.DecisionDenied, rejected.Decision)
	s.Equal(string(dErrors.CodeValueMismatch), rejected.Reason)
	s.Equal(string(models.ScopeMedicalRecord), rejected.Scope)
}

func (s *ServiceSuite) TestSubmitPresentationRejections() {
	cred := s.issue(testutil.NewOfferBuilder(), map[string]string{"cond_code": "K29.7"})
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code", "org_id"))

	s.Run("payload is the ground truth without external fields", func() {
		outcome, err := s.present(session, cred, map[string]string{"condition.code.coding[0].code": "K29.7"})
		s.Require().NoError(err)
		s.Equal(map[string]string{"cond_code": "K29.7"}, outcome.Result.Presentation.DisclosedFields)
	})

	s.Run("unknown session", func() {
		_, err := s.service.SubmitPresentation(s.ctx, models.PresentationRequest{
			SessionID:       "sess-missing",
			CredentialID:    cred.CredentialID,
			HolderDID:       testutil.TestIDs.HolderDID1,
			DisclosedFields: map[string]string{"cond_code": "K29.7"},
		})
		s.True(errors.Is(err, models.ErrSessionExpired))
	})

	s.Run("unknown credential", func() {
		_, err := s.service.SubmitPresentation(s.ctx, models.PresentationRequest{
			SessionID:       session.SessionID,
			CredentialID:    "cred-missing",
			HolderDID:       testutil.TestIDs.HolderDID1,
			DisclosedFields: map[string]string{"cond_code": "K29.7"},
		})
		s.True(errors.Is(err, models.ErrCredentialNotFound))
	})

	s.Run("holder mismatch", func() {
		_, err := s.service.SubmitPresentation(s.ctx, models.PresentationRequest{
			SessionID:       session.SessionID,
			CredentialID:    cred.CredentialID,
			HolderDID:       testutil.TestIDs.HolderDID2,
			DisclosedFields: map[string]string{"cond_code": "K29.7"},
		})
		s.True(errors.Is(err, models.ErrHolderMismatch))
	})

	s.Run("field outside the session", func() {
		_, err := s.present(session, cred, map[string]string{"med_code": "A02BC05"})
		s.True(errors.Is(err, models.ErrFieldsNotAuthorized))
	})

	s.Run("field the holder did not select", func() {
		_, err := s.present(session, cred, map[string]string{"org_id": "org:tw-nhi-001"})
		s.True(errors.Is(err, models.ErrFieldsNotConsented))
	})

	s.Run("assurance below the session requirement", func() {
		strict := s.openSession(testutil.NewSessionRequest(models.AssuranceMOICACert, "cond_code"))
		_, err := s.present(strict, cred, map[string]string{"cond_code": "K29.7"})
		s.True(errors.Is(err, models.ErrAssuranceInsufficient))
	})

	s.Run("offered credential is not presentable", func() {
		offer := s.offer(testutil.NewOfferBuilder().WithHolder(testutil.TestIDs.HolderDID1))
		_, err := s.present(session, offer, map[string]string{"cond_code": "K29.7"})
		s.True(errors.Is(err, models.ErrCredentialNotIssued))
	})

	s.Run("failures are traced with their code", func() {
		spans := s.tracer.Named(tracer.SpanPresentation)
		s.Require().NotEmpty(spans)
		last := spans[len(spans)-1]
		s.Error(last.Err)
		s.Equal(string(dErrors.CodeCredentialNotIssued), last.Attributes[tracer.AttrErrorCode])
	})
}

func (s *ServiceSuite) TestSubmitPresentationExpiredSession() {
	cred := s.issue(testutil.NewOfferBuilder(), nil)
	svc := s.newService(WithSweepOnAccess(false))
	res, err := svc.OpenSession(s.ctx, testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))
	s.Require().NoError(err)
	s.advance(defaultSessionTTL + time.Second)

	_, err = svc.SubmitPresentation(s.ctx, models.PresentationRequest{
		SessionID:       res.Session.SessionID,
		CredentialID:    cred.CredentialID,
		HolderDID:       testutil.TestIDs.HolderDID1,
		DisclosedFields: map[string]string{"cond_code": "K29.7"},
	})
	s.True(errors.Is(err, models.ErrSessionExpired))

	_, err = svc.PollSession(s.ctx, res.Session.SessionID)
	s.True(errors.Is(err, models.ErrSessionExpired))

	_, err = s.service.PollSession(s.ctx, res.Session.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "sweep on access purges the session")
}

func (s *ServiceSuite) TestRepeatSubmissionAndPoll() {
	cred := s.issue(testutil.NewOfferBuilder(), nil)
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))

	first, err := s.present(session, cred, map[string]string{"cond_code": "K29.7"})
	s.Require().NoError(err)
	second, err := s.present(session, cred, map[string]string{"cond_code": "K29.7"})
	s.Require().NoError(err)
	s.NotEqual(first.Result.Presentation.PresentationID, second.Result.Presentation.PresentationID)

	s.advance(time.Minute)
	status, err := s.service.PollSession(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(s.now, status.Session.LastPolledAt)
	s.Require().NotNil(status.LatestResult)
	s.Equal(second.Result.Presentation.PresentationID, status.LatestResult.Presentation.PresentationID)

	got, err := s.service.GetResult(s.ctx, session.SessionID, first.Result.Presentation.PresentationID)
	s.Require().NoError(err)
	s.Equal(first.Result.Presentation.DisclosedFields, got.Presentation.DisclosedFields)

	_, err = s.service.GetResult(s.ctx, session.SessionID, "pres-missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAnalyticsInsight() {
	analytics := mocks.NewMockAnalytics(s.ctrl)
	svc := s.newService(WithAnalytics(analytics))
	cred := s.issue(testutil.NewOfferBuilder(), nil)
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))

	insight := &models.RiskInsight{Scope: models.ScopeMedicalRecord, RiskScore: 0.65, TrendWindowDays: 7}
	analytics.EXPECT().
		Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(p models.Presentation, _ time.Time) *models.RiskInsight {
			s.Equal(map[string]string{"cond_code": "K29.7"}, p.DisclosedFields)
			return insight
		})

	outcome, err := svc.SubmitPresentation(s.ctx, models.PresentationRequest{
		SessionID:       session.SessionID,
		CredentialID:    cred.CredentialID,
		HolderDID:       testutil.TestIDs.HolderDID1,
		DisclosedFields: map[string]string{"cond_code": "K29.7"},
	})
	s.Require().NoError(err)
	s.Equal(insight, outcome.Insight)
}

func (s *ServiceSuite) TestPurgeSession() {
	cred := s.issue(testutil.NewOfferBuilder(), nil)
	session := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))
	_, err := s.present(session, cred, map[string]string{"cond_code": "K29.7"})
	s.Require().NoError(err)

	res, err := s.service.PurgeSession(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(1, res.SessionsPurged)
	s.Equal(1, res.PresentationsPurged)

	_, err = s.service.PollSession(s.ctx, session.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.PurgeSession(s.ctx, session.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	stored, err := s.service.GetCredential(s.ctx, cred.CredentialID)
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, stored.Status)
	s.Contains(s.auditActions(), string(audit.ActionSessionPurged))
}

func (s *ServiceSuite) TestListActiveSessions() {
	first := s.openSession(testutil.NewSessionRequest(models.AssuranceNHICardPIN, "cond_code"))
	other := testutil.NewSessionRequest(models.AssuranceNHICardPIN, "org_id")
	other.VerifierID = "clinic-khh-007"
	s.advance(time.Second)
	second := s.openSession(other)

	mine, err := s.service.ListActiveSessions(s.ctx, testutil.TestIDs.VerifierID)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(first.SessionID, mine[0].SessionID)

	all, err := s.service.ListActiveSessions(s.ctx, "")
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second.SessionID, all[1].SessionID)
}
