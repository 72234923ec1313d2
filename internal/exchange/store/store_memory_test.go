package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) credential(id string, status models.CredentialStatus) *models.CredentialOffer {
	return &models.CredentialOffer{
		CredentialID:        id,
		TransactionID:       "tx-" + id,
		Nonce:               "nonce-" + id,
		PrimaryScope:        models.ScopeMedicalRecord,
		AssuranceLevel:      models.AssuranceNHICardPIN,
		Status:              status,
		CreatedAt:           s.now,
		ExpiresAt:           s.now.Add(5 * time.Minute),
		LastActionAt:        s.now,
		HolderDID:           "did:example:holder",
		Payload:             &models.Payload{EncounterSummaryHash: "urn:sha256:abc"},
		SelectedDisclosures: map[string]string{"condition.id": "cond-1"},
		ExternalFields:      map[string]string{},
	}
}

func (s *InMemoryStoreSuite) issued(id string, scope models.Scope, retainUntil time.Time) *models.CredentialOffer {
	c := s.credential(id, models.StatusIssued)
	c.PrimaryScope = scope
	issuedAt := s.now
	c.IssuedAt = &issuedAt
	c.RetentionExpiresAt = &retainUntil
	return c
}

func (s *InMemoryStoreSuite) session(id string, expiresAt time.Time) *models.VerificationSession {
	return &models.VerificationSession{
		SessionID:     id,
		TransactionID: "tx-" + id,
		VerifierID:    "verifier-1",
		Scope:         models.ScopeMedicalRecord,
		AllowedFields: []string{"cond_code"},
		CreatedAt:     s.now,
		ExpiresAt:     expiresAt,
		LastPolledAt:  s.now,
	}
}

func (s *InMemoryStoreSuite) result(sessionID, presentationID string, at time.Time) *models.VerificationResult {
	return &models.VerificationResult{
		SessionID:  sessionID,
		VerifierID: "verifier-1",
		Verified:   true,
		Presentation: models.Presentation{
			PresentationID:  presentationID,
			SessionID:       sessionID,
			CredentialID:    "cred-1",
			HolderDID:       "did:example:holder",
			DisclosedFields: map[string]string{"cond_code": "K297"},
			IssuedAt:        at,
		},
	}
}

func (s *InMemoryStoreSuite) TestCredentialIndices() {
	c := s.credential("cred-1", models.StatusOffered)
	s.Require().NoError(s.store.SaveCredential(s.ctx, c))

	byTx, err := s.store.FindCredentialByTransaction(s.ctx, "tx-cred-1")
	s.Require().NoError(err)
	s.Equal("cred-1", byTx.CredentialID)

	byNonce, err := s.store.FindCredentialByNonce(s.ctx, "nonce-cred-1")
	s.Require().NoError(err)
	s.Equal("cred-1", byNonce.CredentialID)

	_, err = s.store.FindCredentialByNonce(s.ctx, "")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.SaveCredential(s.ctx, c), sentinel.ErrConflict)
	dup := s.credential("cred-2", models.StatusOffered)
	dup.TransactionID = "tx-cred-1"
	s.ErrorIs(s.store.SaveCredential(s.ctx, dup), sentinel.ErrConflict)

	s.Require().NoError(s.store.DeleteCredential(s.ctx, "cred-1"))
	_, err = s.store.FindCredentialByTransaction(s.ctx, "tx-cred-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindCredentialByNonce(s.ctx, "nonce-cred-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.DeleteCredential(s.ctx, "cred-1"), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestCredentialCopies() {
	c := s.credential("cred-1", models.StatusOffered)
	s.Require().NoError(s.store.SaveCredential(s.ctx, c))
	c.SelectedDisclosures["condition.id"] = "mutated after save"

	fetched, err := s.store.FindCredential(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal("cond-1", fetched.SelectedDisclosures["condition.id"])

	fetched.Status = models.StatusRevoked
	again, err := s.store.FindCredential(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(models.StatusOffered, again.Status)
}

func (s *InMemoryStoreSuite) TestUpdateCredential() {
	c := s.credential("cred-1", models.StatusOffered)
	s.Require().NoError(s.store.SaveCredential(s.ctx, c))

	c.Status = models.StatusIssued
	s.Require().NoError(s.store.UpdateCredential(s.ctx, c))
	fetched, err := s.store.FindCredential(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, fetched.Status)

	c.TransactionID = "tx-other"
	s.ErrorIs(s.store.UpdateCredential(s.ctx, c), sentinel.ErrConflict)
	s.ErrorIs(s.store.UpdateCredential(s.ctx, s.credential("missing", models.StatusOffered)), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListCredentialsForHolder() {
	first := s.credential("cred-b", models.StatusOffered)
	second := s.credential("cred-a", models.StatusOffered)
	second.CreatedAt = s.now.Add(time.Second)
	other := s.credential("cred-c", models.StatusOffered)
	other.HolderDID = "did:example:other"
	for _, c := range []*models.CredentialOffer{second, first, other} {
		s.Require().NoError(s.store.SaveCredential(s.ctx, c))
	}

	list, err := s.store.ListCredentialsForHolder(s.ctx, "did:example:holder")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("cred-b", list[0].CredentialID)
	s.Equal("cred-a", list[1].CredentialID)

	list, err = s.store.ListCredentialsForHolder(s.ctx, " ")
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *InMemoryStoreSuite) TestSessions() {
	sess := s.session("sess-1", s.now.Add(5*time.Minute))
	s.Require().NoError(s.store.SaveSession(s.ctx, sess))
	s.ErrorIs(s.store.SaveSession(s.ctx, sess), sentinel.ErrConflict)

	byTx, err := s.store.FindSessionByTransaction(s.ctx, "tx-sess-1")
	s.Require().NoError(err)
	s.Equal("sess-1", byTx.SessionID)

	polled, err := s.store.TouchSession(s.ctx, "sess-1", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(s.now.Add(time.Minute), polled.LastPolledAt)

	expired := s.session("sess-2", s.now.Add(-time.Second))
	otherVerifier := s.session("sess-3", s.now.Add(time.Minute))
	otherVerifier.VerifierID = "verifier-2"
	s.Require().NoError(s.store.SaveSession(s.ctx, expired))
	s.Require().NoError(s.store.SaveSession(s.ctx, otherVerifier))

	active, err := s.store.ListActiveSessions(s.ctx, "verifier-1", s.now)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("sess-1", active[0].SessionID)

	all, err := s.store.ListActiveSessions(s.ctx, "", s.now)
	s.Require().NoError(err)
	s.Len(all, 2)

	_, err = s.store.TouchSession(s.ctx, "missing", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestVerificationResults() {
	s.Require().NoError(s.store.SaveSession(s.ctx, s.session("sess-1", s.now.Add(5*time.Minute))))
	s.Require().NoError(s.store.SaveVerification(s.ctx, s.result("sess-1", "pres-1", s.now)))
	s.Require().NoError(s.store.SaveVerification(s.ctx, s.result("sess-1", "pres-2", s.now.Add(time.Second))))
	s.Require().NoError(s.store.SaveVerification(s.ctx, s.result("sess-1", "pres-3", s.now.Add(time.Second))))

	s.ErrorIs(s.store.SaveVerification(s.ctx, s.result("sess-1", "pres-1", s.now)), sentinel.ErrConflict)
	s.ErrorIs(s.store.SaveVerification(s.ctx, s.result("sess-missing", "pres-9", s.now)), sentinel.ErrNotFound)

	found, err := s.store.FindResult(s.ctx, "sess-1", "pres-2")
	s.Require().NoError(err)
	s.True(found.Verified)

	latest, err := s.store.LatestResult(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal("pres-3", latest.Presentation.PresentationID, "ties go to the most recently stored result")

	list, err := s.store.ListPresentations(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal("pres-1", list[0].PresentationID)
	s.Equal("pres-3", list[2].PresentationID)

	_, err = s.store.LatestResult(s.ctx, "sess-none")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestPurgeSessionCascades() {
	s.Require().NoError(s.store.SaveSession(s.ctx, s.session("sess-1", s.now.Add(5*time.Minute))))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.session("sess-2", s.now.Add(5*time.Minute))))
	s.Require().NoError(s.store.SaveVerification(s.ctx, s.result("sess-1", "pres-1", s.now)))
	s.Require().NoError(s.store.SaveVerification(s.ctx, s.result("sess-2", "pres-2", s.now)))

	res, err := s.store.PurgeSession(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal(models.SweepResult{SessionsPurged: 1, PresentationsPurged: 1, ResultsPurged: 1}, res)

	_, err = s.store.FindResult(s.ctx, "sess-1", "pres-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindSessionByTransaction(s.ctx, "tx-sess-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindResult(s.ctx, "sess-2", "pres-2")
	s.NoError(err)

	_, err = s.store.PurgeSession(s.ctx, "sess-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestForgetHolder() {
	s.Require().NoError(s.store.SaveCredential(s.ctx, s.credential("cred-1", models.StatusIssued)))
	other := s.credential("cred-2", models.StatusIssued)
	other.HolderDID = "did:example:other"
	s.Require().NoError(s.store.SaveCredential(s.ctx, other))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.session("sess-1", s.now.Add(5*time.Minute))))
	s.Require().NoError(s.store.SaveVerification(s.ctx, s.result("sess-1", "pres-1", s.now)))

	summary, err := s.store.ForgetHolder(s.ctx, "did:example:holder")
	s.Require().NoError(err)
	s.Equal(models.ForgetSummary{
		HolderDID:                  "did:example:holder",
		CredentialsRemoved:         1,
		PresentationsRemoved:       1,
		VerificationResultsRemoved: 1,
	}, summary)

	_, err = s.store.FindCredentialByTransaction(s.ctx, "tx-cred-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindCredential(s.ctx, "cred-2")
	s.NoError(err)
	_, err = s.store.FindSession(s.ctx, "sess-1")
	s.NoError(err, "sessions belong to the verifier")
}

func (s *InMemoryStoreSuite) TestSweep() {
	expiredOffer := s.credential("offer-expired", models.StatusOffered)
	expiredOffer.ExpiresAt = s.now.Add(-time.Second)
	liveOffer := s.credential("offer-live", models.StatusOffered)
	pickup := s.issued("pickup", models.ScopeMedicationPickup, s.now.Add(-time.Second))
	record := s.issued("record", models.ScopeMedicalRecord, s.now.Add(-time.Second))
	fresh := s.issued("fresh", models.ScopeMedicalRecord, s.now.Add(time.Hour))
	for _, c := range []*models.CredentialOffer{expiredOffer, liveOffer, pickup, record, fresh} {
		s.Require().NoError(s.store.SaveCredential(s.ctx, c))
	}
	s.Require().NoError(s.store.SaveSession(s.ctx, s.session("sess-old", s.now.Add(-time.Second))))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.session("sess-live", s.now.Add(time.Minute))))
	s.Require().NoError(s.store.SaveVerification(s.ctx, s.result("sess-old", "pres-1", s.now.Add(-time.Minute))))

	res, err := s.store.Sweep(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(models.SweepResult{
		OffersExpired:       1,
		CredentialsDeleted:  1,
		CredentialsSealed:   1,
		SessionsPurged:      1,
		PresentationsPurged: 1,
		ResultsPurged:       1,
	}, res)

	// Invariant: a swept pickup credential leaves no trace in any index.
	_, err = s.store.FindCredential(s.ctx, "pickup")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindCredentialByTransaction(s.ctx, "tx-pickup")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindCredential(s.ctx, "offer-expired")
	s.ErrorIs(err, sentinel.ErrNotFound)

	sealed, err := s.store.FindCredential(s.ctx, "record")
	s.Require().NoError(err)
	s.Nil(sealed.Payload)
	s.Empty(sealed.SelectedDisclosures)
	s.Require().NotNil(sealed.SealedAt)
	s.Equal(s.now, *sealed.SealedAt)

	kept, err := s.store.FindCredential(s.ctx, "fresh")
	s.Require().NoError(err)
	s.NotNil(kept.Payload)

	again, err := s.store.Sweep(s.ctx, s.now.Add(time.Second))
	s.Require().NoError(err)
	s.False(again.Changed(), "sealing happens once")
}

func (s *InMemoryStoreSuite) TestReset() {
	s.Require().NoError(s.store.SaveCredential(s.ctx, s.credential("cred-1", models.StatusOffered)))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.session("sess-1", s.now.Add(time.Minute))))
	s.Require().NoError(s.store.Reset(s.ctx))

	_, err := s.store.FindCredential(s.ctx, "cred-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindSession(s.ctx, "sess-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.SaveCredential(s.ctx, s.credential("cred-1", models.StatusOffered)))
}

func (s *InMemoryStoreSuite) TestRunInTxCancelled() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.store.RunInTx(ctx, func(Tx) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.ErrorIs(err, context.Canceled)
	s.False(called)
}

func (s *InMemoryStoreSuite) TestRunInTxPropagatesError() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(tx Tx) error {
		s.Require().NoError(tx.SaveCredential(s.ctx, s.credential("cred-1", models.StatusOffered)))
		return boom
	})
	s.ErrorIs(err, boom)
}

// Invariant: read-modify-write sequences inside RunInTx are linearizable.
func (s *InMemoryStoreSuite) TestRunInTxSerializesTransitions() {
	var waits int
	var mu sync.Mutex
	s.store = NewInMemory(WithLockWaitObserver(func(time.Duration) {
		mu.Lock()
		waits++
		mu.Unlock()
	}))
	s.Require().NoError(s.store.SaveCredential(s.ctx, s.credential("cred-1", models.StatusOffered)))

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.RunInTx(s.ctx, func(tx Tx) error {
				c, err := tx.FindCredential(s.ctx, "cred-1")
				if err != nil {
					return err
				}
				if c.Status != models.StatusOffered {
					return fmt.Errorf("already %s", c.Status)
				}
				c.Status = models.StatusIssued
				return tx.UpdateCredential(s.ctx, c)
			})
			if err == nil {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	s.Equal(1, count, "exactly one transition may win")
	s.GreaterOrEqual(waits, workers)
}
