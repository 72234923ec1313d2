package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medssi/internal/exchange/models"
	"medssi/internal/exchange/store"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/sentinel"
	"medssi/pkg/testutil"
)

// failingInserts fails every insert with err and delegates everything else.
type failingInserts struct {
	*store.InMemoryStore
	err error
}

func (f failingInserts) SaveCredential(context.Context, *models.CredentialOffer) error {
	return f.err
}

func (f failingInserts) SaveSession(context.Context, *models.VerificationSession) error {
	return f.err
}

func (s *ServiceSuite) TestTranslate() {
	s.Nil(translate(nil, dErrors.CodeNotFound, "session"))

	domain := dErrors.New(dErrors.CodeHolderMismatch, "holder")
	s.Same(domain, translate(domain, dErrors.CodeNotFound, "session"))

	s.True(dErrors.HasCode(translate(fmt.Errorf("find: %w", sentinel.ErrNotFound), dErrors.CodeSessionExpired, "session"), dErrors.CodeSessionExpired))
	s.True(dErrors.HasCode(translate(sentinel.ErrConflict, dErrors.CodeInternal, "session"), dErrors.CodeConflict))
	s.True(dErrors.HasCode(translate(errors.New("disk on fire"), dErrors.CodeNotFound, "session"), dErrors.CodeInternal))
}

// Invariant: a failed insert never surfaces as a lookup miss.
func (s *ServiceSuite) TestInsertFailuresAreNotLookupMisses() {
	cases := []struct {
		name string
		err  error
		want dErrors.Code
	}{
		{"conflict", sentinel.ErrConflict, dErrors.CodeConflict},
		{"stray not found", sentinel.ErrNotFound, dErrors.CodeInternal},
		{"store failure", errors.New("lock acquisition aborted"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			svc := New(failingInserts{InMemoryStore: store.NewInMemory(), err: tc.err},
				WithClock(func() time.Time { return s.now }))

			_, err := svc.Offer(s.ctx, testutil.NewOfferBuilder().Build())
			s.Equal(tc.want, dErrors.CodeOf(err), "offer")

			_, err = svc.OpenSession(s.ctx, models.SessionRequest{
				VerifierID:             "pharmacy-1",
				RequiredAssuranceLevel: models.AssuranceNHICardPIN,
				Scope:                  models.ScopeMedicalRecord,
				Fields:                 []string{"cond_code"},
			})
			s.Equal(tc.want, dErrors.CodeOf(err), "open session")
		})
	}
}
