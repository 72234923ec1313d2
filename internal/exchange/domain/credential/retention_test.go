package credential_test

import (
	"time"

	"medssi/internal/exchange/domain/credential"
	"medssi/internal/exchange/models"
)

func (s *StateMachineSuite) TestRetentionWindows() {
	r := credential.DefaultRetention()
	s.Less(r.Window(models.ScopeMedicationPickup), r.Window(models.ScopeMedicalRecord))
	s.Less(r.Window(models.ScopeMedicalRecord), r.Window(models.ScopeResearchAnalytics))
}

func (s *StateMachineSuite) TestEvaluateSweep() {
	s.Run("unaccepted offer past expiry is deleted", func() {
		c := s.offer(models.ModeWithData)
		s.Equal(credential.SweepKeep, credential.EvaluateSweep(c, c.ExpiresAt))
		s.Equal(credential.SweepDelete, credential.EvaluateSweep(c, c.ExpiresAt.Add(time.Second)))
	})

	s.Run("declined offer never issued follows offer expiry", func() {
		c := s.offer(models.ModeWithData)
		c.Status = models.StatusDeclined
		s.Equal(credential.SweepDelete, credential.EvaluateSweep(c, c.ExpiresAt.Add(time.Second)))
	})

	s.Run("issued medical record past retention is sealed", func() {
		c := s.issued()
		s.Equal(credential.SweepKeep, credential.EvaluateSweep(c, *c.RetentionExpiresAt))
		s.Equal(credential.SweepSeal, credential.EvaluateSweep(c, c.RetentionExpiresAt.Add(time.Second)))
	})

	// Invariant: pickup credentials past retention are removed entirely.
	s.Run("issued pickup past retention is deleted", func() {
		c := s.issued()
		c.PrimaryScope = models.ScopeMedicationPickup
		s.Equal(credential.SweepDelete, credential.EvaluateSweep(c, c.RetentionExpiresAt.Add(time.Second)))
	})

	s.Run("revoked becomes eligible right after revocation", func() {
		c := s.issued()
		at := s.now.Add(time.Hour)
		s.Require().NoError(credential.Apply(c, models.ActionRequest{Action: models.ActionRevoke}, at, s.retention))
		s.Equal(credential.SweepSeal, credential.EvaluateSweep(c, at.Add(time.Millisecond)))
	})

	s.Run("sealed credentials are kept", func() {
		c := s.issued()
		credential.Seal(c, s.now)
		s.Equal(credential.SweepKeep, credential.EvaluateSweep(c, c.RetentionExpiresAt.Add(time.Hour)))
	})
}

func (s *StateMachineSuite) TestSeal() {
	c := s.issued()
	c.ExternalFields = map[string]string{"cond_code": "K297"}
	credential.Seal(c, s.now)

	s.Nil(c.Payload)
	s.Nil(c.PayloadTemplate)
	s.Empty(c.SelectedDisclosures)
	s.Empty(c.ExternalFields)
	s.True(c.IsSealed())
	s.Equal(models.StatusIssued, c.Status, "the envelope is kept")
	s.Equal("cred-1", c.CredentialID)
	s.NotEmpty(c.DisclosurePolicies)
}
