package credential

import (
	"time"

	"medssi/internal/exchange/models"
)

// RetentionPolicy holds how long an issued credential keeps its personal data,
// per primary scope.
type RetentionPolicy struct {
	Pickup  time.Duration
	Medical time.Duration
	Default time.Duration
}

// DefaultRetention is the sandbox retention schedule.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{
		Pickup:  72 * time.Hour,
		Medical: 30 * 24 * time.Hour,
		Default: 180 * 24 * time.Hour,
	}
}

// Window returns the retention window for scope.
func (r RetentionPolicy) Window(scope models.Scope) time.Duration {
	switch scope {
	case models.ScopeMedicationPickup:
		return r.Pickup
	case models.ScopeMedicalRecord:
		return r.Medical
	default:
		return r.Default
	}
}

// SweepAction is what the retention sweep does with one credential.
type SweepAction int

const (
	SweepKeep SweepAction = iota
	SweepDelete
	SweepSeal
)

func (a SweepAction) String() string {
	switch a {
	case SweepDelete:
		return "delete"
	case SweepSeal:
		return "seal"
	default:
		return "keep"
	}
}

// EvaluateSweep decides the fate of c at now.
//
// Offers that were never issued leave no trace once their offer window closes.
// Credentials past retention are deleted for the pickup scope and sealed
// otherwise. Sealing happens once.
func EvaluateSweep(c *models.CredentialOffer, now time.Time) SweepAction {
	neverIssued := c.IssuedAt == nil
	switch {
	case c.Status == models.StatusOffered && now.After(c.ExpiresAt):
		return SweepDelete
	case c.Status == models.StatusDeclined && neverIssued && now.After(c.ExpiresAt):
		return SweepDelete
	case c.IsSealed() || c.Status == models.StatusOffered:
		return SweepKeep
	case c.RetentionExpiresAt != nil && c.RetentionExpiresAt.Before(now):
		if c.PrimaryScope == models.ScopeMedicationPickup {
			return SweepDelete
		}
		return SweepSeal
	}
	return SweepKeep
}

// Seal strips personal data from c and keeps its audit envelope.
func Seal(c *models.CredentialOffer, now time.Time) {
	c.Payload = nil
	c.PayloadTemplate = nil
	c.SelectedDisclosures = map[string]string{}
	c.ExternalFields = map[string]string{}
	sealed := now
	c.SealedAt = &sealed
}
