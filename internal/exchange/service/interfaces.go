package service

import (
	"context"
	"time"

	"medssi/internal/exchange/models"
	"medssi/pkg/platform/audit"
)

// Signer packages an issued credential for the wallet. Implementations
// receive a copy and must not block on the store.
type Signer interface {
	Sign(ctx context.Context, c models.CredentialOffer) (string, error)
}

// Analytics computes the advisory insight attached to a verified presentation.
type Analytics interface {
	Evaluate(p models.Presentation, now time.Time) *models.RiskInsight
}

// AuditPublisher receives audit events after an operation commits. Emission
// failures are logged and never fail the operation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
