// Package store owns every credential, session, presentation and result.
//
// Error Contract:
//   - ErrNotFound when the requested entity does not exist
//   - ErrConflict when an insert collides with an existing key or index entry
//   - wrapped domain timeout errors when a transaction's context is done
//
// Entities cross the boundary as copies. Mutations are written back explicitly.
package store

import (
	"context"
	"time"

	"medssi/internal/exchange/models"
)

// Tx is the set of operations available to a caller, either one at a time
// through Store or grouped inside RunInTx.
type Tx interface {
	SaveCredential(ctx context.Context, c *models.CredentialOffer) error
	FindCredential(ctx context.Context, credentialID string) (*models.CredentialOffer, error)
	FindCredentialByTransaction(ctx context.Context, transactionID string) (*models.CredentialOffer, error)
	FindCredentialByNonce(ctx context.Context, nonce string) (*models.CredentialOffer, error)
	UpdateCredential(ctx context.Context, c *models.CredentialOffer) error
	DeleteCredential(ctx context.Context, credentialID string) error
	ListCredentialsForHolder(ctx context.Context, holderDID string) ([]*models.CredentialOffer, error)

	SaveSession(ctx context.Context, s *models.VerificationSession) error
	FindSession(ctx context.Context, sessionID string) (*models.VerificationSession, error)
	FindSessionByTransaction(ctx context.Context, transactionID string) (*models.VerificationSession, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) (*models.VerificationSession, error)
	ListActiveSessions(ctx context.Context, verifierID string, now time.Time) ([]*models.VerificationSession, error)
	PurgeSession(ctx context.Context, sessionID string) (models.SweepResult, error)

	SaveVerification(ctx context.Context, r *models.VerificationResult) error
	FindResult(ctx context.Context, sessionID, presentationID string) (*models.VerificationResult, error)
	LatestResult(ctx context.Context, sessionID string) (*models.VerificationResult, error)
	ListPresentations(ctx context.Context, sessionID string) ([]models.Presentation, error)

	ForgetHolder(ctx context.Context, holderDID string) (models.ForgetSummary, error)
	Sweep(ctx context.Context, now time.Time) (models.SweepResult, error)
	Reset(ctx context.Context) error
}

// Store is the engine's storage port.
type Store interface {
	Tx
	// RunInTx runs fn with exclusive access to every table. fn's reads and
	// writes are observed by other callers as one step.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
