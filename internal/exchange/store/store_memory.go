package store

import (
	"context"
	"sync"
	"time"

	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
)

// defaultTxTimeout bounds a transaction whose context carries no deadline.
const defaultTxTimeout = 5 * time.Second

// InMemoryStore is the volatile reference store. One mutex guards the primary
// tables and every secondary index.
type InMemoryStore struct {
	mu       sync.Mutex
	t        *tables
	timeout  time.Duration
	observer func(wait time.Duration)
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithTxTimeout overrides the default transaction deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *InMemoryStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLockWaitObserver receives how long each caller waited for the lock.
func WithLockWaitObserver(fn func(wait time.Duration)) Option {
	return func(s *InMemoryStore) {
		s.observer = fn
	}
}

// NewInMemory constructs an empty store.
func NewInMemory(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{t: newTables(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx implements Store.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(s.t)
}

func (s *InMemoryStore) lock() {
	if s.observer == nil {
		s.mu.Lock()
		return
	}
	start := time.Now()
	s.mu.Lock()
	s.observer(time.Since(start))
}

func (s *InMemoryStore) SaveCredential(ctx context.Context, c *models.CredentialOffer) error {
	s.lock()
	defer s.mu.Unlock()
	return s.t.SaveCredential(ctx, c)
}

func (s *InMemoryStore) FindCredential(ctx context.Context, credentialID string) (*models.CredentialOffer, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.FindCredential(ctx, credentialID)
}

func (s *InMemoryStore) FindCredentialByTransaction(ctx context.Context, transactionID string) (*models.CredentialOffer, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.FindCredentialByTransaction(ctx, transactionID)
}

func (s *InMemoryStore) FindCredentialByNonce(ctx context.Context, nonce string) (*models.CredentialOffer, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.FindCredentialByNonce(ctx, nonce)
}

func (s *InMemoryStore) UpdateCredential(ctx context.Context, c *models.CredentialOffer) error {
	s.lock()
	defer s.mu.Unlock()
	return s.t.UpdateCredential(ctx, c)
}

func (s *InMemoryStore) DeleteCredential(ctx context.Context, credentialID string) error {
	s.lock()
	defer s.mu.Unlock()
	return s.t.DeleteCredential(ctx, credentialID)
}

func (s *InMemoryStore) ListCredentialsForHolder(ctx context.Context, holderDID string) ([]*models.CredentialOffer, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.ListCredentialsForHolder(ctx, holderDID)
}

func (s *InMemoryStore) SaveSession(ctx context.Context, sess *models.VerificationSession) error {
	s.lock()
	defer s.mu.Unlock()
	return s.t.SaveSession(ctx, sess)
}

func (s *InMemoryStore) FindSession(ctx context.Context, sessionID string) (*models.VerificationSession, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.FindSession(ctx, sessionID)
}

func (s *InMemoryStore) FindSessionByTransaction(ctx context.Context, transactionID string) (*models.VerificationSession, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.FindSessionByTransaction(ctx, transactionID)
}

func (s *InMemoryStore) TouchSession(ctx context.Context, sessionID string, at time.Time) (*models.VerificationSession, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.TouchSession(ctx, sessionID, at)
}

func (s *InMemoryStore) ListActiveSessions(ctx context.Context, verifierID string, now time.Time) ([]*models.VerificationSession, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.ListActiveSessions(ctx, verifierID, now)
}

func (s *InMemoryStore) PurgeSession(ctx context.Context, sessionID string) (models.SweepResult, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.PurgeSession(ctx, sessionID)
}

func (s *InMemoryStore) SaveVerification(ctx context.Context, r *models.VerificationResult) error {
	s.lock()
	defer s.mu.Unlock()
	return s.t.SaveVerification(ctx, r)
}

func (s *InMemoryStore) FindResult(ctx context.Context, sessionID, presentationID string) (*models.VerificationResult, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.FindResult(ctx, sessionID, presentationID)
}

func (s *InMemoryStore) LatestResult(ctx context.Context, sessionID string) (*models.VerificationResult, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.LatestResult(ctx, sessionID)
}

func (s *InMemoryStore) ListPresentations(ctx context.Context, sessionID string) ([]models.Presentation, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.ListPresentations(ctx, sessionID)
}

func (s *InMemoryStore) ForgetHolder(ctx context.Context, holderDID string) (models.ForgetSummary, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.ForgetHolder(ctx, holderDID)
}

func (s *InMemoryStore) Sweep(ctx context.Context, now time.Time) (models.SweepResult, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.t.Sweep(ctx, now)
}

func (s *InMemoryStore) Reset(ctx context.Context) error {
	s.lock()
	defer s.mu.Unlock()
	return s.t.Reset(ctx)
}
