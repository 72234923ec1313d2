package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"medssi/internal/exchange/domain/credential"
	"medssi/internal/exchange/models"
	"medssi/pkg/platform/sentinel"
)

type resultKey struct {
	sessionID      string
	presentationID string
}

type resultEntry struct {
	result *models.VerificationResult
	seq    uint64
}

// tables holds the primary maps and their secondary indices. It is not safe
// for concurrent use; InMemoryStore serializes every access.
type tables struct {
	credentials   map[string]*models.CredentialOffer
	credByTx      map[string]string
	credByNonce   map[string]string
	sessions      map[string]*models.VerificationSession
	sessionByTx   map[string]string
	presentations map[string]models.Presentation
	results       map[resultKey]resultEntry
	seq           uint64
}

func newTables() *tables {
	return &tables{
		credentials:   make(map[string]*models.CredentialOffer),
		credByTx:      make(map[string]string),
		credByNonce:   make(map[string]string),
		sessions:      make(map[string]*models.VerificationSession),
		sessionByTx:   make(map[string]string),
		presentations: make(map[string]models.Presentation),
		results:       make(map[resultKey]resultEntry),
	}
}

func (t *tables) SaveCredential(_ context.Context, c *models.CredentialOffer) error {
	if _, exists := t.credentials[c.CredentialID]; exists {
		return fmt.Errorf("credential %s: %w", c.CredentialID, sentinel.ErrConflict)
	}
	if _, exists := t.credByTx[c.TransactionID]; exists {
		return fmt.Errorf("transaction %s: %w", c.TransactionID, sentinel.ErrConflict)
	}
	if c.Nonce != "" {
		if _, exists := t.credByNonce[c.Nonce]; exists {
			return fmt.Errorf("nonce: %w", sentinel.ErrConflict)
		}
	}
	t.putCredential(c.Clone())
	return nil
}

func (t *tables) putCredential(c *models.CredentialOffer) {
	t.credentials[c.CredentialID] = c
	t.credByTx[c.TransactionID] = c.CredentialID
	if c.Nonce != "" {
		t.credByNonce[c.Nonce] = c.CredentialID
	}
}

func (t *tables) FindCredential(_ context.Context, credentialID string) (*models.CredentialOffer, error) {
	c, ok := t.credentials[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (t *tables) FindCredentialByTransaction(ctx context.Context, transactionID string) (*models.CredentialOffer, error) {
	id, ok := t.credByTx[transactionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.FindCredential(ctx, id)
}

func (t *tables) FindCredentialByNonce(ctx context.Context, nonce string) (*models.CredentialOffer, error) {
	id, ok := t.credByNonce[nonce]
	if !ok || nonce == "" {
		return nil, sentinel.ErrNotFound
	}
	return t.FindCredential(ctx, id)
}

func (t *tables) UpdateCredential(_ context.Context, c *models.CredentialOffer) error {
	existing, ok := t.credentials[c.CredentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.TransactionID != c.TransactionID || existing.Nonce != c.Nonce {
		return fmt.Errorf("credential %s identifiers are immutable: %w", c.CredentialID, sentinel.ErrConflict)
	}
	t.credentials[c.CredentialID] = c.Clone()
	return nil
}

func (t *tables) DeleteCredential(_ context.Context, credentialID string) error {
	if _, ok := t.credentials[credentialID]; !ok {
		return sentinel.ErrNotFound
	}
	t.dropCredential(credentialID)
	return nil
}

func (t *tables) dropCredential(credentialID string) {
	c := t.credentials[credentialID]
	delete(t.credentials, credentialID)
	if t.credByTx[c.TransactionID] == credentialID {
		delete(t.credByTx, c.TransactionID)
	}
	if c.Nonce != "" && t.credByNonce[c.Nonce] == credentialID {
		delete(t.credByNonce, c.Nonce)
	}
}

func (t *tables) ListCredentialsForHolder(_ context.Context, holderDID string) ([]*models.CredentialOffer, error) {
	holderDID = strings.TrimSpace(holderDID)
	var out []*models.CredentialOffer
	if holderDID == "" {
		return out, nil
	}
	for _, c := range t.credentials {
		if c.HolderDID == holderDID {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.CredentialOffer) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.CredentialID, b.CredentialID)
	})
	return out, nil
}

func (t *tables) SaveSession(_ context.Context, s *models.VerificationSession) error {
	if _, exists := t.sessions[s.SessionID]; exists {
		return fmt.Errorf("session %s: %w", s.SessionID, sentinel.ErrConflict)
	}
	t.sessions[s.SessionID] = s.Clone()
	if s.TransactionID != "" {
		t.sessionByTx[s.TransactionID] = s.SessionID
	}
	return nil
}

func (t *tables) FindSession(_ context.Context, sessionID string) (*models.VerificationSession, error) {
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.Clone(), nil
}

func (t *tables) FindSessionByTransaction(ctx context.Context, transactionID string) (*models.VerificationSession, error) {
	id, ok := t.sessionByTx[transactionID]
	if !ok || transactionID == "" {
		return nil, sentinel.ErrNotFound
	}
	return t.FindSession(ctx, id)
}

func (t *tables) TouchSession(_ context.Context, sessionID string, at time.Time) (*models.VerificationSession, error) {
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	s.LastPolledAt = at
	return s.Clone(), nil
}

func (t *tables) ListActiveSessions(_ context.Context, verifierID string, now time.Time) ([]*models.VerificationSession, error) {
	var out []*models.VerificationSession
	for _, s := range t.sessions {
		if verifierID != "" && s.VerifierID != verifierID {
			continue
		}
		if s.IsActive(now) {
			out = append(out, s.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.VerificationSession) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out, nil
}

func (t *tables) PurgeSession(_ context.Context, sessionID string) (models.SweepResult, error) {
	if _, ok := t.sessions[sessionID]; !ok {
		return models.SweepResult{}, sentinel.ErrNotFound
	}
	return t.purgeSession(sessionID), nil
}

// purgeSession removes a session and everything keyed to it.
func (t *tables) purgeSession(sessionID string) models.SweepResult {
	res := models.SweepResult{SessionsPurged: 1}
	s := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	if s.TransactionID != "" && t.sessionByTx[s.TransactionID] == sessionID {
		delete(t.sessionByTx, s.TransactionID)
	}
	for id, p := range t.presentations {
		if p.SessionID == sessionID {
			delete(t.presentations, id)
			res.PresentationsPurged++
		}
	}
	for key := range t.results {
		if key.sessionID == sessionID {
			delete(t.results, key)
			res.ResultsPurged++
		}
	}
	return res
}

func (t *tables) SaveVerification(_ context.Context, r *models.VerificationResult) error {
	p := r.Presentation
	if _, ok := t.sessions[r.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", r.SessionID, sentinel.ErrNotFound)
	}
	if p.SessionID != r.SessionID {
		return fmt.Errorf("presentation %s belongs to another session: %w", p.PresentationID, sentinel.ErrConflict)
	}
	if _, exists := t.presentations[p.PresentationID]; exists {
		return fmt.Errorf("presentation %s: %w", p.PresentationID, sentinel.ErrConflict)
	}
	stored := r.Clone()
	t.presentations[p.PresentationID] = stored.Presentation
	t.seq++
	t.results[resultKey{sessionID: r.SessionID, presentationID: p.PresentationID}] = resultEntry{result: stored, seq: t.seq}
	return nil
}

func (t *tables) FindResult(_ context.Context, sessionID, presentationID string) (*models.VerificationResult, error) {
	e, ok := t.results[resultKey{sessionID: sessionID, presentationID: presentationID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.result.Clone(), nil
}

// LatestResult returns the result with the greatest presentation time; ties go
// to the one stored last.
func (t *tables) LatestResult(_ context.Context, sessionID string) (*models.VerificationResult, error) {
	var latest *resultEntry
	for key, e := range t.results {
		if key.sessionID != sessionID {
			continue
		}
		if latest == nil || newer(e, *latest) {
			cp := e
			latest = &cp
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest.result.Clone(), nil
}

func newer(a, b resultEntry) bool {
	at, bt := a.result.Presentation.IssuedAt, b.result.Presentation.IssuedAt
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.seq > b.seq
}

func (t *tables) ListPresentations(_ context.Context, sessionID string) ([]models.Presentation, error) {
	var entries []resultEntry
	for key, e := range t.results {
		if key.sessionID == sessionID {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b resultEntry) int {
		if newer(a, b) {
			return 1
		}
		if newer(b, a) {
			return -1
		}
		return 0
	})
	out := make([]models.Presentation, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.result.Clone().Presentation)
	}
	return out, nil
}

func (t *tables) ForgetHolder(_ context.Context, holderDID string) (models.ForgetSummary, error) {
	holderDID = strings.TrimSpace(holderDID)
	summary := models.ForgetSummary{HolderDID: holderDID}
	if holderDID == "" {
		return summary, nil
	}
	for id, c := range t.credentials {
		if c.HolderDID == holderDID {
			t.dropCredential(id)
			summary.CredentialsRemoved++
		}
	}
	for id, p := range t.presentations {
		if p.HolderDID == holderDID {
			delete(t.presentations, id)
			summary.PresentationsRemoved++
		}
	}
	for key, e := range t.results {
		if e.result.Presentation.HolderDID == holderDID {
			delete(t.results, key)
			summary.VerificationResultsRemoved++
		}
	}
	return summary, nil
}

func (t *tables) Sweep(_ context.Context, now time.Time) (models.SweepResult, error) {
	var res models.SweepResult
	for id, c := range t.credentials {
		switch credential.EvaluateSweep(c, now) {
		case credential.SweepDelete:
			if c.IssuedAt == nil {
				res.OffersExpired++
			} else {
				res.CredentialsDeleted++
			}
			t.dropCredential(id)
		case credential.SweepSeal:
			credential.Seal(c, now)
			res.CredentialsSealed++
		}
	}
	for id, s := range t.sessions {
		if now.After(s.ExpiresAt) {
			res.Add(t.purgeSession(id))
		}
	}
	return res, nil
}

func (t *tables) Reset(_ context.Context) error {
	*t = *newTables()
	return nil
}
