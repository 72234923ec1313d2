package audit

import (
	"context"
	"time"
)

// Event is emitted after an engine operation commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Actor        string    `json:"actor,omitempty"`
	Subject      string    `json:"subject,omitempty"` // hashed holder DID, never the raw identifier
	CredentialID string    `json:"credential_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Decision     string    `json:"decision,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Key returns the partitioning key used by ordered sinks: events about the
// same credential (or session) keep their relative order.
func (e Event) Key() string {
	switch {
	case e.CredentialID != "":
		return e.CredentialID
	case e.SessionID != "":
		return e.SessionID
	default:
		return e.Action
	}
}

type Action string

const (
	ActionCredentialOffered    Action = "credential_offered"
	ActionCredentialIssued     Action = "credential_issued"
	ActionCredentialUpdated    Action = "credential_updated"
	ActionCredentialDeclined   Action = "credential_declined"
	ActionCredentialRevoked    Action = "credential_revoked"
	ActionCredentialDeleted    Action = "credential_deleted"
	ActionSessionOpened        Action = "session_opened"
	ActionSessionPurged        Action = "session_purged"
	ActionPresentationVerified Action = "presentation_verified"
	ActionPresentationRejected Action = "presentation_rejected"
	ActionHolderForgotten      Action = "holder_forgotten"
	ActionRetentionSwept       Action = "retention_swept"
	ActionSandboxReset         Action = "sandbox_reset"
)

const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
)

// Sink accepts audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also be queried, used by tests and the
// in-process reference deployment.
type Store interface {
	Sink
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListAll(ctx context.Context) ([]Event, error)
}
