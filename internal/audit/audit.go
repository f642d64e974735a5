// Package audit records the outcome of token exchanges.
//
// Records describe who exchanged and how it ended. They never contain the
// ID token or the minted custom token.
package audit

import (
	"context"
	"time"
)

// Outcome is the terminal state of one exchange attempt
type Outcome string

const (
	OutcomeIssued       Outcome = "issued"
	OutcomeVerifyFailed Outcome = "verify_failed"
	OutcomeIssueFailed  Outcome = "issue_failed"
)

// Record is a single exchange attempt that reached the identity authority
type Record struct {
	ID            string    `firestore:"-" json:"id,omitempty"`
	Subject       string    `firestore:"subject" json:"subject,omitempty"` // empty when verification failed
	TenantID      string    `firestore:"tenantId,omitempty" json:"tenantId,omitempty"`
	ProviderID    string    `firestore:"providerId,omitempty" json:"providerId,omitempty"`
	Outcome       Outcome   `firestore:"outcome" json:"outcome"`
	Reason        string    `firestore:"reason,omitempty" json:"reason,omitempty"`
	CorrelationID string    `firestore:"correlationId,omitempty" json:"correlationId,omitempty"`
	OccurredAt    time.Time `firestore:"occurredAt" json:"occurredAt"`
}

// Recorder persists exchange records
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Reader lists exchange records for a subject, newest first
type Reader interface {
	Recent(ctx context.Context, subject string, limit int) ([]Record, error)
}
