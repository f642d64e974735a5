// Package auth wraps the identity authority (Firebase Auth) that verifies
// ID tokens and mints custom tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidToken is returned when the authority rejects an ID token
	ErrInvalidToken = errors.New("invalid id token")

	// ErrIssuance is returned when the authority fails to mint a custom token
	ErrIssuance = errors.New("custom token issuance failed")
)

// Identity is the verified subject extracted from an ID token
type Identity struct {
	UID           string    `json:"uid"`
	EmailVerified bool      `json:"email_verified,omitempty"`
	ProviderID    string    `json:"provider_id,omitempty"`
	TenantID      string    `json:"tenant_id,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Authority verifies ID tokens and issues custom tokens for verified subjects
type Authority interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
	Issue(ctx context.Context, uid string) (string, error)
}

// Error is returned by Authority implementations. Kind is ErrInvalidToken or
// ErrIssuance; Reason is a short machine-readable label for logs.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Reason, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Reason returns the log label carried by an *Error, or "unknown"
func Reason(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Reason != "" {
		return ae.Reason
	}
	return "unknown"
}
