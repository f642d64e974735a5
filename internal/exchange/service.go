// Package exchange turns a verified ID token into a custom token for the same subject.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/otiai10/ssobridge/internal/audit"
	"github.com/otiai10/ssobridge/internal/auth"
	"github.com/otiai10/ssobridge/internal/logging"
)

var (
	// ErrVerify marks failures of the verification step
	ErrVerify = errors.New("id token verification failed")

	// ErrIssue marks failures of the issuance step
	ErrIssue = errors.New("custom token issuance failed")
)

// Result is a successful exchange
type Result struct {
	CustomToken string
	Identity    *auth.Identity
}

// Service exchanges ID tokens for custom tokens.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	authority auth.Authority
	recorder  audit.Recorder // optional, can be nil
	now       func() time.Time
}

// Option is a functional option for configuring the Service.
type Option func(*Service)

// WithRecorder sets the audit recorder.
// If not provided, exchanges are only logged.
func WithRecorder(recorder audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithClock overrides the time source used for audit records
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service backed by the given authority
func NewService(authority auth.Authority, opts ...Option) *Service {
	s := &Service{
		authority: authority,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exchange verifies idToken and mints a custom token for its subject.
//
// The two authority calls run in order; issuance is never attempted when
// verification fails. Errors wrap ErrVerify or ErrIssue.
func (s *Service) Exchange(ctx context.Context, idToken string) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	identity, err := s.authority.Verify(ctx, idToken)
	if err == nil && (identity == nil || identity.UID == "") {
		err = &auth.Error{Kind: auth.ErrInvalidToken, Reason: "missing_subject"}
	}
	if err != nil {
		s.record(ctx, audit.Record{
			Outcome: audit.OutcomeVerifyFailed,
			Reason:  auth.Reason(err),
		})
		return nil, fmt.Errorf("%w: %w", ErrVerify, err)
	}

	logger.Info().
		Str("uid", identity.UID).
		Str("provider", identity.ProviderID).
		Str("tenant", identity.TenantID).
		Bool("email_verified", identity.EmailVerified).
		Time("id_token_expires_at", identity.ExpiresAt).
		Msg("verified id token, generating custom token")

	customToken, err := s.authority.Issue(ctx, identity.UID)
	if err == nil && customToken == "" {
		err = &auth.Error{Kind: auth.ErrIssuance, Reason: "empty_token"}
	}
	if err != nil {
		s.record(ctx, identityRecord(identity, audit.OutcomeIssueFailed, auth.Reason(err)))
		return nil, fmt.Errorf("%w for %s: %w", ErrIssue, identity.UID, err)
	}

	logger.Info().Str("uid", identity.UID).Int("token_length", len(customToken)).Msg("generated custom token")
	s.record(ctx, identityRecord(identity, audit.OutcomeIssued, ""))

	return &Result{
		CustomToken: customToken,
		Identity:    identity,
	}, nil
}

// Stage names the failing step of err for logs: "verify", "issue" or "".
func Stage(err error) string {
	switch {
	case errors.Is(err, ErrVerify):
		return "verify"
	case errors.Is(err, ErrIssue):
		return "issue"
	default:
		return ""
	}
}

// record writes rec to the recorder; failures are logged and swallowed
func (s *Service) record(ctx context.Context, rec audit.Record) {
	if s.recorder == nil {
		return
	}

	rec.CorrelationID = logging.CorrelationID(ctx)
	rec.OccurredAt = s.now().UTC()

	if err := s.recorder.Record(ctx, rec); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("outcome", string(rec.Outcome)).Msg("failed to record exchange")
	}
}

func identityRecord(identity *auth.Identity, outcome audit.Outcome, reason string) audit.Record {
	return audit.Record{
		Subject:    identity.UID,
		TenantID:   identity.TenantID,
		ProviderID: identity.ProviderID,
		Outcome:    outcome,
		Reason:     reason,
	}
}
