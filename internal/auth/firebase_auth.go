package auth

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// firebaseClient is the subset of the Firebase Auth API used here.
// Both firebaseAuth.Client and firebaseAuth.TenantClient implement it.
type firebaseClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
	CustomToken(ctx context.Context, uid string) (string, error)
}

var (
	_ firebaseClient = (*firebaseAuth.Client)(nil)
	_ firebaseClient = (*firebaseAuth.TenantClient)(nil)
)

// FirebaseAuthority implements Authority using the Firebase Admin SDK
type FirebaseAuthority struct {
	client       firebaseClient
	tenantID     string
	checkRevoked bool
}

var _ Authority = (*FirebaseAuthority)(nil)

// FirebaseAuthorityConfig holds configuration for FirebaseAuthority
type FirebaseAuthorityConfig struct {
	ProjectID       string // Optional: discovered from credentials when empty
	CredentialsPath string // Optional: Application Default Credentials when empty
	TenantID        string // Optional: for multi-tenant Identity Platform
	CheckRevoked    bool   // Also reject tokens whose session was revoked
}

// NewFirebaseAuthority initializes the Firebase app and its Auth client.
// If FIREBASE_AUTH_EMULATOR_HOST is set the SDK talks to the emulator.
func NewFirebaseAuthority(ctx context.Context, cfg FirebaseAuthorityConfig) (*FirebaseAuthority, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	var appConfig *firebase.Config
	if cfg.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	var client firebaseClient = authClient
	if cfg.TenantID != "" {
		tenantClient, err := authClient.TenantManager.AuthForTenant(cfg.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant auth client for %s: %w", cfg.TenantID, err)
		}
		client = tenantClient
	}

	return newFirebaseAuthority(client, cfg.TenantID, cfg.CheckRevoked), nil
}

func newFirebaseAuthority(client firebaseClient, tenantID string, checkRevoked bool) *FirebaseAuthority {
	return &FirebaseAuthority{
		client:       client,
		tenantID:     tenantID,
		checkRevoked: checkRevoked,
	}
}

// TenantID returns the configured tenant, empty in single-tenant mode
func (a *FirebaseAuthority) TenantID() string {
	return a.tenantID
}

// Verify verifies a Firebase ID token and returns the identity it asserts
func (a *FirebaseAuthority) Verify(ctx context.Context, idToken string) (*Identity, error) {
	var (
		token *firebaseAuth.Token
		err   error
	)
	if a.checkRevoked {
		token, err = a.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = a.client.VerifyIDToken(ctx, idToken)
	}
	if err != nil {
		return nil, &Error{Kind: ErrInvalidToken, Reason: verifyReason(err), Err: err}
	}
	if token == nil || token.UID == "" {
		return nil, &Error{Kind: ErrInvalidToken, Reason: "missing_subject"}
	}

	return identityFromToken(token), nil
}

// Issue mints a custom token for uid
func (a *FirebaseAuthority) Issue(ctx context.Context, uid string) (string, error) {
	customToken, err := a.client.CustomToken(ctx, uid)
	if err != nil {
		return "", &Error{Kind: ErrIssuance, Reason: "custom_token", Err: err}
	}
	return customToken, nil
}

// verifyReason labels a verification failure for server-side logs
func verifyReason(err error) string {
	switch {
	case firebaseAuth.IsIDTokenRevoked(err):
		return "revoked"
	case firebaseAuth.IsUserDisabled(err):
		return "user_disabled"
	case firebaseAuth.IsIDTokenExpired(err):
		return "expired"
	case firebaseAuth.IsIDTokenInvalid(err):
		return "invalid"
	default:
		return "rejected"
	}
}

func identityFromToken(token *firebaseAuth.Token) *Identity {
	identity := &Identity{
		UID:           token.UID,
		EmailVerified: getBoolClaim(token.Claims, "email_verified"),
		ProviderID:    token.Firebase.SignInProvider,
		TenantID:      token.Firebase.Tenant,
	}
	if token.Expires > 0 {
		identity.ExpiresAt = time.Unix(token.Expires, 0).UTC()
	}
	return identity
}

// getBoolClaim safely extracts a boolean claim from the claims map
func getBoolClaim(claims map[string]any, key string) bool {
	val, ok := claims[key]
	if !ok {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}
