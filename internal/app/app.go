package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/ssobridge/internal/api"
	"github.com/otiai10/ssobridge/internal/audit"
	"github.com/otiai10/ssobridge/internal/auth"
	"github.com/otiai10/ssobridge/internal/config"
	"github.com/otiai10/ssobridge/internal/exchange"
	"github.com/otiai10/ssobridge/internal/store"
)

// App wires the identity authority, the exchange service and the optional
// audit trail from configuration. It is built once per process.
type App struct {
	authority auth.Authority
	service   *exchange.Service
	store     store.Store              // nil when audit is disabled
	recorder  *audit.FirestoreRecorder // nil when audit is disabled
}

// Option is a functional option for configuring the App.
type Option func(*App)

// WithAuthority uses the given authority instead of initializing Firebase.
func WithAuthority(authority auth.Authority) Option {
	return func(a *App) {
		a.authority = authority
	}
}

// New creates a new application instance from cfg.
//
// Example:
//
//	cfg, err := config.LoadFromEnv()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("failed to load configuration")
//	}
//	application, err := app.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("failed to initialize")
//	}
//	defer application.Close()
//	http.ListenAndServe(cfg.Server.Addr, application.Router())
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}

	if a.authority == nil {
		tenantInfo := ""
		if cfg.Auth.TenantID != "" {
			tenantInfo = ", tenant: " + cfg.Auth.TenantID
		}
		log.Info().Msgf("Initializing Firebase Auth for project: %s%s", cfg.Auth.ProjectID, tenantInfo)

		authority, err := auth.NewFirebaseAuthority(ctx, auth.FirebaseAuthorityConfig{
			ProjectID:       cfg.Auth.ProjectID,
			CredentialsPath: cfg.Auth.Credentials,
			TenantID:        cfg.Auth.TenantID,
			CheckRevoked:    cfg.Auth.CheckRevoked,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create firebase authority: %w", err)
		}
		log.Info().
			Str("tenant", authority.TenantID()).
			Bool("check_revoked", cfg.Auth.CheckRevoked).
			Msg("Firebase Auth ready")
		a.authority = authority
	}

	var serviceOpts []exchange.Option
	if cfg.Audit.Enabled {
		log.Info().
			Str("project", cfg.Audit.ProjectID).
			Str("collection", cfg.Audit.Collection).
			Msg("Initializing Firestore audit trail")

		fc, err := store.NewFirestoreClient(ctx, store.FirestoreConfig{
			ProjectID:   cfg.Audit.ProjectID,
			Database:    cfg.Audit.Database,
			Credentials: cfg.Audit.Credentials,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		a.store = fc
		a.recorder = audit.NewFirestoreRecorder(fc.Client(), cfg.Audit.Collection)
		serviceOpts = append(serviceOpts, exchange.WithRecorder(a.recorder))
	}

	a.service = exchange.NewService(a.authority, serviceOpts...)

	return a, nil
}

// Router returns the HTTP handler for standalone serving
func (a *App) Router() http.Handler {
	return api.NewRouter(a.service)
}

// FunctionHandler returns the HTTP handler for the Cloud Functions runtime
func (a *App) FunctionHandler() http.Handler {
	return api.NewFunctionHandler(a.service)
}

// AuditReader returns the audit reader, or nil when audit is disabled
func (a *App) AuditReader() audit.Reader {
	if a.recorder == nil {
		return nil
	}
	return a.recorder
}

// Close releases resources held by the App
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
