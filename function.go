// Package ssobridge exposes the SSO token exchange as a Cloud Functions
// HTTP entrypoint named generateSsoToken.
package ssobridge

import (
	"context"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/ssobridge/internal/app"
	"github.com/otiai10/ssobridge/internal/config"
	"github.com/otiai10/ssobridge/internal/logging"
)

// FunctionName is the entrypoint name registered with the Functions runtime
const FunctionName = "generateSsoToken"

const initFailedBody = `{"error":"An unexpected error occurred while generating the SSO token."}`

var (
	initOnce sync.Once
	handler  http.Handler
	initErr  error
)

func init() {
	functions.HTTP(FunctionName, GenerateSsoToken)
}

// GenerateSsoToken handles one invocation. The application is built on the
// first call and reused by every later call on the same instance.
func GenerateSsoToken(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		handler, initErr = setup(context.Background())
	})
	if initErr != nil {
		log.Error().Err(initErr).Msg("sso token generation: initialization failed")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(initFailedBody))
		return
	}
	handler.ServeHTTP(w, r)
}

func setup(ctx context.Context) (http.Handler, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, err
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant", cfg.Auth.TenantID).
		Bool("check_revoked", cfg.Auth.CheckRevoked).
		Bool("audit", cfg.Audit.Enabled).
		Msg("sso token exchange function initialized")

	return application.FunctionHandler(), nil
}
