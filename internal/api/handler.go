package api

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/otiai10/ssobridge/internal/auth"
	"github.com/otiai10/ssobridge/internal/exchange"
)

// Response messages. The 500 message is shared by verification and
// issuance failures so callers cannot tell them apart.
const (
	msgMethodNotAllowed = "Method Not Allowed"
	msgMissingIDToken   = "ID token is missing from the request body."
	msgExchangeFailed   = "An unexpected error occurred while generating the SSO token."
)

// maxBodyBytes bounds the request body; ID tokens are a few KiB at most
const maxBodyBytes = 1 << 20

// ExchangeRequest represents the request body for the token exchange
type ExchangeRequest struct {
	IDToken string `json:"idToken"`
}

// ExchangeResponse represents a successful token exchange
type ExchangeResponse struct {
	CustomToken string `json:"customToken"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Exchanger performs the verify-then-issue exchange
type Exchanger interface {
	Exchange(ctx context.Context, idToken string) (*exchange.Result, error)
}

// ExchangeHandler serves the SSO token exchange endpoint
type ExchangeHandler struct {
	exchanger Exchanger
}

// NewExchangeHandler creates a new ExchangeHandler
func NewExchangeHandler(exchanger Exchanger) *ExchangeHandler {
	return &ExchangeHandler{exchanger: exchanger}
}

// ServeHTTP handles POST {"idToken": "..."} and answers with {"customToken": "..."}
func (h *ExchangeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	logger.Info().
		Str("content_type", r.Header.Get("Content-Type")).
		Int64("content_length", r.ContentLength).
		Msg("sso exchange request received")

	if r.Method != http.MethodPost {
		writeText(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	idToken := readIDToken(w, r)
	if idToken == "" {
		logger.Error().Msg("sso token generation: " + msgMissingIDToken)
		writeError(w, msgMissingIDToken, http.StatusBadRequest)
		return
	}

	// Once started, the exchange runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	result, err := h.exchanger.Exchange(ctx, idToken)
	if err != nil {
		logger.Error().
			Err(err).
			Str("stage", exchange.Stage(err)).
			Str("reason", auth.Reason(err)).
			Msg("error generating sso token")
		writeError(w, msgExchangeFailed, http.StatusInternalServerError)
		return
	}

	writeJSON(w, ExchangeResponse{CustomToken: result.CustomToken}, http.StatusOK)
}

// readIDToken extracts idToken from a JSON or form-encoded body.
// Unreadable, oversized, or malformed bodies yield "".
func readIDToken(w http.ResponseWriter, r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.PostForm.Get("idToken")
	}

	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return req.IDToken
}

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Already wrote headers, can only log
		return
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, ErrorResponse{Error: message}, status)
}

func writeText(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
