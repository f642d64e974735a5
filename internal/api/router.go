package api

import (
	"net/http"

	"github.com/otiai10/ssobridge/internal/version"
)

const (
	// ExchangePath is the function name the client calls
	ExchangePath = "/generateSsoToken"

	// HealthPath reports liveness and the build hash
	HealthPath = "/health"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Hash   string `json:"hash"`
}

// NewRouter creates the HTTP router.
// The exchange is served on "/" as well so the same handler works when a
// platform routes the function's root URL to it.
func NewRouter(exchanger Exchanger) http.Handler {
	mux := http.NewServeMux()

	exchangeHandler := NewExchangeHandler(exchanger)
	mux.Handle("/{$}", exchangeHandler)
	mux.Handle(ExchangePath, exchangeHandler)

	mux.Handle("GET "+HealthPath, JSONContentTypeMiddleware(http.HandlerFunc(handleHealth)))

	return applyMiddlewareChain(mux)
}

// NewFunctionHandler wraps only the exchange handler in the middleware
// chain, for runtimes that own routing themselves.
func NewFunctionHandler(exchanger Exchanger) http.Handler {
	return applyMiddlewareChain(NewExchangeHandler(exchanger))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Hash: version.CommitHash}, http.StatusOK)
}

// applyMiddlewareChain wraps a handler with the standard middleware stack.
// CORS sits innermost so pre-flight answers are still logged.
func applyMiddlewareChain(h http.Handler) http.Handler {
	return Chain(
		CorrelationIDMiddleware,
		LoggingMiddleware,
		RecoveryMiddleware,
		CORSMiddleware,
	)(h)
}
