// Package httpapi wires the chi router for the QBD sync gateway: a health
// check, the .qwc provisioning endpoint, and the two-phase Web Connector
// poll endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/qbd-sync-gateway/internal/auth"
	"github.com/erauner12/qbd-sync-gateway/internal/qbdpoll"
	"github.com/erauner12/qbd-sync-gateway/internal/qbdprovision"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	Poll       *qbdpoll.Service
	Provision  *qbdprovision.Service
	DefaultApp string // AppName rendered into generated .qwc files
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

// writeError writes an error response with correlation ID from context.
func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	writeJSON(w, code, errorResponse{
		Error:         message,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

// Routes creates the HTTP router. jwt is consulted only when a non-empty
// HS256Secret/Issuer is configured — otherwise the provisioning endpoint is
// left open, matching a local/dev deployment with no admin auth configured.
func (s *Server) Routes(jwt auth.JWTCfg) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/client-systems/quickbooks/desktop", func(r chi.Router) {
		if jwt.HS256Secret != "" || jwt.Issuer != "" {
			r.Use(auth.Middleware(jwt))
		}
		r.Post("/qwc", s.handleGenerateQWC)
	})

	// The Web Connector poll endpoints authenticate via the QBD
	// username/password embedded in each request body, not a bearer token —
	// QuickBooks Web Connector has no notion of an Authorization header.
	r.Route("/poll/v1", func(r chi.Router) {
		r.Post("/qbwc", s.handlePollRequest)
		r.Post("/qbwc/receive", s.handlePollReceive)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
