// internal/httpserver/server.go
//
// HTTP server wiring for the Birdle backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/metrics", "/suggest", "/licenses".
//   - Play endpoints (optional auth): /daily/new, /practice/{id}/new, /sessions/*.
//   - Player endpoints (optional auth): /history, /stats, /upload.
//   - Auth endpoints: /auth/*.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Guests are identified by an anonymous cookie; logging in moves their
//     history onto the account.
//   - Invalid operations answer 409; upstream failures answer 502 with the
//     failure kind and retryable=true.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/birdle/internal/birdnet"
	"github.com/robalobadob/birdle/internal/config"
	"github.com/robalobadob/birdle/internal/history"
	"github.com/robalobadob/birdle/internal/session"
	"github.com/robalobadob/birdle/internal/store"
	"github.com/robalobadob/birdle/internal/suggest"
)

// Uploader forwards photo submissions upstream.
type Uploader interface {
	Upload(ctx context.Context, s birdnet.Submission) error
}

// Deps are the collaborators behind the routes.
type Deps struct {
	DB       *sql.DB // users table
	Sessions store.Store
	Factory  *session.Factory
	History  history.Store
	Catalog  *suggest.Catalog
	Uploader Uploader
}

// Server bundles router, live sessions and persistence.
type Server struct {
	r   *chi.Mux
	cfg *config.Config
	Deps
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg *config.Config, d Deps) *Server {
	s := &Server{r: chi.NewRouter(), cfg: cfg, Deps: d}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(30 * time.Second))
	s.r.Use(jsonContentType)
	s.r.Use(cors(cfg.ClientOrigin))

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"birdle","endpoints":["/health","POST /daily/new","POST /practice/{id}/new","/sessions/{id}","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Lookups
	s.r.Get("/suggest", s.handleSuggest)
	s.r.Get("/licenses", s.handleLicenses)

	// Play + player data, optional auth (guests can play)
	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		s.mountPlay(r)
		s.mountPlayer(r)
	})

	s.mountAuthRoutes()

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Router exposes the internal router.
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------- responses ---------------------------------

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{Error: code})
}

// writeUpstreamError maps a network collaborator failure to 502 with its
// kind. Anything else is a 500.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	kind := birdnet.KindOf(err)
	if kind == "" {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	log.Warn().Err(err).Str("path", r.URL.Path).Str("kind", string(kind)).Msg("upstream failure")
	writeJSON(w, http.StatusBadGateway, errorBody{Error: string(kind), Retryable: true})
}

func isValidation(err error) (*birdnet.ValidationError, bool) {
	var ve *birdnet.ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}
