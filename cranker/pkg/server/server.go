// Package server exposes the cranker's permissionless HTTP command surface.
// Anyone may initialize vaults and positions or drive distribution pages; the
// state machine itself enforces ordering and the 24h gate, so the surface
// needs no authentication, only rate limiting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/starlabs/star-fee-routing/cranker/pkg/crank"
	"github.com/starlabs/star-fee-routing/cranker/pkg/position"
	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

type Config struct {
	Logger     *slog.Logger
	Listen     string
	Clock      clockwork.Clock
	Store      store.Store
	Crank      *crank.Crank
	Controller *position.Controller
	Resolver   crank.LockedResolver
	Version    string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Listen == "" {
		return errors.New("listen address is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Crank == nil {
		return errors.New("crank is required")
	}
	if cfg.Controller == nil {
		return errors.New("position controller is required")
	}
	if cfg.Resolver == nil {
		return errors.New("locked resolver is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return nil
}

type Server struct {
	log    *slog.Logger
	cfg    Config
	router *chi.Mux
	srv    *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	// Distribution pages move funds; keep one IP from hammering the row lock.
	distributeLimiter := NewRateLimiter(rate.Every(time.Minute/60), 10)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/vaults", s.handleCreateVault)
		r.Post("/vaults/{seed}/position", s.handleInitializePosition)
		r.With(RateLimitMiddleware(distributeLimiter)).
			Post("/vaults/{seed}/distribute", s.handleDistribute)
		r.Get("/vaults/{seed}/progress", s.handleProgress)
	})

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.log.Info("server: listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server: shutting down")
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler { return s.router }

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("server: failed to encode response", "error", err)
	}
}

// writeError renders a failure with its stable code. Unknown errors become
// INTERNAL with the detail withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *vault.Error
	if errors.As(err, &verr) {
		s.writeJSON(w, statusForCode(verr.Code), errorResponse{
			Code:    verr.Code,
			Message: err.Error(),
		})
		return
	}
	s.log.Error("server: request failed", "error", err)
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    "INTERNAL",
		Message: "internal error",
	})
}

func statusForCode(code string) int {
	switch code {
	case "VAULT_NOT_FOUND", "POSITION_NOT_INITIALIZED":
		return http.StatusNotFound
	case "ALREADY_INITIALIZED", "TOO_EARLY_FOR_DISTRIBUTION",
		"INVALID_PAGE_INDEX", "DISTRIBUTION_ALREADY_COMPLETE", "BASE_FEE_DETECTED":
		return http.StatusConflict
	case "INVALID_QUOTE_MINT", "INVALID_EXTERNAL_LEDGER_RECORD", "ARITHMETIC_OVERFLOW":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, format string, args ...any) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    "BAD_REQUEST",
		Message: fmt.Sprintf(format, args...),
	})
}
