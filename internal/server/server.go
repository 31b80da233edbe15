// Package server provides the HTTP query boundary: event ingestion,
// statistics, badges, and scope administration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/castwatch/castwatch/pkg/auth"
	"github.com/castwatch/castwatch/pkg/platform"
	"github.com/castwatch/castwatch/pkg/stats"
)

// Version is set at build time.
var Version = "dev"

// Server routes API requests to the engine.
type Server struct {
	platform *platform.Platform
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a Server over the given engine.
func New(p *platform.Platform) *Server {
	s := &Server{
		platform: p,
		logger:   p.Logger(),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// registerRoutes registers all API routes. Scope-keyed routes sit behind
// token verification; health endpoints do not.
func (s *Server) registerRoutes() {
	guard := auth.Middleware(s.platform.Verifier(), auth.PathScope)
	scoped := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, guard(h))
	}

	scoped("POST /api/v1/scopes/{scope}/events", s.handleEvent)

	scoped("GET /api/v1/scopes/{scope}/subjects/{subject}/stats", s.handleMemberStats)
	scoped("GET /api/v1/scopes/{scope}/subjects/{subject}/heatmap", s.handleHeatmap)
	scoped("GET /api/v1/scopes/{scope}/subjects/{subject}/partners", s.handlePartners)
	scoped("GET /api/v1/scopes/{scope}/subjects/{subject}/export", s.handleExport)
	scoped("GET /api/v1/scopes/{scope}/subjects/{subject}/badges", s.handleBadges)
	scoped("GET /api/v1/scopes/{scope}/top", s.handleTop)
	scoped("GET /api/v1/scopes/{scope}/heatmap", s.handleHeatmap)
	scoped("GET /api/v1/scopes/{scope}/achievements", s.handleAchievements)

	scoped("GET /api/v1/scopes/{scope}/config", s.handleGetConfig)
	scoped("PUT /api/v1/scopes/{scope}/config", s.handlePutConfig)
	scoped("DELETE /api/v1/scopes/{scope}/config", s.handleDeleteConfig)
	scoped("GET /api/v1/scopes/{scope}/filters/subjects/{subject}", s.handleGetSubjectFlags)
	scoped("PUT /api/v1/scopes/{scope}/filters/subjects/{subject}", s.handlePutSubjectFlags)
	scoped("GET /api/v1/scopes/{scope}/filters/groups/{group}", s.handleGetGroupFlags)
	scoped("PUT /api/v1/scopes/{scope}/filters/groups/{group}", s.handlePutGroupFlags)

	checker := s.platform.Checker()
	s.mux.HandleFunc("GET /healthz", checker.LivenessHandler())
	s.mux.HandleFunc("GET /readyz", checker.ReadinessHandler())
}

// Run serves until the context is canceled, then drains with the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.platform.Config().Server
	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      s,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("http server listening", "address", cfg.Address, "version", Version)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryPeriod parses the period query parameter, defaulting to all time.
// A malformed period reports badRequest and returns false.
func queryPeriod(w http.ResponseWriter, r *http.Request) (stats.Period, bool) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		raw = "all"
	}
	period, err := stats.ParsePeriod(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return stats.Period{}, false
	}
	return period, true
}
