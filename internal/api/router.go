package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check made by GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		// Admission is checked in the handler: ticket, bearer or cookie.
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/verify", s.handleVerify)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Post("/commands", s.handleSubmitCommand)
			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	// Unversioned paths kept for existing web clients.
	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/verify", s.handleVerify)
		r.Post("/send-mqtt", s.handleSubmitCommand)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Broker   string `json:"broker,omitempty"`
	Database string `json:"database,omitempty"`
	Sessions string `json:"sessions"`
}

// handleHealth reports "ok", or "degraded" while the broker is not
// Connected, the database does not answer or the session store is down.
// It always returns 200 so the relay stays reachable during an outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if s.broker != nil {
		resp.Broker = s.broker.State().String()
		if err := s.broker.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
		}
	}

	if s.db != nil {
		resp.Database = "ok"
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			resp.Database = "unavailable"
			resp.Status = "degraded"
		}
	}

	resp.Sessions = "ok"
	if err := s.gate.HealthCheck(ctx); err != nil {
		s.logger.Warn("session store health check failed", "error", err)
		resp.Sessions = "unavailable"
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
