// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/auth"
	"github.com/kadirpekel/cityscape/pkg/config"
	"github.com/kadirpekel/cityscape/pkg/observability"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/session"
)

// Config contains the collaborators of a Server.
type Config struct {
	// Server holds listen address, CORS origins and feature switches.
	Server *config.ServerConfig

	// Auth enables bearer token validation when Validator is set.
	Auth      *config.AuthConfig
	Validator auth.TokenValidator

	Runner          *runner.Runner
	SessionService  session.Service
	ArtifactService artifact.Service

	// Observability provides tracing, metrics and the /metrics endpoint.
	// Default: noop.
	Observability *observability.Manager

	// TaskStore persists A2A tasks. Default: the a2a-go in-memory store.
	TaskStore a2asrv.TaskStore

	// Version is advertised on the agent card.
	Version string
}

// Server is the HTTP host process.
type Server struct {
	cfg     Config
	appName string
	handler http.Handler
	http    *http.Server
}

// New validates the configuration and builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.Server == nil {
		return nil, errors.New("server config is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.SessionService == nil {
		return nil, errors.New("session service is required")
	}
	if cfg.ArtifactService == nil {
		cfg.ArtifactService = artifact.NewInMemoryService()
	}
	if cfg.Observability == nil {
		cfg.Observability = observability.NoopManager()
	}
	if cfg.Auth == nil {
		cfg.Auth = &config.AuthConfig{}
	}

	s := &Server{cfg: cfg, appName: cfg.Runner.AppName()}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Order: recover -> tracing/metrics -> logging -> cors -> auth
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.cfg.Observability.Tracer("cityscape/server"), s.cfg.Observability.Metrics()))
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(s.cfg.Server.AllowedOrigins))
	if s.cfg.Validator != nil {
		excluded := append([]string{"/metrics"}, s.cfg.Auth.ExcludedPaths...)
		r.Use(auth.Middleware(s.cfg.Validator, excluded, s.cfg.Auth.IsRequireAuth()))
		slog.Info("Authentication enabled", "excluded_paths", excluded)
	}

	r.Get("/health", handleHealth)
	r.Get("/list-apps", s.handleListApps)

	r.Route("/apps/{app}/users/{user}/sessions", func(r chi.Router) {
		r.Use(s.requireApp)
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Route("/{session}", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/artifacts", s.handleListArtifacts)
			r.Get("/artifacts/{name}", s.handleGetArtifact)
		})
	})

	r.Post("/run", s.handleRun)
	r.Post("/run_sse", s.handleRunSSE)

	if s.cfg.Server.A2AEnabled() {
		s.mountA2A(r)
	}

	if s.cfg.Observability.MetricsEnabled() {
		r.Handle("/metrics", s.cfg.Observability.Metrics().Handler())
	}

	if s.cfg.Server.WebInterfaceEnabled() {
		mountWebUI(r)
	}

	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Server.Address(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("HTTP server starting",
		"address", s.cfg.Server.Address(),
		"app", s.appName,
		"a2a", s.cfg.Server.A2AEnabled(),
		"web_ui", s.cfg.Server.WebInterfaceEnabled())

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout == 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListApps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []string{s.appName})
}

// requireApp rejects requests for apps other than the hosted one.
func (s *Server) requireApp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app := chi.URLParam(r, "app"); app != s.appName {
			writeError(w, http.StatusNotFound, fmt.Sprintf("app %q not found", app))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
