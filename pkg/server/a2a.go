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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/cityscape/pkg/auth"
)

// A2APath returns the JSON-RPC path of app.
func A2APath(app string) string {
	return "/a2a/" + app
}

func (s *Server) mountA2A(r chi.Router) {
	executor := NewExecutor(ExecutorConfig{
		Runner:         s.cfg.Runner,
		SessionService: s.cfg.SessionService,
	})

	var opts []a2asrv.RequestHandlerOption
	if s.cfg.TaskStore != nil {
		opts = append(opts, a2asrv.WithTaskStore(s.cfg.TaskStore))
	}
	if s.cfg.Validator != nil {
		opts = append(opts, a2asrv.WithCallInterceptor(auth.NewInterceptor(s.cfg.Auth.IsRequireAuth())))
	}
	jsonrpc := a2asrv.NewJSONRPCHandler(a2asrv.NewHandler(executor, opts...))

	r.Route("/a2a/{app}", func(r chi.Router) {
		r.Use(s.requireApp)
		r.Post("/", jsonrpc.ServeHTTP)
		r.Get(a2asrv.WellKnownAgentCardPath, s.handleAgentCard)
	})
	r.Get(a2asrv.WellKnownAgentCardPath, s.handleAgentCard)

	slog.Info("A2A endpoint enabled", "path", A2APath(s.appName))
}

// handleAgentCard serves the card with a URL built from the request, so it
// stays correct behind proxies and on ephemeral ports.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	card := s.buildAgentCard(requestBaseURL(r) + A2APath(s.appName))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		slog.Warn("Failed to encode agent card", "error", err)
	}
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

func (s *Server) buildAgentCard(url string) *a2a.AgentCard {
	root := s.cfg.Runner.RootAgent()

	skills := make([]a2a.AgentSkill, 0, len(root.SubAgents()))
	for _, sub := range root.SubAgents() {
		skills = append(skills, a2a.AgentSkill{
			ID:          sub.Name(),
			Name:        sub.Name(),
			Description: sub.Description(),
			Tags:        []string{"city"},
		})
	}
	if len(skills) == 0 {
		skills = append(skills, a2a.AgentSkill{
			ID:          root.Name(),
			Name:        root.Name(),
			Description: root.Description(),
			Tags:        []string{"city"},
		})
	}

	version := s.cfg.Version
	if version == "" {
		version = "dev"
	}

	card := &a2a.AgentCard{
		Name:               root.Name(),
		Description:        root.Description(),
		URL:                url,
		Version:            version,
		ProtocolVersion:    "0.3.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain", "image/png"},
		Skills:             skills,
		Capabilities: a2a.AgentCapabilities{
			Streaming: true,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
	}

	if s.cfg.Validator != nil {
		card.SecuritySchemes = a2a.NamedSecuritySchemes{
			"BearerAuth": a2a.HTTPAuthSecurityScheme{
				Scheme:       "bearer",
				BearerFormat: "JWT",
				Description:  "JWT Bearer token authentication",
			},
		}
		card.Security = []a2a.SecurityRequirements{
			{"BearerAuth": a2a.SecuritySchemeScopes{}},
		}
	}
	return card
}
