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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/session"
)

const maxBodyBytes = 32 << 20

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	resp, err := s.cfg.SessionService.List(r.Context(), &session.ListRequest{
		AppName: s.appName,
		UserID:  chi.URLParam(r, "user"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]sessionJSON, 0, len(resp.Sessions))
	for _, sess := range resp.Sessions {
		sj, err := toSessionJSON(sess, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, sj)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}
	if id := chi.URLParam(r, "session"); id != "" {
		req.SessionID = id
	}

	resp, err := s.cfg.SessionService.Create(r.Context(), &session.CreateRequest{
		AppName:   s.appName,
		UserID:    chi.URLParam(r, "user"),
		SessionID: req.SessionID,
		State:     req.State,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sj, err := toSessionJSON(resp.Session, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sj)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r, chi.URLParam(r, "user"), chi.URLParam(r, "session"))
	if !ok {
		return
	}
	sj, err := toSessionJSON(sess, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sj)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.SessionService.Delete(r.Context(), &session.DeleteRequest{
		AppName:   s.appName,
		UserID:    chi.URLParam(r, "user"),
		SessionID: chi.URLParam(r, "session"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	names, err := s.cfg.ArtifactService.List(r.Context(), s.appName, chi.URLParam(r, "user"), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// handleGetArtifact returns the latest version, or ?version=N.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	version := int64(-1)
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid version %q", v))
			return
		}
		version = n
	}

	part, err := s.cfg.ArtifactService.Load(r.Context(), artifact.Key{
		AppName:   s.appName,
		UserID:    chi.URLParam(r, "user"),
		SessionID: chi.URLParam(r, "session"),
		Name:      chi.URLParam(r, "name"),
	}, version)
	if errors.Is(err, artifact.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Artifact not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pj, err := agent.EncodePart(part)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pj)
}

// decodeRun validates a run request and makes sure its session exists.
func (s *Server) decodeRun(w http.ResponseWriter, r *http.Request) (*runRequest, *agent.Content, bool) {
	var req runRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return nil, nil, false
	}
	if req.AppName != s.appName {
		writeError(w, http.StatusNotFound, fmt.Sprintf("app %q not found", req.AppName))
		return nil, nil, false
	}
	if req.UserID == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "userId and sessionId are required")
		return nil, nil, false
	}
	content, err := req.NewMessage.toContent()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	if _, ok := s.lookupSession(w, r, req.UserID, req.SessionID); !ok {
		return nil, nil, false
	}
	return &req, content, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, content, ok := s.decodeRun(w, r)
	if !ok {
		return
	}

	events := []eventJSON{}
	for ev, err := range s.cfg.Runner.Run(r.Context(), req.UserID, req.SessionID, content, agent.RunConfig{}) {
		if err != nil {
			slog.Error("Agent run failed", "session", req.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ej, err := toEventJSON(ev)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		events = append(events, ej)
	}
	writeJSON(w, http.StatusOK, events)
}

// handleRunSSE streams events as "data: <event>" frames. Failures after the
// stream started are reported as a final "event: error" frame.
func (s *Server) handleRunSSE(w http.ResponseWriter, r *http.Request) {
	req, content, ok := s.decodeRun(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	mode := agent.StreamingModeNone
	if req.Streaming {
		mode = agent.StreamingModeSSE
	}

	for ev, err := range s.cfg.Runner.Run(r.Context(), req.UserID, req.SessionID, content, agent.RunConfig{StreamingMode: mode}) {
		if err != nil {
			slog.Error("Agent run failed", "session", req.SessionID, "error", err)
			writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
			return
		}
		ej, err := toEventJSON(ev)
		if err != nil {
			writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
			return
		}
		writeSSE(w, flusher, "", ej)
	}
}

func writeSSE(w io.Writer, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to encode SSE frame", "error", err)
		return
	}
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request, userID, sessionID string) (session.Session, bool) {
	resp, err := s.cfg.SessionService.Get(r.Context(), &session.GetRequest{
		AppName:   s.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return resp.Session, true
}
