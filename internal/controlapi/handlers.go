// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agents", s.withLogging(s.handleAgentsRoot))
	mux.HandleFunc("/api/agents/", s.withLogging(s.handleAgentSubpath))
	return mux
}

// withLogging logs each handled request at Info and recovers a handler
// panic into a 500 rather than taking the whole process down.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("control API handler panicked",
					zap.String("path", r.URL.Path), zap.Any("recover", rec))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
			}
		}()
		s.logger.Info("control API request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type agentStatusJSON struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// handleAgentsRoot serves GET /api/agents and POST /api/agents.
func (s *Server) handleAgentsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListAgents(w, r)
	case http.MethodPost:
		s.handleCreateAgent(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	agents := s.router.ListAgents()
	out := make([]agentStatusJSON, len(agents))
	for i, a := range agents {
		out[i] = agentStatusJSON{Name: a.Name, Status: a.Status}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":    out,
		"activeTab": nil, // no web-tab UI surface in this daemon
	})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ThreadName string `json:"threadName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ThreadName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "threadName is required"})
		return
	}

	if s.router.TargetExists(body.ThreadName) {
		writeJSON(w, http.StatusOK, map[string]any{
			"created":    false,
			"threadName": body.ThreadName,
			"reason":     "already exists",
		})
		return
	}

	if err := s.createThread(body.ThreadName); err != nil {
		s.logger.Error("control API: create thread failed", zap.String("thread", body.ThreadName), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"created":    true,
		"threadName": body.ThreadName,
	})
}

// handleAgentSubpath dispatches /api/agents/<name>/message and
// /api/agents/<name>/history.
func (s *Server) handleAgentSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	name, action, ok := strings.Cut(rest, "/")
	if !ok || name == "" || action == "" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}

	switch action {
	case "message":
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		s.handleSendMessage(w, r, name)
	case "history":
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		s.handleGetHistory(w, r, name)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, target string) {
	var body struct {
		Message string `json:"message"`
		Sender  string `json:"sender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	// Unlike Router.InjectMessage's own auto-create semantics, the control
	// API's message endpoint requires the target to already be known:
	// unknown targets return delivered:false with the current agent list
	// so the client can auto-create and retry.
	if !s.router.TargetExists(target) {
		agents := s.router.ListAgents()
		available := make([]string, len(agents))
		for i, a := range agents {
			available[i] = a.Name
		}
		writeJSON(w, http.StatusNotFound, map[string]any{
			"delivered": false,
			"error":     fmt.Sprintf("Agent %q not found", target),
			"available": available,
		})
		return
	}

	if err := s.router.InjectMessage(r.Context(), target, body.Message, body.Sender); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"delivered": false,
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"delivered": true,
		"target":    target,
	})
}

type historyEntryJSON struct {
	ID          string            `json:"id"`
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	TimestampMS int64             `json:"timestampMs"`
	TokenCount  *int              `json:"tokenCount,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request, name string) {
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "count must be a non-negative integer"})
			return
		}
		count = n
	}

	entries, err := s.supervisor.GetHistory(name, count)
	if err != nil {
		s.logger.Error("control API: get history failed", zap.String("thread", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	out := make([]historyEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = historyEntryJSON{
			ID:          e.ID,
			Role:        string(e.Role),
			Content:     e.Content,
			TimestampMS: e.TimestampMS,
			TokenCount:  e.TokenCount,
			Metadata:    e.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread": name, "messages": out})
}
