package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"docbot/services/docbot/internal/app"
)

type legacyChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	TenantKey string `json:"tenantKey"`
}

// /api/widget/{apiKey}/config
func (s *Server) handleWidgetConfig(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/widget/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "config" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	cfg, err := s.app.WidgetConfig(parts[0])
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleWidgetChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many messages") {
		s.audit(r, "widget.chat", "rate_limited")
		return
	}
	var req app.ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.Chat(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleLegacyUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	file, name, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()
	res, err := s.app.LegacyUpload(r.Context(), name, file)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many messages") {
		s.audit(r, "chat", "rate_limited")
		return
	}
	var req legacyChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.LegacyChat(r.Context(), req.TenantKey, req.Message)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
