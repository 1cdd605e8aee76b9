package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"docbot/pkg/domain"
	"docbot/services/docbot/internal/app"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// /api/bots
func (s *Server) handleBots(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		bots, err := s.app.ListBots(user)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": bots,
			"count": len(bots),
		})
	case http.MethodPost:
		var in app.BotInput
		if err := decodeOptionalJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
		bot, err := s.app.CreateBot(user, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, bot)
	default:
		methodNotAllowed(w, r)
	}
}

// /api/bots/{id}, /api/bots/{id}/api-key, /api/bots/{id}/documents[/{docId}], /api/bots/{id}/logs
func (s *Server) handleBotByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/bots/"), "/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		writeError(w, r, http.StatusNotFound, "Bot not found")
		return
	}
	switch {
	case len(parts) == 1:
		s.handleBot(w, r, user, id)
	case len(parts) == 2 && parts[1] == "api-key":
		s.handleRotateKey(w, r, user, id)
	case len(parts) == 2 && parts[1] == "documents":
		s.handleDocuments(w, r, user, id)
	case len(parts) == 3 && parts[1] == "documents":
		s.handleDocumentByID(w, r, user, id, parts[2])
	case len(parts) == 2 && parts[1] == "logs":
		s.handleLogs(w, r, user, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleBot(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		bot, err := s.app.GetBot(user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bot)
	case http.MethodPatch:
		var in app.BotInput
		if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(&in); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
		bot, err := s.app.UpdateBot(user, id, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bot)
	case http.MethodDelete:
		if err := s.app.DeleteBot(r.Context(), user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "bot.delete", "success", "user_id", user.ID, "bot_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	bot, err := s.app.RotateAPIKey(user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "bot.api_key.rotate", "success", "user_id", user.ID, "bot_id", id)
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, user domain.User, botID string) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.app.ListDocuments(user, botID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": docs,
			"count": len(docs),
		})
	case http.MethodPost:
		file, name, ok := s.readUpload(w, r)
		if !ok {
			return
		}
		defer file.Close()
		res, err := s.app.UploadDocument(r.Context(), user, botID, name, file)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, user domain.User, botID, docID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r)
		return
	}
	removed, err := s.app.DeleteDocument(r.Context(), user, botID, docID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "chunks": removed})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, user domain.User, botID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	limit := defaultLogLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}
	logs, err := s.app.ChatLogs(user, botID, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": logs,
		"count": len(logs),
	})
}

// readUpload limits the body and returns the multipart "file" part. On failure
// it has already written the response.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusBadRequest, "file too large")
			return nil, "", false
		}
		writeError(w, r, http.StatusBadRequest, "invalid form data")
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file is required (field: file)")
		return nil, "", false
	}
	return file, header.Filename, true
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
