package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/agrosage/agrosage/pkg/auth"
	"github.com/agrosage/agrosage/pkg/session"
)

// The user_id body field is accepted for client compatibility but the
// token subject is authoritative for scoping. Title is likewise
// accepted and ignored; the store derives it from the first message.
type saveRequest struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Messages  []session.Message `json:"messages"`
}

func (s *Server) handleConversationSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, r, http.StatusBadRequest, "messages are required")
		return
	}

	claims := auth.GetClaims(r)
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	for _, msg := range req.Messages {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if err := s.sessions.Append(r.Context(), claims.Subject, sessionID, msg); err != nil {
			writeError(w, r, http.StatusInternalServerError, "failed to save conversation")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": sessionID})
}

type listRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := auth.GetClaims(r)
	summaries, err := s.sessions.List(r.Context(), claims.Subject, req.Limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

type sessionRef struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	var req sessionRef
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := auth.GetClaims(r)
	sess, err := s.sessions.Get(r.Context(), claims.Subject, req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversation": sess})
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	var req sessionRef
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := auth.GetClaims(r)
	removed, err := s.sessions.Delete(r.Context(), claims.Subject, req.SessionID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if !removed {
		writeError(w, r, http.StatusNotFound, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]any{
		"tools":         len(s.registry.ListTools("")),
		"weather_cache": s.weather.CacheSize(),
		"sessions":      "ok",
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"components": components,
	})
}
