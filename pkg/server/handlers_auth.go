package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agrosage/agrosage/pkg/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, r, statusForAuthErr(err), err.Error())
		return
	}

	token, err := s.auth.Token(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, user, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, statusForAuthErr(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r)
	user, err := s.auth.GetUser(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type manageRequest struct {
	Op string `json:"op"`
}

func (s *Server) handleManageUser(w http.ResponseWriter, r *http.Request) {
	var req manageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := auth.GetClaims(r)
	targetID := chi.URLParam(r, "id")

	user, err := s.auth.Administer(r.Context(), claims, targetID, auth.AdminOp(req.Op))
	if err != nil {
		writeError(w, r, statusForAuthErr(err), err.Error())
		return
	}

	if user == nil {
		// delete has no user to return
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": targetID})
		return
	}
	writeJSON(w, http.StatusOK, user)
}
