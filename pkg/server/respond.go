package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agrosage/agrosage/pkg/auth"
	"github.com/agrosage/agrosage/pkg/tools"
)

type errorBody struct {
	Error       string   `json:"error"`
	Kind        string   `json:"kind,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	TraceID     string   `json:"trace_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := errorBody{Error: message}
	if status == http.StatusInternalServerError {
		body.TraceID = chimiddleware.GetReqID(r.Context())
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusForKind maps tool-level failure kinds to gateway statuses.
func statusForKind(kind tools.ErrorKind) int {
	switch kind {
	case "":
		return http.StatusOK
	case tools.ErrInvalidInput:
		return http.StatusBadRequest
	case tools.ErrTimeout:
		return http.StatusRequestTimeout
	case tools.ErrBackendUnavailable, tools.ErrBackendRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// statusForAuthErr maps auth service errors to statuses; anything
// unrecognized is a 400 (policy or validation failure).
func statusForAuthErr(err error) int {
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, auth.ErrSelfTarget),
		errors.Is(err, auth.ErrLastSuperAdmin):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInactiveUser):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
