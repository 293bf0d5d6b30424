package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"kovara/internal/banking"
	"kovara/internal/core"
	"kovara/internal/services"
)

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: apiError{Code: code, Message: message}})
}

// writeServiceError maps domain errors to HTTP statuses. Anything unmapped is
// an internal fault and keeps its detail out of the response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNoLinkedAccounts):
		writeError(w, http.StatusNotFound, "no_linked_accounts", "No bank accounts are linked to this user.")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
	case errors.Is(err, services.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", "Your session has expired. Please sign in again.")
	case errors.Is(err, services.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, "unknown_account", "One of the referenced accounts does not exist.")
	case errors.Is(err, banking.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email_taken", "An account with this email already exists.")
	case errors.Is(err, banking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "The requested resource does not exist.")
	case errors.Is(err, banking.ErrLookupFailure):
		slog.ErrorContext(r.Context(), "Backend lookup failed", "error", err, "url", r.URL.Path)
		writeError(w, http.StatusBadGateway, "lookup_failure", "A backing service failed. Please retry.")
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		slog.ErrorContext(r.Context(), "Unhandled service error", "error", err, "url", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong.")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidEmail,
		core.ErrEmptyUserID,
		core.ErrEmptyName,
		core.ErrSameAccount,
		core.ErrPasswordTooShort,
		core.ErrMissingField,
		core.ErrInvalidField,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
