package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/housing-backoffice/internal/auth"
	"github.com/nerrad567/housing-backoffice/internal/records"
)

// Error is the body of every error response. Clients rely on message.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeForbidden          = "forbidden"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)

// Client-visible messages with fixed wording.
const (
	msgInvalidToken    = "Invalid token"
	msgAccessDenied    = "Access denied: Insufficient permissions"
	msgBadCredentials  = "Invalid email or password"
	msgEmailRegistered = "Email already registered"
	msgTooManyLogins   = "Too many login attempts"
	msgInternal        = "internal server error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, msgAccessDenied)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
}

// writeServiceError maps a domain error to a response. Anything it does not
// recognise is logged and answered with a bare 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrConflictingIdentity):
		writeError(w, http.StatusConflict, ErrCodeConflict, msgEmailRegistered)
	case errors.Is(err, auth.ErrForbidden):
		writeForbidden(w)
	case errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthorized(w, msgInvalidToken)
	case errors.Is(err, auth.ErrBadCredentials):
		writeUnauthorized(w, msgBadCredentials)
	case errors.Is(err, auth.ErrAccountNotFound):
		writeNotFound(w, "account not found")
	case errors.Is(err, records.ErrRecordNotFound):
		writeNotFound(w, "record not found")
	case auth.IsClientError(err), errors.Is(err, records.ErrInvalidBody), errors.Is(err, records.ErrInvalidCollection):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w)
	}
}

// decodeJSON reads a JSON body into v. Unknown fields are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
