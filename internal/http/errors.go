package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/joloLG/joloRide/internal/auth"
	"github.com/joloLG/joloRide/internal/location"
	"github.com/joloLG/joloRide/internal/orders"
	"github.com/joloLG/joloRide/internal/storage"
	"github.com/joloLG/joloRide/internal/tracking"
)

var (
	errForbidden      = errors.New("not allowed")
	errRiderNotFound  = errors.New("rider not found")
	errNotImplemented = errors.New("not supported by the configured location store")
)

type validationError struct{ err error }

func (v validationError) Error() string { return v.err.Error() }
func (v validationError) Unwrap() error { return v.err }

func badRequest(msg string) error { return validationError{errors.New(msg)} }

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps a domain error to a status and error code.
func classify(err error) (int, string) {
	var ve validationError
	switch {
	case errors.As(err, &ve), errors.Is(err, orders.ErrInvalidOrder):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case orders.IsNotFound(err), errors.Is(err, storage.ErrNotFound), errors.Is(err, location.ErrNoLocation),
		errors.Is(err, tracking.ErrOrderNotFound), errors.Is(err, errRiderNotFound):
		return http.StatusNotFound, "not_found"
	case orders.IsConflict(err):
		return http.StatusConflict, "conflict"
	case orders.IsForbidden(err), errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errNotImplemented):
		return http.StatusNotImplemented, "not_implemented"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	level := slog.LevelInfo
	if status == http.StatusInternalServerError {
		msg = "internal error"
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		"route", routeTemplate(r), "status", status, "error", err, "request_id", requestIDFromContext(r.Context()))
	writeJSON(w, status, apiError{Error: msg, Code: code})
}
