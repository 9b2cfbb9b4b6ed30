package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-recovery-api/internal/domain"
)

// msgInvalidCode is the single message for every code or token failure so
// callers cannot tell expired, consumed and wrong apart.
const msgInvalidCode = "invalid or expired code"

// httpError maps domain errors to HTTP status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCodeNotFound),
		errors.Is(err, domain.ErrCodeMismatch),
		errors.Is(err, domain.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, msgInvalidCode)
	case errors.Is(err, domain.ErrCredentialRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case domain.IsTransient(err):
		slog.Warn("dependency unavailable", "err", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable, retry later")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		slog.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
