package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-recovery-api/internal/application/recovery"
	"github.com/go-recovery-api/internal/pkg/validate"
)

// msgCodeSent never reveals whether the account exists.
const msgCodeSent = "if the account exists, a verification code has been sent"

// PasswordRecoveryHandler handles password recovery flow endpoints.
type PasswordRecoveryHandler struct {
	svc recovery.Service
}

func NewPasswordRecoveryHandler(svc recovery.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc}
}

func (h *PasswordRecoveryHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req recovery.RecoveryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.RequestRecovery(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: msgCodeSent})
	case "confirm":
		var req recovery.ConfirmRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		conf, err := h.svc.ConfirmRecovery(r.Context(), req)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ConfirmationEnvelope{Token: conf.Token, ExpiresAt: conf.ExpiresAt})
	case "complete":
		var req recovery.CompleteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.CompleteRecovery(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
