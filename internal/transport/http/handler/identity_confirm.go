package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-recovery-api/internal/application/identity"
	"github.com/go-recovery-api/internal/pkg/validate"
)

// IdentityConfirmHandler handles email and phone confirmation endpoints.
type IdentityConfirmHandler struct {
	svc identity.Service
}

func NewIdentityConfirmHandler(svc identity.Service) *IdentityConfirmHandler {
	return &IdentityConfirmHandler{svc: svc}
}

func (h *IdentityConfirmHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req identity.ConfirmationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.RequestConfirmation(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: msgCodeSent})
	case "confirm":
		var req identity.ConfirmRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.ConfirmIdentity(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "channel confirmed"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
