package handler

import (
	"encoding/json"
	"net/http"

	"github.com/alerts-manage-api/internal/application/verification"
	"github.com/alerts-manage-api/internal/domain"
	"github.com/alerts-manage-api/internal/pkg/phone"
	"github.com/alerts-manage-api/internal/pkg/validate"
	"github.com/go-chi/chi/v5"
)

// VerifyHandler handles the verification-code flow endpoints.
type VerifyHandler struct {
	svc verification.Service
}

func NewVerifyHandler(svc verification.Service) *VerifyHandler {
	return &VerifyHandler{svc: svc}
}

type verifyRequest struct {
	Channel    string `json:"channel" validate:"required,oneof=phone telegram whop"`
	Identifier string `json:"identifier" validate:"required"`
	// Phone attaches a delivery number to a whop record before sending;
	// Email stores the account email the platform reported.
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

type confirmRequest struct {
	Channel    string `json:"channel" validate:"required,oneof=phone telegram whop"`
	Identifier string `json:"identifier" validate:"required"`
	Code       string `json:"code" validate:"required"`
}

func (h *VerifyHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		id, ok := buildIdentifier(req.Channel, req.Identifier)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid identifier for channel")
			return
		}
		attach := ""
		if req.Phone != "" {
			attach = phone.ToE164(req.Phone)
			if !phone.Valid(attach) {
				writeError(w, http.StatusBadRequest, "invalid phone")
				return
			}
		}
		if err := h.svc.IssueCode(r.Context(), verification.IssueRequest{Identity: id, AttachPhone: attach, AttachEmail: req.Email}); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
	case "confirm":
		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		id, ok := buildIdentifier(req.Channel, req.Identifier)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid identifier for channel")
			return
		}
		verified, err := h.svc.ConfirmCode(r.Context(), id, req.Code)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, VerifiedEnvelope{OK: true, Identity: verified})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// buildIdentifier turns the wire channel+identifier pair into the tagged
// domain identifier, normalizing phones on the way in.
func buildIdentifier(channel, key string) (domain.Identifier, bool) {
	switch domain.Channel(channel) {
	case domain.ChannelPhone:
		e164 := phone.ToE164(key)
		if !phone.Valid(e164) {
			return domain.Identifier{}, false
		}
		return domain.PhoneIdentifier(e164), true
	case domain.ChannelChat:
		id := domain.Identifier{Channel: domain.ChannelChat, Key: key}
		if _, ok := id.ChatID(); !ok {
			return domain.Identifier{}, false
		}
		return id, true
	case domain.ChannelPlatform:
		if key == "" {
			return domain.Identifier{}, false
		}
		return domain.PlatformIdentifier(key), true
	default:
		return domain.Identifier{}, false
	}
}
