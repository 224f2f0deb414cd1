package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/alerts-manage-api/internal/application/identity"
	"github.com/alerts-manage-api/internal/application/managetoken"
	"github.com/alerts-manage-api/internal/application/preference"
	"github.com/alerts-manage-api/internal/pkg/phone"
	"github.com/alerts-manage-api/internal/pkg/validate"
)

// ManageHandler exposes the tokenized preference-management surface:
// mint a management link, then read/write alert categories with the token.
type ManageHandler struct {
	identitySvc identity.Service
	tokenSvc    managetoken.Service
	prefSvc     preference.Service
}

func NewManageHandler(identitySvc identity.Service, tokenSvc managetoken.Service, prefSvc preference.Service) *ManageHandler {
	return &ManageHandler{identitySvc: identitySvc, tokenSvc: tokenSvc, prefSvc: prefSvc}
}

// CreateToken resolves the supplied identifier set and mints a management link.
func (h *ManageHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req identity.Candidates
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone != "" {
		req.Phone = phone.ToE164(req.Phone)
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := h.identitySvc.Resolve(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	minted, err := h.tokenSvc.Mint(r.Context(), id)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenEnvelope{
		Token:     minted.Token,
		Link:      minted.Link,
		ExpiresAt: minted.ExpiresAt.Format(time.RFC3339),
	})
}

// GetPreferences returns the alert categories for the token's identity.
func (h *ManageHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query parameter required")
		return
	}
	id, err := h.tokenSvc.Authorize(r.Context(), token)
	if err != nil {
		httpError(w, err)
		return
	}
	alerts, err := h.prefSvc.Get(r.Context(), id)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferencesEnvelope{OK: true, Alerts: alerts})
}

// SetPreferences fully replaces the alert categories for the token's identity.
func (h *ManageHandler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query parameter required")
		return
	}
	var body struct {
		Alerts []string `json:"alerts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.tokenSvc.Authorize(r.Context(), token)
	if err != nil {
		httpError(w, err)
		return
	}
	alerts, err := h.prefSvc.Set(r.Context(), id, body.Alerts)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferencesEnvelope{OK: true, Alerts: alerts})
}
