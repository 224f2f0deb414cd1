package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alerts-manage-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenEnvelope wraps a minted management link.
type TokenEnvelope struct {
	Token     string `json:"token"`
	Link      string `json:"link"`
	ExpiresAt string `json:"expires_at"`
}

// VerifiedEnvelope wraps a successful code confirmation.
type VerifiedEnvelope struct {
	OK       bool              `json:"ok"`
	Identity domain.Identifier `json:"identity"`
}

// PreferencesEnvelope wraps preference reads and writes.
type PreferencesEnvelope struct {
	OK     bool     `json:"ok"`
	Alerts []string `json:"alerts"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to distinct, stable HTTP statuses so
// clients can tell re-prompt, restart and terminal failures apart.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidCode):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDelivery):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMisconfigured):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
