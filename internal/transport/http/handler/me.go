package handler

import (
	"context"
	"net/http"

	"github.com/alerts-manage-api/internal/infrastructure/whop"
)

// WhopVerifier is the slice of the Whop client this handler needs.
type WhopVerifier interface {
	Verify(ctx context.Context, token string) (*whop.Identity, error)
}

// MeHandler returns the Whop-authenticated caller's identity.
type MeHandler struct {
	verifier WhopVerifier
}

func NewMeHandler(verifier WhopVerifier) *MeHandler {
	return &MeHandler{verifier: verifier}
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeError(w, http.StatusInternalServerError, "whop verification not configured")
		return
	}
	token := r.Header.Get("x-whop-user-token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing x-whop-user-token")
		return
	}
	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}
