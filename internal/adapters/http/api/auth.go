package api

import (
	"net/http"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// AuthHandler exchanges the control room key for an admin token.
type AuthHandler struct {
	issuer *auth.TokenIssuer
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(issuer *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// HandleAdmin handles POST /auth/admin requests.
func (h *AuthHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	const op = "api.auth_admin"
	if h.issuer == nil {
		writeError(w, model.NewKind(op, model.ErrUnauthorized, "admin login is disabled"))
		return
	}
	var req types.AdminAuthRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	token, exp, err := h.issuer.AdminToken(req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TokenResponse{Token: token, ExpiresAt: exp})
}
