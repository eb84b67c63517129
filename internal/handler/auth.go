package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"gameshop-api/internal/service"
	"gameshop-api/pkg/apierror"
	"gameshop-api/pkg/response"
)

// AuthHandler mints and manages buyer sessions.
type AuthHandler struct {
	sessions *service.SessionService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(sessions *service.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// TokenRequest represents the request body for session creation. It is sent
// by the trusted login front-end once it has authenticated the buyer.
type TokenRequest struct {
	BuyerID       string `json:"buyer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func expiresIn(t time.Time) int {
	return int(time.Until(t).Seconds())
}

// GenerateToken handles POST /auth/token
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.BuyerID) == "" {
		response.Error(w, apierror.ValidationError("buyer_id is required",
			apierror.FieldError{Field: "buyer_id", Message: "required"}))
		return
	}

	sess, err := h.sessions.Issue(r.Context(), req.BuyerID, req.CustomerName, req.CustomerEmail)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, TokenResponse{
		Token:     sess.Token,
		ExpiresIn: expiresIn(sess.ExpiresAt),
	})
}

// RevokeToken handles POST /auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		response.Error(w, apierror.InternalError("failed to revoke token"))
		return
	}

	response.OK(w, map[string]string{"status": "revoked"})
}

// RefreshToken handles POST /auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	sess, err := h.sessions.Refresh(r.Context(), token)
	if errors.Is(err, service.ErrInvalidSession) {
		response.Error(w, apierror.Unauthorized("Invalid or expired token"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"status":     "refreshed",
		"expires_in": expiresIn(sess.ExpiresAt),
	})
}
