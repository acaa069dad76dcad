package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/es-bank-account/internal/auth"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	jwtService  *auth.JWTService
	credentials auth.Credentials
	log         *slog.Logger
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(jwtService *auth.JWTService, credentials auth.Credentials, log *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		jwtService:  jwtService,
		credentials: credentials,
		log:         log,
	}
}

// TokenRequest represents the token request body
type TokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

// TokenResponse carries an issued bearer token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken exchanges operator credentials for a bearer token
func (h *AuthHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.credentials.Verify(req.Operator, req.Password); err != nil {
		h.log.WarnContext(r.Context(), "rejected login", slog.String("operator", req.Operator))
		respondJSONError(w, "Invalid operator or password", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := h.jwtService.IssueToken(req.Operator)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to issue token", slog.Any("error", err))
		respondJSONError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, "Token issued", TokenResponse{Token: token, ExpiresAt: expiresAt})
}
