package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/es-bank-account/internal/auth"
	"github.com/example/es-bank-account/internal/domain/account"
	"github.com/example/es-bank-account/internal/domain/aggregate"
	"github.com/example/es-bank-account/internal/infrastructure/store"
)

// Response is the envelope of every API reply
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Message: message, Data: data})
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Message: message})
}

// statusFor maps domain and storage errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, account.ErrValidation), errors.Is(err, account.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, aggregate.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConcurrencyConflict), errors.Is(err, account.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
