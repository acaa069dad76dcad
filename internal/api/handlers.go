package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/es-bank-account/internal/command"
	"github.com/example/es-bank-account/internal/query"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	log          *slog.Logger
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, log *slog.Logger) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		log:          log,
	}
}

// AmountRequest is the body of deposit and withdraw
type AmountRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// TransferRequest is the body of a transfer from the account in the path
type TransferRequest struct {
	ToAccountID string `json:"to_account_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// Account Commands

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateAccount
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.cmdHandler.CreateAccount(r.Context(), cmd)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, "Account created", query.BalanceOf(a))
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.cmdHandler.Deposit(r.Context(), command.Deposit{
		AccountID:   chi.URLParam(r, "id"),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, "Deposit completed", query.BalanceOf(a))
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.cmdHandler.Withdraw(r.Context(), command.Withdraw{
		AccountID:   chi.URLParam(r, "id"),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, "Withdrawal completed", query.BalanceOf(a))
}

func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.cmdHandler.Transfer(r.Context(), command.Transfer{
		FromAccountID: chi.URLParam(r, "id"),
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Description:   req.Description,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, "Transfer completed", nil)
}

// Account Queries

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.queryHandler.ListAccountIDs(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "", ids)
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	res, err := h.queryHandler.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "", res)
}

func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("point_in_time")
	if raw == "" {
		respondJSONError(w, "point_in_time is required", http.StatusBadRequest)
		return
	}
	pointInTime, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		respondJSONError(w, "point_in_time must be RFC 3339", http.StatusBadRequest)
		return
	}

	res, err := h.queryHandler.GetStateAt(r.Context(), chi.URLParam(r, "id"), pointInTime)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "", res)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, "ok", nil)
}

// respondErr writes err with its mapped status. Server errors are logged and
// their detail stays out of the response.
func (h *Handlers) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		respondJSONError(w, "Internal server error", status)
		return
	}
	respondJSONError(w, err.Error(), status)
}
