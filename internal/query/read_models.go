package query

import (
	"time"

	"github.com/example/es-bank-account/internal/domain/account"
)

// BalanceResult is the current view of one account
type BalanceResult struct {
	AccountID      string    `json:"account_id"`
	AccountHolder  string    `json:"account_holder"`
	Balance        int64     `json:"balance"`
	CreatedAt      time.Time `json:"created_at"`
	LastModifiedAt time.Time `json:"last_modified_at"`
	Version        int       `json:"version"`
}

// StateResult is an account as it was at StateAt
type StateResult struct {
	BalanceResult
	StateAt time.Time `json:"state_at"`
}

// BalanceOf builds the balance view of a loaded account
func BalanceOf(a *account.Account) *BalanceResult {
	return &BalanceResult{
		AccountID:      a.ID(),
		AccountHolder:  a.Holder(),
		Balance:        a.Balance(),
		CreatedAt:      a.CreatedAt(),
		LastModifiedAt: a.LastModifiedAt(),
		Version:        a.GetVersion(),
	}
}
