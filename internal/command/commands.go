package command

// Account Commands
type CreateAccount struct {
	AccountID      string `json:"account_id"`
	AccountHolder  string `json:"account_holder"`
	InitialBalance int64  `json:"initial_balance"`
}

type Deposit struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type Withdraw struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type Transfer struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
}
