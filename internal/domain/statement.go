package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement is a derived monthly view over the transaction log; it is
// computed on demand and never stored.
//
// OpeningBalance is the account's balance at the time the statement is
// built, not a historical reconstruction, so ClosingBalance is only a
// true closing balance when the statement is computed at month end.
// Downstream consumers depend on this behavior.
type Statement struct {
	AccountID      string          `json:"account_id"`
	AccountNumber  string          `json:"account_number"`
	Month          time.Month      `json:"month"`
	Year           int             `json:"year"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	TotalCredits   decimal.Decimal `json:"total_credits"`
	TotalDebits    decimal.Decimal `json:"total_debits"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Transactions   []*Transaction  `json:"transactions"`
}

// KindVolume aggregates transaction count and amount for one operation kind.
type KindVolume struct {
	Kind   TransactionKind `json:"transfer_type"`
	Count  int64           `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// Overview is the admin-wide analytics snapshot.
type Overview struct {
	TotalUsers    int64           `json:"total_users"`
	TotalAccounts int64           `json:"total_accounts"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	Volumes       []*KindVolume   `json:"volumes"` // trailing 30 days
	GeneratedAt   time.Time       `json:"generated_at"`
}
