package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransferInternal TransactionKind = "internal"
	TransferWire     TransactionKind = "wire"
	TransferDomestic TransactionKind = "domestic"
	AdminCredit      TransactionKind = "admin_credit"
	AdminDebit       TransactionKind = "admin_debit"
	InterestCredit   TransactionKind = "interest_credit"
	MonthlyFee       TransactionKind = "monthly_fee"
)

// Valid reports whether k is one of the closed set of operation kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransferInternal, TransferWire, TransferDomestic,
		AdminCredit, AdminDebit, InterestCredit, MonthlyFee:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
)

// Transaction is an immutable ledger record, created exactly once per
// committed balance mutation and never updated or deleted afterwards.
// A nil FromAccountID means the funds originated outside the ledger
// (admin credit, interest); a nil ToAccountID is the symmetric case.
// At least one of the two is always set.
//
// Wire transfers are created pending and nothing in the system
// transitions them to completed; the settlement step is unbuilt.
type Transaction struct {
	ID               string            `json:"transaction_id"`
	FromAccountID    *string           `json:"from_account_id"`
	ToAccountID      *string           `json:"to_account_id"`
	Amount           decimal.Decimal   `json:"amount"`
	Kind             TransactionKind   `json:"transfer_type"`
	Description      string            `json:"description"`
	Status           TransactionStatus `json:"status"`
	UserID           string            `json:"user_id"`
	ConfirmationCode string            `json:"confirmation_number,omitempty"`
	RecipientName    *string           `json:"recipient_name,omitempty"`
	RecipientBank    *string           `json:"recipient_bank,omitempty"`
	RoutingNumber    *string           `json:"routing_number,omitempty"`
	EstimatedArrival *time.Time        `json:"estimated_arrival,omitempty"` // display only
	Backdated        bool              `json:"backdated,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// TransactionFilter narrows history queries. All supplied fields are ANDed.
type TransactionFilter struct {
	From  *time.Time
	To    *time.Time
	Kind  *TransactionKind
	Limit int
}
