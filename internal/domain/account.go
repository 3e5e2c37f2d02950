package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountKind string

const (
	AccountChecking AccountKind = "checking"
	AccountSavings  AccountKind = "savings"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

// Account is a ledger account owned by exactly one user. Balance is
// decimal-exact and never goes below zero after a committed operation;
// accounts are never deleted, only moved to inactive/suspended.
type Account struct {
	ID             string          `json:"account_id"`
	UserID         string          `json:"user_id"`
	AccountNumber  string          `json:"account_number"`
	Kind           AccountKind     `json:"account_type"`
	Balance        decimal.Decimal `json:"balance"`
	Status         AccountStatus   `json:"status"`
	InterestRate   decimal.Decimal `json:"interest_rate"`   // annual, savings only
	MonthlyFee     decimal.Decimal `json:"monthly_fee"`     // checking only
	MinimumBalance decimal.Decimal `json:"minimum_balance"` // advisory, not enforced
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AccountSummary is the admin-wide listing row (account joined with its owner).
type AccountSummary struct {
	Account
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// Demo defaults applied to the account pair created at registration.
var (
	DefaultCheckingBalance = decimal.NewFromInt(1000)
	DefaultSavingsBalance  = decimal.NewFromInt(5000)
	DefaultInterestRate    = decimal.NewFromFloat(0.025)
	DefaultMonthlyFee      = decimal.NewFromInt(5)
	DefaultMinimumBalance  = decimal.NewFromInt(100)
)
