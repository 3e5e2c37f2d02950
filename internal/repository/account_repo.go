package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AccountRepository is the account store contract the ledger engine runs
// against. The two balance primitives are the engine's only concurrency
// requirements: CreditBalance is an atomic per-account increment, and
// DebitBalance is a conditional atomic decrement that fails (with
// domain.ErrInsufficientFunds) rather than cross zero, so concurrent
// debits validated against a stale read can never drive a balance
// negative. TransferBalances applies debit-then-credit as one atomic
// unit.
type AccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*domain.Account, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Account, error)
	ListAll(ctx context.Context) ([]*domain.AccountSummary, error)
	ListByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error)

	Create(ctx context.Context, a *domain.Account) error
	SetStatus(ctx context.Context, accountID string, status domain.AccountStatus) error

	CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error
	DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) error
	TransferBalances(ctx context.Context, fromID, toID string, amount decimal.Decimal) error

	// Stats returns account count and the sum of all balances (admin analytics).
	Stats(ctx context.Context) (int64, decimal.Decimal, error)
}

type accountRepo struct {
	db *pgxpool.Pool
}

// NewAccountRepo creates a Postgres-backed account repository.
func NewAccountRepo(db *pgxpool.Pool) AccountRepository {
	return &accountRepo{db: db}
}

const baseAccountSelect = `
	SELECT id, user_id, account_number, account_type, balance::text, status,
	       interest_rate::text, monthly_fee::text, minimum_balance::text,
	       created_at, updated_at
	FROM accounts`

// scanAccount scans a row into a domain.Account, converting NUMERIC
// columns through their text form (pgx has no native decimal target).
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var balance, rate, fee, minBal string

	err := row.Scan(
		&a.ID, &a.UserID, &a.AccountNumber, &a.Kind, &balance, &a.Status,
		&rate, &fee, &minBal, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("bad balance value %q: %w", balance, err)
	}
	a.InterestRate, _ = decimal.NewFromString(rate)
	a.MonthlyFee, _ = decimal.NewFromString(fee)
	a.MinimumBalance, _ = decimal.NewFromString(minBal)
	return &a, nil
}

func (r *accountRepo) GetByID(ctx context.Context, accountID string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, baseAccountSelect+` WHERE id=$1`, accountID))
}

func (r *accountRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, baseAccountSelect+` WHERE user_id=$1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *accountRepo) ListByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, baseAccountSelect+` WHERE status=$1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by status: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListAll returns every account joined with its owner, for the admin view.
func (r *accountRepo) ListAll(ctx context.Context) ([]*domain.AccountSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.user_id, a.account_number, a.account_type, a.balance::text,
		       a.status, a.interest_rate::text, a.monthly_fee::text,
		       a.minimum_balance::text, a.created_at, a.updated_at,
		       u.first_name || ' ' || u.last_name, u.email
		FROM accounts a
		INNER JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all accounts: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.AccountSummary
	for rows.Next() {
		var s domain.AccountSummary
		var balance, rate, fee, minBal string
		err := rows.Scan(
			&s.ID, &s.UserID, &s.AccountNumber, &s.Kind, &balance, &s.Status,
			&rate, &fee, &minBal, &s.CreatedAt, &s.UpdatedAt,
			&s.UserName, &s.UserEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account summary: %w", err)
		}
		if s.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("bad balance value %q: %w", balance, err)
		}
		s.InterestRate, _ = decimal.NewFromString(rate)
		s.MonthlyFee, _ = decimal.NewFromString(fee)
		s.MinimumBalance, _ = decimal.NewFromString(minBal)
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

func (r *accountRepo) Create(ctx context.Context, a *domain.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (id, user_id, account_number, account_type, balance,
		                      status, interest_rate, monthly_fee, minimum_balance,
		                      created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, a.ID, a.UserID, a.AccountNumber, a.Kind, a.Balance.String(), a.Status,
		a.InterestRate.String(), a.MonthlyFee.String(), a.MinimumBalance.String(),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepo) SetStatus(ctx context.Context, accountID string, status domain.AccountStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET status=$2, updated_at=$3 WHERE id=$1
	`, accountID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreditBalance applies a single atomic increment.
func (r *accountRepo) CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	return creditBalance(ctx, r.db, accountID, amount)
}

// DebitBalance applies a conditional decrement in one statement: the
// WHERE clause refuses the update when the balance would cross zero, so
// the funds check and the mutation are a single atomic step.
func (r *accountRepo) DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	return debitBalance(ctx, r.db, accountID, amount)
}

// TransferBalances debits fromID and credits toID inside one database
// transaction. A failure after the debit rolls the debit back; a partial
// state is never visible to readers.
func (r *accountRepo) TransferBalances(ctx context.Context, fromID, toID string, amount decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := debitBalance(ctx, tx, fromID, amount); err != nil {
		return err
	}
	if err := creditBalance(ctx, tx, toID, amount); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		// Debit and credit both applied but the commit is in doubt.
		return fmt.Errorf("%w: transfer commit %s -> %s: %v", domain.ErrConsistency, fromID, toID, err)
	}
	return nil
}

func (r *accountRepo) Stats(ctx context.Context) (int64, decimal.Decimal, error) {
	var count int64
	var total string
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(balance), 0)::text FROM accounts
	`).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to read account stats: %w", err)
	}
	sum, err := decimal.NewFromString(total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("bad balance sum %q: %w", total, err)
	}
	return count, sum, nil
}

// execer is the slice of pgx both *pgxpool.Pool and pgx.Tx satisfy, so
// the balance primitives run identically inside and outside a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func creditBalance(ctx context.Context, q execer, accountID string, amount decimal.Decimal) error {
	tag, err := q.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = $3
		WHERE id = $1
	`, accountID, amount.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to credit account %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func debitBalance(ctx context.Context, q execer, accountID string, amount decimal.Decimal) error {
	tag, err := q.Exec(ctx, `
		UPDATE accounts
		SET balance = balance - $2, updated_at = $3
		WHERE id = $1 AND balance >= $2
	`, accountID, amount.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to debit account %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the account is gone or the balance guard refused the
		// decrement; disambiguate with a plain read.
		var exists bool
		err := q.QueryRow(ctx, `SELECT true FROM accounts WHERE id=$1`, accountID).Scan(&exists)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("failed to read account %s: %w", accountID, err)
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}
