package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Direction selects which side of a transaction an account sits on.
type Direction string

const (
	DirectionIncoming Direction = "incoming" // account is destination
	DirectionOutgoing Direction = "outgoing" // account is source
)

// TransactionRepository is the append-only transaction log. Records are
// inserted once and never updated or deleted.
type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	GetByID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// ListByAccount returns records where the account is source OR
	// destination, newest first.
	ListByAccount(ctx context.Context, accountID string, f domain.TransactionFilter) ([]*domain.Transaction, error)
	// List is the admin-wide view across all accounts, newest first.
	List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, error)

	// SumByAccount totals amounts for one side of the account within [from, to).
	SumByAccount(ctx context.Context, accountID string, dir Direction, from, to time.Time) (decimal.Decimal, error)
	// VolumeByKind aggregates count and amount per operation kind since the given time.
	VolumeByKind(ctx context.Context, since time.Time) ([]*domain.KindVolume, error)
}

type transactionRepo struct {
	db *pgxpool.Pool
}

// NewTransactionRepo creates a Postgres-backed transaction log.
func NewTransactionRepo(db *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{db: db}
}

const baseTransactionSelect = `
	SELECT id, from_account_id, to_account_id, amount::text, transfer_type,
	       description, status, user_id, confirmation_number,
	       recipient_name, recipient_bank, routing_number,
	       estimated_arrival, backdated, created_at, updated_at
	FROM transactions`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount string
	var code *string

	err := row.Scan(
		&t.ID, &t.FromAccountID, &t.ToAccountID, &amount, &t.Kind,
		&t.Description, &t.Status, &t.UserID, &code,
		&t.RecipientName, &t.RecipientBank, &t.RoutingNumber,
		&t.EstimatedArrival, &t.Backdated, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if code != nil {
		t.ConfirmationCode = *code
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount value %q: %w", amount, err)
	}
	return &t, nil
}

func (r *transactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	var code *string
	if t.ConfirmationCode != "" {
		code = &t.ConfirmationCode
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (id, from_account_id, to_account_id, amount,
		                          transfer_type, description, status, user_id,
		                          confirmation_number, recipient_name, recipient_bank,
		                          routing_number, estimated_arrival, backdated,
		                          created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, t.ID, t.FromAccountID, t.ToAccountID, t.Amount.String(), t.Kind,
		t.Description, t.Status, t.UserID, code, t.RecipientName, t.RecipientBank,
		t.RoutingNumber, t.EstimatedArrival, t.Backdated, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, baseTransactionSelect+` WHERE id=$1`, transactionID))
}

func (r *transactionRepo) ListByAccount(ctx context.Context, accountID string, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	query := baseTransactionSelect + ` WHERE (from_account_id=$1 OR to_account_id=$1)`
	args := []any{accountID}
	query, args = appendFilter(query, args, f)

	return r.queryTransactions(ctx, query, args)
}

func (r *transactionRepo) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	query := baseTransactionSelect + ` WHERE true`
	var args []any
	query, args = appendFilter(query, args, f)

	return r.queryTransactions(ctx, query, args)
}

// appendFilter adds the optional filter clauses plus ordering and limit.
func appendFilter(query string, args []any, f domain.TransactionFilter) (string, []any) {
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	if f.Kind != nil {
		args = append(args, *f.Kind)
		query += fmt.Sprintf(" AND transfer_type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (r *transactionRepo) queryTransactions(ctx context.Context, query string, args []any) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *transactionRepo) SumByAccount(ctx context.Context, accountID string, dir Direction, from, to time.Time) (decimal.Decimal, error) {
	column := "to_account_id"
	if dir == DirectionOutgoing {
		column = "from_account_id"
	}

	var total string
	err := r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE %s = $1 AND created_at >= $2 AND created_at < $3
	`, column), accountID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}

	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount sum %q: %w", total, err)
	}
	return sum, nil
}

func (r *transactionRepo) VolumeByKind(ctx context.Context, since time.Time) ([]*domain.KindVolume, error) {
	rows, err := r.db.Query(ctx, `
		SELECT transfer_type, COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE created_at >= $1
		GROUP BY transfer_type
		ORDER BY transfer_type
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transaction volume: %w", err)
	}
	defer rows.Close()

	var volumes []*domain.KindVolume
	for rows.Next() {
		var v domain.KindVolume
		var volume string
		if err := rows.Scan(&v.Kind, &v.Count, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan volume row: %w", err)
		}
		if v.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("bad volume value %q: %w", volume, err)
		}
		volumes = append(volumes, &v)
	}
	return volumes, rows.Err()
}
