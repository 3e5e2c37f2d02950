package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ledger-service/internal/domain"

	"github.com/shopspring/decimal"
)

// In-memory implementations of the store contracts. They keep the same
// atomicity guarantees the Postgres repositories provide (per-account
// atomic increments, conditional debit that refuses to cross zero,
// debit-then-credit as one unit under the lock) and back the engine's
// tests and local demo mode without a database.

type MemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	users    *MemoryUserRepo // optional, for ListAll owner join
}

func NewMemoryAccountRepo(users *MemoryUserRepo) *MemoryAccountRepo {
	return &MemoryAccountRepo{
		accounts: make(map[string]*domain.Account),
		users:    users,
	}
}

func (r *MemoryAccountRepo) GetByID(_ context.Context, accountID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepo) ListByUser(_ context.Context, userID string) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (r *MemoryAccountRepo) ListByStatus(_ context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (r *MemoryAccountRepo) ListAll(ctx context.Context) ([]*domain.AccountSummary, error) {
	r.mu.Lock()
	accounts := make([]*domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		cp := *a
		accounts = append(accounts, &cp)
	}
	r.mu.Unlock()
	sortAccounts(accounts)

	summaries := make([]*domain.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		s := &domain.AccountSummary{Account: *a}
		if r.users != nil {
			if u, err := r.users.GetByID(ctx, a.UserID); err == nil {
				s.UserName = u.FirstName + " " + u.LastName
				s.UserEmail = u.Email
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (r *MemoryAccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *MemoryAccountRepo) SetStatus(_ context.Context, accountID string, status domain.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryAccountRepo) CreditBalance(_ context.Context, accountID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credit(accountID, amount)
}

func (r *MemoryAccountRepo) DebitBalance(_ context.Context, accountID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.debit(accountID, amount)
}

// TransferBalances debits then credits under a single lock acquisition,
// so no reader ever observes the intermediate state.
func (r *MemoryAccountRepo) TransferBalances(_ context.Context, fromID, toID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.debit(fromID, amount); err != nil {
		return err
	}
	if err := r.credit(toID, amount); err != nil {
		// Undo the debit; both sides stay untouched on failure.
		if undoErr := r.credit(fromID, amount); undoErr != nil {
			return domain.ErrConsistency
		}
		return err
	}
	return nil
}

func (r *MemoryAccountRepo) Stats(_ context.Context) (int64, decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, a := range r.accounts {
		total = total.Add(a.Balance)
	}
	return int64(len(r.accounts)), total, nil
}

// credit and debit assume the caller holds r.mu.

func (r *MemoryAccountRepo) credit(accountID string, amount decimal.Decimal) error {
	a, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryAccountRepo) debit(accountID string, amount decimal.Decimal) error {
	a, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	if a.Balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func sortAccounts(accounts []*domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
}

// MemoryTransactionRepo is an order-preserving append-only log.
type MemoryTransactionRepo struct {
	mu      sync.Mutex
	records []*domain.Transaction
}

func NewMemoryTransactionRepo() *MemoryTransactionRepo {
	return &MemoryTransactionRepo{}
}

func (r *MemoryTransactionRepo) Create(_ context.Context, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.records = append(r.records, &cp)
	return nil
}

func (r *MemoryTransactionRepo) GetByID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.records {
		if t.ID == transactionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Len reports the number of appended records (test helper).
func (r *MemoryTransactionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *MemoryTransactionRepo) ListByAccount(_ context.Context, accountID string, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filterRecords(r.records, f, func(t *domain.Transaction) bool {
		return (t.FromAccountID != nil && *t.FromAccountID == accountID) ||
			(t.ToAccountID != nil && *t.ToAccountID == accountID)
	}), nil
}

func (r *MemoryTransactionRepo) List(_ context.Context, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filterRecords(r.records, f, func(*domain.Transaction) bool { return true }), nil
}

func filterRecords(records []*domain.Transaction, f domain.TransactionFilter, match func(*domain.Transaction) bool) []*domain.Transaction {
	var out []*domain.Transaction
	for _, t := range records {
		if !match(t) {
			continue
		}
		if f.From != nil && t.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !t.CreatedAt.Before(*f.To) {
			continue
		}
		if f.Kind != nil && t.Kind != *f.Kind {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	// Newest first; ties broken by ID for a stable order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (r *MemoryTransactionRepo) SumByAccount(_ context.Context, accountID string, dir Direction, from, to time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, t := range r.records {
		var ref *string
		if dir == DirectionOutgoing {
			ref = t.FromAccountID
		} else {
			ref = t.ToAccountID
		}
		if ref == nil || *ref != accountID {
			continue
		}
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}

func (r *MemoryTransactionRepo) VolumeByKind(_ context.Context, since time.Time) ([]*domain.KindVolume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKind := make(map[domain.TransactionKind]*domain.KindVolume)
	for _, t := range r.records {
		if t.CreatedAt.Before(since) {
			continue
		}
		v, ok := byKind[t.Kind]
		if !ok {
			v = &domain.KindVolume{Kind: t.Kind, Volume: decimal.Zero}
			byKind[t.Kind] = v
		}
		v.Count++
		v.Volume = v.Volume.Add(t.Amount)
	}

	out := make([]*domain.KindVolume, 0, len(byKind))
	for _, v := range byKind {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

// MemoryUserRepo holds users keyed by ID with a case-insensitive email index.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]*domain.User)}
}

func (r *MemoryUserRepo) GetByID(_ context.Context, userID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryUserRepo) List(_ context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryUserRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}
