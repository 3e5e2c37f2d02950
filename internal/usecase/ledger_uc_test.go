package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/pub"
	"ledger-service/internal/repository"
	"ledger-service/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ledgerFixture struct {
	ledger   *LedgerUsecase
	accounts *repository.MemoryAccountRepo
	txlog    *repository.MemoryTransactionRepo
	users    *repository.MemoryUserRepo
	ids      *utils.IDGenerator
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	users := repository.NewMemoryUserRepo()
	accounts := repository.NewMemoryAccountRepo(users)
	txlog := repository.NewMemoryTransactionRepo()
	ids := utils.NewIDGenerator()

	ledger := NewLedgerUsecase(
		accounts, txlog, ids,
		pub.NewTransactionEventPublisher(nil),
		nil, zap.NewNop(),
		decimal.NewFromInt(10000),
	)
	return &ledgerFixture{ledger: ledger, accounts: accounts, txlog: txlog, users: users, ids: ids}
}

// seedAccount creates an active account directly in the store.
func (f *ledgerFixture) seedAccount(t *testing.T, userID string, kind domain.AccountKind, balance string) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID:            f.ids.NewID(),
		UserID:        userID,
		AccountNumber: f.ids.AccountNumber(),
		Kind:          kind,
		Balance:       mustDecimal(t, balance),
		Status:        domain.AccountActive,
	}
	if kind == domain.AccountSavings {
		a.InterestRate = domain.DefaultInterestRate
	} else {
		a.MonthlyFee = domain.DefaultMonthlyFee
	}
	require.NoError(t, f.accounts.Create(context.Background(), a))
	return a
}

func (f *ledgerFixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	a, err := f.accounts.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	return a.Balance
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestInternalTransfer(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")
	b := f.seedAccount(t, "u1", domain.AccountSavings, "5000.00")

	record, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        mustDecimal(t, "100.00"),
		Kind:          domain.TransferInternal,
		Description:   "move to savings",
	})
	require.NoError(t, err)

	require.True(t, f.balance(t, a.ID).Equal(mustDecimal(t, "900.00")))
	require.True(t, f.balance(t, b.ID).Equal(mustDecimal(t, "5100.00")))

	require.Equal(t, domain.StatusCompleted, record.Status)
	require.Equal(t, domain.TransferInternal, record.Kind)
	require.NotEmpty(t, record.ConfirmationCode)
	require.NotNil(t, record.FromAccountID)
	require.NotNil(t, record.ToAccountID)
	require.Equal(t, 1, f.txlog.Len())
}

// Conservation: an internal transfer never creates or destroys funds.
func TestInternalTransferConservation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")
	b := f.seedAccount(t, "u1", domain.AccountSavings, "5000.00")
	before := f.balance(t, a.ID).Add(f.balance(t, b.ID))

	for i := 0; i < 10; i++ {
		_, err := f.ledger.Transfer(ctx, caller, TransferInput{
			FromAccountID: a.ID,
			ToAccountID:   b.ID,
			Amount:        mustDecimal(t, "33.33"),
			Kind:          domain.TransferInternal,
		})
		require.NoError(t, err)
	}

	after := f.balance(t, a.ID).Add(f.balance(t, b.ID))
	require.True(t, before.Equal(after), "total %s changed to %s", before, after)
}

func TestTransferCeilingCheckedBeforeFunds(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	// Balance is far below the requested amount, but the ceiling error
	// must win: it is checked first.
	a := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")

	_, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID,
		Amount:        mustDecimal(t, "15000.00"),
		Kind:          domain.TransferDomestic,
	})
	require.ErrorIs(t, err, domain.ErrLimitExceeded)

	require.True(t, f.balance(t, a.ID).Equal(mustDecimal(t, "1000.00")))
	require.Equal(t, 0, f.txlog.Len())
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "50.00")
	b := f.seedAccount(t, "u1", domain.AccountSavings, "0.00")

	_, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        mustDecimal(t, "100.00"),
		Kind:          domain.TransferInternal,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Atomicity of rejection: nothing moved, nothing logged.
	require.True(t, f.balance(t, a.ID).Equal(mustDecimal(t, "50.00")))
	require.True(t, f.balance(t, b.ID).Equal(mustDecimal(t, "0.00")))
	require.Equal(t, 0, f.txlog.Len())
}

func TestTransferAccessAndValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	mine := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")
	theirs := f.seedAccount(t, "u2", domain.AccountChecking, "1000.00")

	// Unknown source account: access error, not not-found.
	_, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: "missing",
		Amount:        mustDecimal(t, "10.00"),
		Kind:          domain.TransferDomestic,
	})
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	// Someone else's source account: access error.
	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: theirs.ID,
		Amount:        mustDecimal(t, "10.00"),
		Kind:          domain.TransferDomestic,
	})
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	// Internal transfer to someone else's account: validation error.
	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: mine.ID,
		ToAccountID:   theirs.ID,
		Amount:        mustDecimal(t, "10.00"),
		Kind:          domain.TransferInternal,
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	// Internal transfer to self: validation error.
	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: mine.ID,
		ToAccountID:   mine.ID,
		Amount:        mustDecimal(t, "10.00"),
		Kind:          domain.TransferInternal,
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	// Non-positive and sub-cent amounts: validation error.
	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: mine.ID,
		Amount:        decimal.Zero,
		Kind:          domain.TransferDomestic,
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: mine.ID,
		Amount:        mustDecimal(t, "10.001"),
		Kind:          domain.TransferDomestic,
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	require.Equal(t, 0, f.txlog.Len())
}

func TestTransferInactiveAccounts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	src := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")
	dst := f.seedAccount(t, "u1", domain.AccountSavings, "1000.00")

	require.NoError(t, f.accounts.SetStatus(ctx, dst.ID, domain.AccountSuspended))
	_, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: src.ID,
		ToAccountID:   dst.ID,
		Amount:        mustDecimal(t, "10.00"),
		Kind:          domain.TransferInternal,
	})
	require.ErrorIs(t, err, domain.ErrAccountInactive)

	require.NoError(t, f.accounts.SetStatus(ctx, src.ID, domain.AccountInactive))
	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: src.ID,
		Amount:        mustDecimal(t, "10.00"),
		Kind:          domain.TransferDomestic,
	})
	require.ErrorIs(t, err, domain.ErrAccountInactive)

	require.Equal(t, 0, f.txlog.Len())
}

func TestExternalTransfers(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")

	wire, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID,
		Amount:        mustDecimal(t, "250.00"),
		Kind:          domain.TransferWire,
		Description:   "rent",
		Recipient:     &RecipientInfo{Name: "ACME Property", Bank: "First National", RoutingNumber: "021000021"},
	})
	require.NoError(t, err)
	// Wires stay pending; nothing transitions them in this system.
	require.Equal(t, domain.StatusPending, wire.Status)
	require.Nil(t, wire.ToAccountID)
	require.NotNil(t, wire.EstimatedArrival)
	require.WithinDuration(t, time.Now().Add(72*time.Hour), *wire.EstimatedArrival, time.Minute)
	require.NotNil(t, wire.RecipientName)

	domestic, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID,
		Amount:        mustDecimal(t, "100.00"),
		Kind:          domain.TransferDomestic,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, domestic.Status)
	require.NotNil(t, domestic.EstimatedArrival)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), *domestic.EstimatedArrival, time.Minute)

	require.True(t, f.balance(t, a.ID).Equal(mustDecimal(t, "650.00")))
	require.Equal(t, 2, f.txlog.Len())
}

// Non-negativity under concurrent debits: many goroutines race to drain
// the same account; the conditional decrement must never let the
// balance cross zero, and exactly the affordable number of debits may
// succeed.
func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "100.00")

	const attempts = 50
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Transfer(ctx, caller, TransferInput{
				FromAccountID: a.ID,
				Amount:        mustDecimal(t, "10.00"),
				Kind:          domain.TransferDomestic,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	require.Equal(t, 10, succeeded)
	require.True(t, f.balance(t, a.ID).Equal(decimal.Zero), "balance=%s", f.balance(t, a.ID))
	require.Equal(t, 10, f.txlog.Len())
}

func TestAdminAdjust(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	admin := domain.Caller{UserID: "adm", Role: domain.RoleAdmin}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "150.00")

	// Customer role is rejected outright.
	_, err := f.ledger.AdminAdjust(ctx, domain.Caller{UserID: "u1", Role: domain.RoleCustomer}, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "10.00"), Direction: AdjustCredit,
	})
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	// Debit beyond balance: funds error, balance untouched.
	_, err = f.ledger.AdminAdjust(ctx, admin, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "200.00"), Direction: AdjustDebit,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.True(t, f.balance(t, a.ID).Equal(mustDecimal(t, "150.00")))
	require.Equal(t, 0, f.txlog.Len())

	// Credit: destination is the account, source is nil.
	credit, err := f.ledger.AdminAdjust(ctx, admin, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "50.00"), Direction: AdjustCredit, Description: "promo",
	})
	require.NoError(t, err)
	require.Equal(t, domain.AdminCredit, credit.Kind)
	require.Nil(t, credit.FromAccountID)
	require.Equal(t, a.ID, *credit.ToAccountID)

	// Debit: source is the account, destination is nil.
	debit, err := f.ledger.AdminAdjust(ctx, admin, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "25.00"), Direction: AdjustDebit,
	})
	require.NoError(t, err)
	require.Equal(t, domain.AdminDebit, debit.Kind)
	require.Equal(t, a.ID, *debit.FromAccountID)
	require.Nil(t, debit.ToAccountID)

	require.True(t, f.balance(t, a.ID).Equal(mustDecimal(t, "175.00")))
}

func TestAdminAdjustBackdateSemantics(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")
	backdate := "2024-03-01T00:00:00Z"
	badDate := "not-a-date"

	// admin requests a backdate: flagged, but NOT honored.
	admin := domain.Caller{UserID: "adm", Role: domain.RoleAdmin}
	rec, err := f.ledger.AdminAdjust(ctx, admin, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "1.00"), Direction: AdjustCredit, Backdate: &backdate,
	})
	require.NoError(t, err)
	require.True(t, rec.Backdated)
	require.WithinDuration(t, time.Now(), rec.CreatedAt, time.Minute)

	// super_admin with a valid timestamp: flagged and honored.
	super := domain.Caller{UserID: "sup", Role: domain.RoleSuperAdmin}
	rec, err = f.ledger.AdminAdjust(ctx, super, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "1.00"), Direction: AdjustCredit, Backdate: &backdate,
	})
	require.NoError(t, err)
	require.True(t, rec.Backdated)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rec.CreatedAt)

	// super_admin with garbage: still flagged, silently falls back to now.
	rec, err = f.ledger.AdminAdjust(ctx, super, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "1.00"), Direction: AdjustCredit, Backdate: &badDate,
	})
	require.NoError(t, err)
	require.True(t, rec.Backdated)
	require.WithinDuration(t, time.Now(), rec.CreatedAt, time.Minute)

	// No backdate requested: not flagged.
	rec, err = f.ledger.AdminAdjust(ctx, super, AdjustInput{
		AccountID: a.ID, Amount: mustDecimal(t, "1.00"), Direction: AdjustCredit,
	})
	require.NoError(t, err)
	require.False(t, rec.Backdated)
}

func TestAccrueInterest(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	savings := f.seedAccount(t, "u1", domain.AccountSavings, "5000.00")
	checking := f.seedAccount(t, "u1", domain.AccountChecking, "5000.00")

	// 5000 * 0.025 / 12 = 10.4166..., rounded to 10.42.
	rec, err := f.ledger.AccrueInterest(ctx, savings.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, domain.InterestCredit, rec.Kind)
	require.Nil(t, rec.FromAccountID)
	require.True(t, rec.Amount.Equal(mustDecimal(t, "10.42")), "amount=%s", rec.Amount)
	require.True(t, f.balance(t, savings.ID).Equal(mustDecimal(t, "5010.42")))

	// Checking accounts never accrue interest.
	rec, err = f.ledger.AccrueInterest(ctx, checking.ID)
	require.NoError(t, err)
	require.Nil(t, rec)

	// Zero balance accrues nothing and appends nothing.
	empty := f.seedAccount(t, "u1", domain.AccountSavings, "0.00")
	rec, err = f.ledger.AccrueInterest(ctx, empty.ID)
	require.NoError(t, err)
	require.Nil(t, rec)

	require.Equal(t, 1, f.txlog.Len())
}

func TestAssessFee(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	rich := f.seedAccount(t, "u1", domain.AccountChecking, "3000.00")
	poor := f.seedAccount(t, "u1", domain.AccountChecking, "3.00")
	savings := f.seedAccount(t, "u1", domain.AccountSavings, "3000.00")

	rec, err := f.ledger.AssessFee(ctx, rich.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, domain.MonthlyFee, rec.Kind)
	require.Nil(t, rec.ToAccountID)
	require.True(t, f.balance(t, rich.ID).Equal(mustDecimal(t, "2995.00")))

	// Balance below the fee: silent skip, no mutation, no record.
	rec, err = f.ledger.AssessFee(ctx, poor.ID)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.True(t, f.balance(t, poor.ID).Equal(mustDecimal(t, "3.00")))

	// Savings accounts carry no fee.
	rec, err = f.ledger.AssessFee(ctx, savings.ID)
	require.NoError(t, err)
	require.Nil(t, rec)

	require.Equal(t, 1, f.txlog.Len())
}

func TestListTransactions(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "100000.00")
	b := f.seedAccount(t, "u1", domain.AccountSavings, "0.00")

	for i := 0; i < 3; i++ {
		_, err := f.ledger.Transfer(ctx, caller, TransferInput{
			FromAccountID: a.ID, ToAccountID: b.ID,
			Amount: mustDecimal(t, "5.00"), Kind: domain.TransferInternal,
		})
		require.NoError(t, err)
	}
	_, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID, Amount: mustDecimal(t, "5.00"), Kind: domain.TransferWire,
	})
	require.NoError(t, err)

	// b appears as destination only; all three internal transfers match.
	txns, err := f.ledger.ListTransactions(ctx, caller, b.ID, domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 3)

	// Kind filter narrows a's history.
	wire := domain.TransferWire
	txns, err = f.ledger.ListTransactions(ctx, caller, a.ID, domain.TransactionFilter{Kind: &wire})
	require.NoError(t, err)
	require.Len(t, txns, 1)

	// Limit is honored, and ordering is newest first.
	txns, err = f.ledger.ListTransactions(ctx, caller, a.ID, domain.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	require.False(t, txns[0].CreatedAt.Before(txns[1].CreatedAt))

	// Strangers are shut out; admins are not.
	_, err = f.ledger.ListTransactions(ctx, domain.Caller{UserID: "u2", Role: domain.RoleCustomer}, a.ID, domain.TransactionFilter{})
	require.ErrorIs(t, err, domain.ErrAccessDenied)
	_, err = f.ledger.ListTransactions(ctx, domain.Caller{UserID: "adm", Role: domain.RoleAdmin}, a.ID, domain.TransactionFilter{})
	require.NoError(t, err)

	// Admin-wide listing requires the role.
	_, err = f.ledger.ListAllTransactions(ctx, caller, domain.TransactionFilter{})
	require.ErrorIs(t, err, domain.ErrAccessDenied)
	all, err := f.ledger.ListAllTransactions(ctx, domain.Caller{UserID: "adm", Role: domain.RoleAdmin}, domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
}

// The log only ever grows, and committed records never change.
func TestTransactionLogAppendOnly(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	caller := domain.Caller{UserID: "u1", Role: domain.RoleCustomer}

	a := f.seedAccount(t, "u1", domain.AccountChecking, "1000.00")
	b := f.seedAccount(t, "u1", domain.AccountSavings, "0.00")

	first, err := f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID,
		Amount: mustDecimal(t, "10.00"), Kind: domain.TransferInternal,
	})
	require.NoError(t, err)
	sizeAfterFirst := f.txlog.Len()

	// A failed operation appends nothing.
	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID,
		Amount: mustDecimal(t, "99999.00"), Kind: domain.TransferInternal,
	})
	require.Error(t, err)
	require.Equal(t, sizeAfterFirst, f.txlog.Len())

	// A later operation only grows the log, and the earlier record is
	// still byte-for-byte what was committed.
	_, err = f.ledger.Transfer(ctx, caller, TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID,
		Amount: mustDecimal(t, "10.00"), Kind: domain.TransferInternal,
	})
	require.NoError(t, err)
	require.Greater(t, f.txlog.Len(), sizeAfterFirst)

	stored, err := f.txlog.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, stored.ID)
	require.True(t, stored.Amount.Equal(first.Amount))
	require.Equal(t, first.Status, stored.Status)
	require.Equal(t, first.CreatedAt, stored.CreatedAt)
}
