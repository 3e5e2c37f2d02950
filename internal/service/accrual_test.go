package service

import (
	"context"
	"io"
	"testing"

	"ledger-service/internal/domain"
	"ledger-service/internal/pub"
	"ledger-service/internal/repository"
	"ledger-service/internal/usecase"
	"ledger-service/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedAccrualAccount(t *testing.T, repo *repository.MemoryAccountRepo, kind domain.AccountKind, balance string, status domain.AccountStatus) *domain.Account {
	t.Helper()
	bal, err := decimal.NewFromString(balance)
	require.NoError(t, err)
	account := &domain.Account{
		ID:             uuid.NewString(),
		UserID:         uuid.NewString(),
		AccountNumber:  "1000000000",
		Kind:           kind,
		Balance:        bal,
		Status:         status,
		InterestRate:   domain.DefaultInterestRate,
		MonthlyFee:     domain.DefaultMonthlyFee,
		MinimumBalance: domain.DefaultMinimumBalance,
	}
	require.NoError(t, repo.Create(context.Background(), account))
	return account
}

func TestRunMonthly(t *testing.T) {
	ctx := context.Background()
	accounts := repository.NewMemoryAccountRepo(nil)
	txlog := repository.NewMemoryTransactionRepo()
	ledger := usecase.NewLedgerUsecase(
		accounts, txlog, utils.NewIDGenerator(),
		pub.NewTransactionEventPublisher(nil), nil, zap.NewNop(),
		decimal.NewFromInt(10000),
	)
	svc := NewAccrualService(ledger, accounts, quietLogger(), 4)

	savings := seedAccrualAccount(t, accounts, domain.AccountSavings, "5000.00", domain.AccountActive)
	checking := seedAccrualAccount(t, accounts, domain.AccountChecking, "1000.00", domain.AccountActive)
	poor := seedAccrualAccount(t, accounts, domain.AccountChecking, "3.00", domain.AccountActive)
	zeroSavings := seedAccrualAccount(t, accounts, domain.AccountSavings, "0.00", domain.AccountActive)
	seedAccrualAccount(t, accounts, domain.AccountSavings, "9000.00", domain.AccountInactive)

	report, err := svc.RunMonthly(ctx)
	require.NoError(t, err)

	// The inactive account is never listed, the zero-balance savings and
	// underfunded checking accounts are visited but skipped.
	require.Equal(t, 4, report.Accounts)
	require.Equal(t, int64(1), report.InterestCredited)
	require.Equal(t, int64(1), report.FeesAssessed)
	require.Equal(t, int64(0), report.Failures)

	got, err := accounts.GetByID(ctx, savings.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("5010.42")), "got %s", got.Balance)

	got, err = accounts.GetByID(ctx, checking.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("995.00")), "got %s", got.Balance)

	got, err = accounts.GetByID(ctx, poor.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("3.00")), "got %s", got.Balance)

	got, err = accounts.GetByID(ctx, zeroSavings.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())

	// One log record per applied accrual, none for the skips.
	require.Equal(t, 2, txlog.Len())
}

func TestRunMonthlyEmpty(t *testing.T) {
	accounts := repository.NewMemoryAccountRepo(nil)
	ledger := usecase.NewLedgerUsecase(
		accounts, repository.NewMemoryTransactionRepo(), utils.NewIDGenerator(),
		pub.NewTransactionEventPublisher(nil), nil, zap.NewNop(),
		decimal.NewFromInt(10000),
	)
	svc := NewAccrualService(ledger, accounts, quietLogger(), 0)

	report, err := svc.RunMonthly(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Accounts)
	require.Equal(t, int64(0), report.InterestCredited+report.FeesAssessed+report.Failures)
}
