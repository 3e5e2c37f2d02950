package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const overviewCacheTTL = 1 * time.Minute

// StatementUsecase derives read-only aggregates from the transaction
// log and account store; it never mutates either.
type StatementUsecase struct {
	accountRepo repository.AccountRepository
	txRepo      repository.TransactionRepository
	userRepo    repository.UserRepository
	redisClient *redis.Client
	log         *zap.Logger
}

func NewStatementUsecase(
	accountRepo repository.AccountRepository,
	txRepo repository.TransactionRepository,
	userRepo repository.UserRepository,
	redisClient *redis.Client,
	log *zap.Logger,
) *StatementUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatementUsecase{
		accountRepo: accountRepo,
		txRepo:      txRepo,
		userRepo:    userRepo,
		redisClient: redisClient,
		log:         log,
	}
}

// BuildStatement derives the monthly statement for an account. The
// opening balance is the account's balance at build time, not a
// reconstruction from history, so the closing figure is only exact when
// computed at month end; consumers rely on this behavior.
func (uc *StatementUsecase) BuildStatement(ctx context.Context, caller domain.Caller, accountID string, month time.Month, year int) (*domain.Statement, error) {
	if month < time.January || month > time.December || year < 1970 {
		return nil, fmt.Errorf("%w: invalid statement period", domain.ErrValidation)
	}

	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != caller.UserID && !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: not your account", domain.ErrAccessDenied)
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	credits, err := uc.txRepo.SumByAccount(ctx, accountID, repository.DirectionIncoming, from, to)
	if err != nil {
		return nil, err
	}
	debits, err := uc.txRepo.SumByAccount(ctx, accountID, repository.DirectionOutgoing, from, to)
	if err != nil {
		return nil, err
	}
	txns, err := uc.txRepo.ListByAccount(ctx, accountID, domain.TransactionFilter{
		From:  &from,
		To:    &to,
		Limit: AdminHistoryCap,
	})
	if err != nil {
		return nil, err
	}

	opening := account.Balance
	return &domain.Statement{
		AccountID:      account.ID,
		AccountNumber:  account.AccountNumber,
		Month:          month,
		Year:           year,
		OpeningBalance: opening,
		TotalCredits:   credits,
		TotalDebits:    debits,
		ClosingBalance: opening.Add(credits).Sub(debits),
		Transactions:   txns,
	}, nil
}

// AdminOverview returns ledger-wide analytics: entity counts, total
// balance held and per-kind volume over the trailing 30 days. Cached
// briefly in redis. Admin only.
func (uc *StatementUsecase) AdminOverview(ctx context.Context, caller domain.Caller) (*domain.Overview, error) {
	if !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", domain.ErrAccessDenied)
	}

	const cacheKey = "analytics:overview"
	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var overview domain.Overview
			if jsonErr := json.Unmarshal([]byte(val), &overview); jsonErr == nil {
				return &overview, nil
			}
		}
	}

	users, err := uc.userRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	accounts, totalBalance, err := uc.accountRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	volumes, err := uc.txRepo.VolumeByKind(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}

	overview := &domain.Overview{
		TotalUsers:    users,
		TotalAccounts: accounts,
		TotalBalance:  totalBalance,
		Volumes:       volumes,
		GeneratedAt:   time.Now().UTC(),
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(overview); err == nil {
			_ = uc.redisClient.Set(ctx, cacheKey, data, overviewCacheTTL).Err()
		}
	}
	return overview, nil
}
